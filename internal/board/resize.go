package board

import "math"

// Handle names one of the eight resize grips by compass direction.
type Handle string

const (
	HandleN  Handle = "n"
	HandleS  Handle = "s"
	HandleE  Handle = "e"
	HandleW  Handle = "w"
	HandleNE Handle = "ne"
	HandleNW Handle = "nw"
	HandleSE Handle = "se"
	HandleSW Handle = "sw"
)

// Handles lists corners before edges so corner grips win hit tests where
// they overlap an edge grip.
var Handles = []Handle{HandleNW, HandleNE, HandleSW, HandleSE, HandleN, HandleS, HandleE, HandleW}

func (h Handle) north() bool { return h == HandleN || h == HandleNE || h == HandleNW }
func (h Handle) south() bool { return h == HandleS || h == HandleSE || h == HandleSW }
func (h Handle) east() bool  { return h == HandleE || h == HandleNE || h == HandleSE }
func (h Handle) west() bool  { return h == HandleW || h == HandleNW || h == HandleSW }

func (h Handle) corner() bool {
	return (h.north() || h.south()) && (h.east() || h.west())
}

func (h Handle) Valid() bool {
	return h.north() || h.south() || h.east() || h.west()
}

// Point returns the canvas position of the grip on r.
func (h Handle) Point(r Rect) Point {
	p := Point{r.X + r.W/2, r.Y + r.H/2}
	switch {
	case h.west():
		p.X = r.X
	case h.east():
		p.X = r.X + r.W
	}
	switch {
	case h.north():
		p.Y = r.Y
	case h.south():
		p.Y = r.Y + r.H
	}
	return p
}

// Resize applies a handle drag of (dx, dy) canvas units to orig. The edges
// opposite the handle stay put and both sides are floored at MinSize. With
// keepAspect the result is orig scaled uniformly.
func Resize(orig Rect, h Handle, dx, dy float64, keepAspect bool) Rect {
	if !h.Valid() {
		return orig
	}
	w, ht := orig.W, orig.H
	switch {
	case h.east():
		w = orig.W + dx
	case h.west():
		w = orig.W - dx
	}
	switch {
	case h.south():
		ht = orig.H + dy
	case h.north():
		ht = orig.H - dy
	}

	if keepAspect && orig.W > 0 && orig.H > 0 {
		var scale float64
		switch {
		case h.corner():
			scale = math.Max(w/orig.W, ht/orig.H)
		case h.east() || h.west():
			scale = w / orig.W
		default:
			scale = ht / orig.H
		}
		scale = math.Max(scale, math.Max(MinSize/orig.W, MinSize/orig.H))
		w = orig.W * scale
		ht = w / (orig.W / orig.H)
		if ht < MinSize {
			// Rounding can land a hair under the floor.
			ht = MinSize
		}
	} else {
		w = math.Max(MinSize, w)
		ht = math.Max(MinSize, ht)
	}

	out := Rect{X: orig.X, Y: orig.Y, W: w, H: ht}
	if h.west() {
		out.X = orig.X + orig.W - w
	}
	if h.north() {
		out.Y = orig.Y + orig.H - ht
	}
	return out
}
