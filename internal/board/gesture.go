package board

import "whiteboard/internal/blockstore"

type GestureKind int

const (
	GestureDrag GestureKind = iota
	GestureResize
	GesturePan
)

func (k GestureKind) String() string {
	switch k {
	case GestureDrag:
		return "drag"
	case GestureResize:
		return "resize"
	default:
		return "pan"
	}
}

// Gesture is one pointer-down to pointer-up interaction. While it is live
// it holds move and up listeners on the canvas window; they are released
// when the gesture ends, however it ends.
type Gesture struct {
	canvas *Canvas
	kind   GestureKind
	itemID string
	handle Handle

	start    Point
	last     Point
	origin   Rect
	startPan Point
	before   Snapshot

	release func()
	done    bool
}

func (g *Gesture) Kind() GestureKind { return g.kind }
func (g *Gesture) ItemID() string    { return g.itemID }
func (g *Gesture) Handle() Handle    { return g.handle }
func (g *Gesture) Done() bool        { return g.done }

func (g *Gesture) move(p Point) {
	if g.done {
		return
	}
	g.last = p
	c := g.canvas
	switch g.kind {
	case GesturePan:
		c.view.Pan = g.startPan.Add(p.Sub(g.start))
	case GestureDrag:
		d := c.view.Delta(p.X-g.start.X, p.Y-g.start.Y)
		r := g.origin
		r.X += d.X
		r.Y += d.Y
		c.setRect(g.itemID, r)
	case GestureResize:
		it, ok := c.items.Get(g.itemID)
		if !ok {
			return
		}
		d := c.view.Delta(p.X-g.start.X, p.Y-g.start.Y)
		c.setRect(g.itemID, Resize(g.origin, g.handle, d.X, d.Y, it.KeepsAspect()))
	}
}

func (g *Gesture) end(p Point) {
	if g.done {
		return
	}
	g.move(p)
	g.finish(true)
}

// cancel stops the gesture without writing anything. Callers replace or
// remove the item themselves.
func (g *Gesture) cancel() {
	g.finish(false)
}

// revert puts the item (or the pan) back where the gesture found it, so the
// board matches what the store already holds, then stops the gesture.
func (g *Gesture) revert() {
	if g.done {
		return
	}
	c := g.canvas
	switch g.kind {
	case GesturePan:
		c.view.Pan = g.startPan
	default:
		if i := c.items.Index(g.itemID); i >= 0 {
			c.items[i].Rect = g.origin
			if was, ok := g.before.Get(g.itemID); ok {
				c.items[i].Z = was.Z
			}
		}
	}
	g.finish(false)
}

func (g *Gesture) finish(flush bool) {
	if g.done {
		return
	}
	g.done = true
	g.release()
	c := g.canvas
	if c.gesture == g {
		c.gesture = nil
	}
	if !flush || g.kind == GesturePan {
		return
	}

	it, ok := c.items.Get(g.itemID)
	if !ok {
		return
	}
	was, _ := g.before.Get(g.itemID)

	var p blockstore.Patch
	moved := it.Rect != g.origin
	if moved {
		p.PositionX = blockstore.Float(it.X)
		p.PositionY = blockstore.Float(it.Y)
		if it.W != g.origin.W || it.H != g.origin.H {
			p.Content = map[string]any{keyWidth: it.W, keyHeight: it.H}
		}
		c.history = c.history.Push(g.before)
	}
	if it.Z != was.Z {
		p.PositionIndex = blockstore.Int(it.Z)
	}
	if !p.Empty() {
		c.log.WithFields(c.fields(g.itemID)).Debugf("%s ended, patch: %s", g.kind, p)
		c.sync.Update(g.itemID, p)
	}
}
