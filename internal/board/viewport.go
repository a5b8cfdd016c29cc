package board

const (
	MinZoom = 0.1
	MaxZoom = 5.0
)

// Viewport maps screen coordinates onto the canvas. Origin is the screen
// position of the board's top-left corner, Pan is an extra offset in screen
// units, and Size is the visible area used to find the centre.
type Viewport struct {
	Origin Point
	Size   Point
	Zoom   float64
	Pan    Point
}

func NewViewport(width, height float64) Viewport {
	return Viewport{Size: Point{width, height}, Zoom: 1}
}

// ToCanvas converts a screen point to canvas space.
func ToCanvas(screen, origin Point, zoom float64, pan Point) Point {
	zoom = normalZoom(zoom)
	return Point{
		X: (screen.X - origin.X - pan.X) / zoom,
		Y: (screen.Y - origin.Y - pan.Y) / zoom,
	}
}

func (v Viewport) ToCanvas(screen Point) Point {
	return ToCanvas(screen, v.Origin, v.Zoom, v.Pan)
}

func (v Viewport) ToScreen(p Point) Point {
	zoom := normalZoom(v.Zoom)
	return Point{
		X: p.X*zoom + v.Origin.X + v.Pan.X,
		Y: p.Y*zoom + v.Origin.Y + v.Pan.Y,
	}
}

// Delta scales a screen-space movement into canvas units.
func (v Viewport) Delta(dx, dy float64) Point {
	zoom := normalZoom(v.Zoom)
	return Point{dx / zoom, dy / zoom}
}

// Center is the canvas point under the middle of the visible area.
func (v Viewport) Center() Point {
	return v.ToCanvas(Point{v.Origin.X + v.Size.X/2, v.Origin.Y + v.Size.Y/2})
}

// ZoomAt multiplies the zoom by factor while keeping the canvas point under
// screen fixed.
func (v Viewport) ZoomAt(screen Point, factor float64) Viewport {
	if factor <= 0 {
		return v
	}
	old := normalZoom(v.Zoom)
	next := old * factor
	if next < MinZoom {
		next = MinZoom
	}
	if next > MaxZoom {
		next = MaxZoom
	}
	anchor := v.ToCanvas(screen)
	v.Zoom = next
	v.Pan = Point{
		X: screen.X - v.Origin.X - anchor.X*next,
		Y: screen.Y - v.Origin.Y - anchor.Y*next,
	}
	return v
}

func (v Viewport) PanBy(dx, dy float64) Viewport {
	v.Pan = v.Pan.Add(Point{dx, dy})
	return v
}

func normalZoom(z float64) float64 {
	if z <= 0 {
		return 1
	}
	return z
}
