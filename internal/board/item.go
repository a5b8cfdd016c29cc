package board

// MinSize is the smallest width or height any item can be resized to.
const MinSize = 50.0

type Kind string

const (
	KindText  Kind = "text"
	KindGrid  Kind = "grid"
	KindImage Kind = "image"
)

// Body is the kind-specific payload of an item. It is implemented only by
// Text, Grid and Image; switch on the concrete type to handle each.
type Body interface {
	Kind() Kind
	body()
}

// Text is free-form rich text, stored as serialized HTML.
type Text struct {
	HTML string
}

// Grid is a two-field card: a title and a maskable secret value.
type Grid struct {
	Title       string
	Secret      string
	SecretShown bool
}

// Image is a picture referenced by URL.
type Image struct {
	URL string
}

func (Text) Kind() Kind  { return KindText }
func (Grid) Kind() Kind  { return KindGrid }
func (Image) Kind() Kind { return KindImage }

func (Text) body()  {}
func (Grid) body()  {}
func (Image) body() {}

type Point struct {
	X, Y float64
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Rect is an axis-aligned box in canvas space; X/Y is the top-left corner.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

func (r Rect) BottomRight() Point { return Point{r.X + r.W, r.Y + r.H} }

// Item is one object placed on the board.
type Item struct {
	ID string
	Rect
	Z    int
	Body Body
}

func (it Item) Kind() Kind {
	if it.Body == nil {
		return KindText
	}
	return it.Body.Kind()
}

// Resizable reports whether the item exposes resize handles. Plain text
// items grow with their content instead.
func (it Item) Resizable() bool {
	switch it.Body.(type) {
	case Image, Grid:
		return true
	default:
		return false
	}
}

// KeepsAspect reports whether resizing must preserve the width/height ratio.
func (it Item) KeepsAspect() bool {
	_, ok := it.Body.(Image)
	return ok
}

// Snapshot is a full copy of a board's items. Snapshots held by History are
// never mutated; Canvas always clones before writing.
type Snapshot []Item

func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

func (s Snapshot) Index(id string) int {
	for i := range s {
		if s[i].ID == id {
			return i
		}
	}
	return -1
}

func (s Snapshot) Get(id string) (Item, bool) {
	if i := s.Index(id); i >= 0 {
		return s[i], true
	}
	return Item{}, false
}

// MaxZ returns the highest stacking index, or 0 for an empty board.
func (s Snapshot) MaxZ() int {
	max := 0
	for i, it := range s {
		if i == 0 || it.Z > max {
			max = it.Z
		}
	}
	return max
}

// TopAt returns the highest item containing p.
func (s Snapshot) TopAt(p Point) (Item, bool) {
	best := -1
	for i, it := range s {
		if !it.Contains(p) {
			continue
		}
		if best < 0 || it.Z >= s[best].Z {
			best = i
		}
	}
	if best < 0 {
		return Item{}, false
	}
	return s[best], true
}

// Equal compares by id set and field values, ignoring order.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for _, it := range s {
		other, ok := o.Get(it.ID)
		if !ok || other != it {
			return false
		}
	}
	return true
}
