package board

import "sort"

// Listener receives window-level input. Any field may be nil.
type Listener struct {
	Move func(screen Point)
	Up   func(screen Point)
	// Key returns true when it consumed the key.
	Key func(key string) bool
}

// Window is the registry of window-level listeners. Pointer events that
// belong to a gesture keep flowing to it even when the pointer leaves the
// item, and a listener only lives between Listen and its release.
type Window struct {
	next      int
	listeners map[int]Listener
}

func NewWindow() *Window {
	return &Window{listeners: map[int]Listener{}}
}

// Listen registers l and returns its release func. Releasing twice is a no-op.
func (w *Window) Listen(l Listener) (release func()) {
	w.next++
	id := w.next
	w.listeners[id] = l
	return func() { delete(w.listeners, id) }
}

// Len reports how many listeners are registered.
func (w *Window) Len() int { return len(w.listeners) }

// ids returns registration ids in order so dispatch is deterministic and
// safe against listeners releasing themselves mid-dispatch.
func (w *Window) ids() []int {
	ids := make([]int, 0, len(w.listeners))
	for id := range w.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (w *Window) PointerMove(p Point) {
	for _, id := range w.ids() {
		if l, ok := w.listeners[id]; ok && l.Move != nil {
			l.Move(p)
		}
	}
}

func (w *Window) PointerUp(p Point) {
	for _, id := range w.ids() {
		if l, ok := w.listeners[id]; ok && l.Up != nil {
			l.Up(p)
		}
	}
}

// KeyDown offers key to listeners, newest first, until one consumes it.
func (w *Window) KeyDown(key string) bool {
	ids := w.ids()
	for i := len(ids) - 1; i >= 0; i-- {
		if l, ok := w.listeners[ids[i]]; ok && l.Key != nil && l.Key(key) {
			return true
		}
	}
	return false
}
