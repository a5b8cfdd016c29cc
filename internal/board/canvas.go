package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"whiteboard/internal/blockstore"
)

// HandleSlop is the half-size, in screen units, of a resize grip's hit box.
const HandleSlop = 8.0

type Tool string

const (
	ToolSelect Tool = "select"
	ToolText   Tool = "text"
	ToolGrid   Tool = "grid"
	ToolImage  Tool = "image"
)

// Overrides tweaks a new item. Zero fields fall back to the kind's defaults.
type Overrides struct {
	W, H   float64
	HTML   string
	URL    string
	Title  string
	Secret string
}

// UploadedImage describes media that is ready to be placed on the board.
type UploadedImage struct {
	URL  string
	W, H float64
}

// ImageUploader stores raw image bytes and returns a URL for them.
type ImageUploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (UploadedImage, error)
}

type Options struct {
	Logger       *log.Logger
	Window       *Window
	HistoryLimit int
	// Uploader backs OnUploadImage.
	Uploader ImageUploader
	// NewID overrides uuid generation for new items.
	NewID func() string
}

// Canvas is the in-memory model of one board. It is not safe for
// concurrent use; a single UI loop owns it and persistence happens on the
// Syncer's goroutines.
type Canvas struct {
	boardID string
	store   blockstore.Store
	sync    *Syncer
	log     *log.Logger
	win     *Window
	upload  ImageUploader
	newID   func() string

	items   Snapshot
	history History
	view    Viewport
	tool    Tool
	active  string
	gesture *Gesture

	releaseKeys func()
	closed      bool
}

// Load fetches the board's blocks and builds a Canvas from them. Blocks of
// unsupported kinds are skipped. A store failure returns an error wrapping
// ErrLoad and no Canvas.
func Load(ctx context.Context, store blockstore.Store, syncer *Syncer, boardID string, opts Options) (*Canvas, error) {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Window == nil {
		opts.Window = NewWindow()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	c := &Canvas{
		boardID: boardID,
		store:   store,
		sync:    syncer,
		log:     opts.Logger,
		win:     opts.Window,
		upload:  opts.Uploader,
		newID:   opts.NewID,
		history: NewHistory(opts.HistoryLimit),
		view:    NewViewport(0, 0),
		tool:    ToolSelect,
	}
	items, err := c.fetch(ctx)
	if err != nil {
		c.log.WithField("board", boardID).Errorf("load failed, err: %v", err)
		return nil, err
	}
	c.items = items
	c.releaseKeys = c.win.Listen(Listener{Key: c.handleKey})
	c.log.WithField("board", boardID).Infof("board loaded, items: %d", len(items))
	return c, nil
}

func (c *Canvas) fetch(ctx context.Context) (Snapshot, error) {
	blocks, err := c.store.List(ctx, c.boardID)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLoad, c.boardID, err)
	}
	items := make(Snapshot, 0, len(blocks))
	for _, b := range blocks {
		it, err := ItemFromBlock(b)
		if err != nil {
			c.log.WithFields(c.fields(b.ID)).Warnf("skipping block, err: %v", err)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (c *Canvas) fields(id string) log.Fields {
	return log.Fields{"board": c.boardID, "item": id}
}

func (c *Canvas) BoardID() string   { return c.boardID }
func (c *Canvas) Window() *Window   { return c.win }
func (c *Canvas) Syncer() *Syncer   { return c.sync }
func (c *Canvas) Items() Snapshot   { return c.items.Clone() }
func (c *Canvas) Tool() Tool        { return c.tool }
func (c *Canvas) SetTool(t Tool)    { c.tool = t }
func (c *Canvas) Gesture() *Gesture { return c.gesture }

func (c *Canvas) Item(id string) (Item, bool) { return c.items.Get(id) }

func (c *Canvas) Active() (Item, bool) {
	if c.active == "" {
		return Item{}, false
	}
	return c.items.Get(c.active)
}

func (c *Canvas) ActiveID() string { return c.active }

func (c *Canvas) SetActive(id string) error {
	if id != "" && c.items.Index(id) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	c.active = id
	return nil
}

func (c *Canvas) Viewport() Viewport     { return c.view }
func (c *Canvas) SetViewport(v Viewport) { c.view = v }

func (c *Canvas) ZoomAt(screen Point, factor float64) { c.view = c.view.ZoomAt(screen, factor) }
func (c *Canvas) PanBy(dx, dy float64)                { c.view = c.view.PanBy(dx, dy) }

// Dragging and Resizing report the live gesture kind.
func (c *Canvas) Dragging() bool { return c.gesture != nil && c.gesture.kind == GestureDrag }
func (c *Canvas) Resizing() bool { return c.gesture != nil && c.gesture.kind == GestureResize }

func (c *Canvas) CanUndo() bool { return c.history.CanUndo() }
func (c *Canvas) CanRedo() bool { return c.history.CanRedo() }

// Drifted lists items whose last background write failed.
func (c *Canvas) Drifted() map[string]error { return c.sync.Failed() }

// setRect replaces an item's geometry in place. c.items never shares its
// backing array with a history snapshot.
func (c *Canvas) setRect(id string, r Rect) {
	if i := c.items.Index(id); i >= 0 {
		c.items[i].Rect = r
	}
}

func (c *Canvas) setBody(id string, b Body) {
	if i := c.items.Index(id); i >= 0 {
		c.items[i].Body = b
	}
}

// NewItem builds an unsaved item of kind k with its top-left corner at at.
func NewItem(id string, at Point, k Kind, o Overrides, z int) Item {
	w, h := defaultSize(k)
	if o.W > 0 {
		w = o.W
	}
	if o.H > 0 {
		h = o.H
	}
	if k == KindImage && (w < MinSize || h < MinSize) {
		// Images grow uniformly to the floor so later resizes keep the
		// source aspect.
		s := math.Max(MinSize/w, MinSize/h)
		w, h = w*s, h*s
	}
	var body Body
	switch k {
	case KindGrid:
		g := Grid{Title: DefaultGridTitle, Secret: DefaultGridSecret}
		if o.Title != "" {
			g.Title = o.Title
		}
		if o.Secret != "" {
			g.Secret = o.Secret
		}
		body = g
	case KindImage:
		body = Image{URL: o.URL}
	default:
		body = Text{HTML: o.HTML}
	}
	return Item{
		ID:   id,
		Rect: Rect{X: at.X, Y: at.Y, W: math.Max(MinSize, w), H: math.Max(MinSize, h)},
		Z:    z,
		Body: body,
	}
}

// Create persists a new item and, once the store accepts it, adds it to the
// board on top of every other item and makes it active. On failure the
// board is left untouched.
func (c *Canvas) Create(ctx context.Context, at Point, k Kind, o Overrides) (Item, error) {
	it := NewItem(c.newID(), at, k, o, c.items.MaxZ()+1)
	saved, err := c.store.Create(ctx, BlockFromItem(c.boardID, it))
	if err != nil {
		c.log.WithFields(c.fields(it.ID)).Errorf("create failed, err: %v, kind: %s", err, k)
		return Item{}, fmt.Errorf("create %s item: %w", k, err)
	}
	if saved.ID != "" {
		it.ID = saved.ID
	}
	c.history = c.history.Push(c.items)
	c.items = append(c.items.Clone(), it)
	c.active = it.ID
	c.log.WithFields(c.fields(it.ID)).Debugf("created %s item", k)
	return it, nil
}

// Delete removes an item locally and schedules its removal from the store.
func (c *Canvas) Delete(id string) error {
	i := c.items.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if c.gesture != nil && c.gesture.itemID == id {
		c.gesture.cancel()
	}
	c.history = c.history.Push(c.items)
	next := make(Snapshot, 0, len(c.items)-1)
	next = append(next, c.items[:i]...)
	c.items = append(next, c.items[i+1:]...)
	if c.active == id {
		c.active = ""
	}
	c.sync.Delete(id)
	return nil
}

func (c *Canvas) DeleteActive() error {
	if c.active == "" {
		return nil
	}
	return c.Delete(c.active)
}

// bringToFront lifts id above every other item. An item already strictly on
// top keeps its index.
func (c *Canvas) bringToFront(id string) {
	i := c.items.Index(id)
	if i < 0 {
		return
	}
	top := true
	max := math.MinInt
	for j, it := range c.items {
		if j == i {
			continue
		}
		if it.Z >= c.items[i].Z {
			top = false
		}
		if it.Z > max {
			max = it.Z
		}
	}
	if !top {
		c.items[i].Z = max + 1
	}
}

// HandleAt returns the resize grip of the active item under screen.
func (c *Canvas) HandleAt(screen Point) (Handle, bool) {
	it, ok := c.Active()
	if !ok || !it.Resizable() {
		return "", false
	}
	for _, h := range Handles {
		hp := c.view.ToScreen(h.Point(it.Rect))
		if math.Abs(hp.X-screen.X) <= HandleSlop && math.Abs(hp.Y-screen.Y) <= HandleSlop {
			return h, true
		}
	}
	return "", false
}

// PointerDown starts whatever gesture the press at screen begins: a resize
// on the active item's grip, a drag on the topmost item under the pointer,
// or a pan on empty canvas with the select tool. It returns nil when no
// gesture starts.
func (c *Canvas) PointerDown(screen Point) *Gesture {
	if c.gesture != nil {
		c.gesture.end(c.gesture.last)
	}
	if h, ok := c.HandleAt(screen); ok {
		return c.startGesture(GestureResize, c.active, h, screen)
	}
	if it, ok := c.items.TopAt(c.view.ToCanvas(screen)); ok {
		c.active = it.ID
		return c.startGesture(GestureDrag, it.ID, "", screen)
	}
	c.active = ""
	if c.tool == ToolSelect {
		return c.startGesture(GesturePan, "", "", screen)
	}
	return nil
}

func (c *Canvas) startGesture(kind GestureKind, id string, h Handle, screen Point) *Gesture {
	g := &Gesture{
		canvas:   c,
		kind:     kind,
		itemID:   id,
		handle:   h,
		start:    screen,
		last:     screen,
		startPan: c.view.Pan,
	}
	if id != "" {
		it, _ := c.items.Get(id)
		g.origin = it.Rect
		g.before = c.items.Clone()
		c.bringToFront(id)
	}
	g.release = c.win.Listen(Listener{Move: g.move, Up: g.end})
	c.gesture = g
	return g
}

// DoubleClick creates a text item at the pointer when a creation tool is
// selected and the pointer is over empty canvas. It reports whether an item
// was created.
func (c *Canvas) DoubleClick(ctx context.Context, screen Point) (Item, bool, error) {
	if c.tool == ToolSelect {
		return Item{}, false, nil
	}
	at := c.view.ToCanvas(screen)
	if _, hit := c.items.TopAt(at); hit {
		return Item{}, false, nil
	}
	it, err := c.Create(ctx, at, KindText, Overrides{})
	if err != nil {
		return Item{}, false, err
	}
	return it, true, nil
}

func (c *Canvas) textItem(id string) (Text, error) {
	it, ok := c.items.Get(id)
	if !ok {
		return Text{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	t, ok := it.Body.(Text)
	if !ok {
		return Text{}, fmt.Errorf("%w: %s is %s, want text", ErrWrongKind, id, it.Kind())
	}
	return t, nil
}

func (c *Canvas) gridItem(id string) (Grid, error) {
	it, ok := c.items.Get(id)
	if !ok {
		return Grid{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	g, ok := it.Body.(Grid)
	if !ok {
		return Grid{}, fmt.Errorf("%w: %s is %s, want grid", ErrWrongKind, id, it.Kind())
	}
	return g, nil
}

// SetHTML replaces a text item's body and writes it immediately.
func (c *Canvas) SetHTML(id, html string) error {
	return c.setHTML(id, html, c.sync.Update)
}

// SetHTMLDebounced is SetHTML for keystroke-rate edits.
func (c *Canvas) SetHTMLDebounced(id, html string) error {
	return c.setHTML(id, html, c.sync.UpdateDebounced)
}

func (c *Canvas) setHTML(id, html string, write func(string, blockstore.Patch)) error {
	t, err := c.textItem(id)
	if err != nil {
		return err
	}
	if t.HTML == html {
		return nil
	}
	c.setBody(id, Text{HTML: html})
	write(id, blockstore.Patch{Content: map[string]any{keyHTML: html}})
	return nil
}

// SetGridFields updates a grid card's title and secret, writing only the
// fields that changed.
func (c *Canvas) SetGridFields(id, title, secret string) error {
	return c.setGridFields(id, title, secret, c.sync.Update)
}

func (c *Canvas) SetGridFieldsDebounced(id, title, secret string) error {
	return c.setGridFields(id, title, secret, c.sync.UpdateDebounced)
}

func (c *Canvas) setGridFields(id, title, secret string, write func(string, blockstore.Patch)) error {
	g, err := c.gridItem(id)
	if err != nil {
		return err
	}
	content := map[string]any{}
	if g.Title != title {
		content[keyTitle] = title
		g.Title = title
	}
	if g.Secret != secret {
		content[keySecret] = secret
		g.Secret = secret
	}
	if len(content) == 0 {
		return nil
	}
	c.setBody(id, g)
	write(id, blockstore.Patch{Content: content})
	return nil
}

// ToggleSecret flips whether a grid card shows its secret. The flag is view
// state and is not written to the store.
func (c *Canvas) ToggleSecret(id string) (bool, error) {
	g, err := c.gridItem(id)
	if err != nil {
		return false, err
	}
	g.SecretShown = !g.SecretShown
	c.setBody(id, g)
	return g.SecretShown, nil
}

// Undo restores the previous snapshot and brings the store in line with it.
func (c *Canvas) Undo() bool {
	next, snap, ok := c.history.Undo(c.items)
	if !ok {
		return false
	}
	c.history = next
	c.restore(snap)
	return true
}

func (c *Canvas) Redo() bool {
	next, snap, ok := c.history.Redo(c.items)
	if !ok {
		return false
	}
	c.history = next
	c.restore(snap)
	return true
}

func (c *Canvas) restore(target Snapshot) {
	if c.gesture != nil {
		c.gesture.cancel()
	}
	from := c.items
	for _, it := range from {
		if target.Index(it.ID) < 0 {
			c.sync.Delete(it.ID)
		}
	}
	for _, it := range target {
		prev, ok := from.Get(it.ID)
		switch {
		case !ok:
			c.sync.Create(BlockFromItem(c.boardID, it))
		case prev != it:
			c.sync.Update(it.ID, diffPatch(prev, it))
		}
	}
	c.items = target
	if c.active != "" && target.Index(c.active) < 0 {
		c.active = ""
	}
}

// Reconcile waits for pending writes, then replaces the board with the
// store's current contents. History is kept.
func (c *Canvas) Reconcile(ctx context.Context) error {
	if c.gesture != nil {
		c.gesture.cancel()
	}
	if err := c.sync.Flush(ctx); err != nil && !errors.Is(err, ErrSyncerClosed) {
		return fmt.Errorf("flush before reconcile: %w", err)
	}
	items, err := c.fetch(ctx)
	if err != nil {
		c.log.WithField("board", c.boardID).Errorf("reconcile failed, err: %v", err)
		return err
	}
	c.items = items
	c.sync.ResetFailed()
	if c.active != "" && items.Index(c.active) < 0 {
		c.active = ""
	}
	return nil
}

func (c *Canvas) handleKey(key string) bool {
	if c.closed {
		return false
	}
	switch key {
	case "delete", "backspace":
		if c.active == "" {
			return false
		}
		if err := c.DeleteActive(); err != nil {
			c.log.WithFields(c.fields(c.active)).Errorf("delete failed, err: %v", err)
		}
		return true
	case "esc":
		if c.gesture != nil {
			c.gesture.revert()
		}
		c.active = ""
		return true
	case "ctrl+z":
		return c.Undo()
	case "ctrl+y", "ctrl+shift+z":
		return c.Redo()
	}
	return false
}

// Close ends any live gesture, flushing its geometry, and releases the
// canvas's window listeners. The Syncer is left running for its owner to
// close.
func (c *Canvas) Close() {
	if c.closed {
		return
	}
	if c.gesture != nil {
		c.gesture.end(c.gesture.last)
	}
	if c.releaseKeys != nil {
		c.releaseKeys()
	}
	c.closed = true
}

// OnAddText creates a text item at the viewport centre.
func (c *Canvas) OnAddText(ctx context.Context) (Item, error) {
	return c.Create(ctx, c.view.Center(), KindText, Overrides{})
}

// OnAddGridBox creates a grid card at the viewport centre.
func (c *Canvas) OnAddGridBox(ctx context.Context) (Item, error) {
	return c.Create(ctx, c.view.Center(), KindGrid, Overrides{})
}

// OnUploadImage stores r through the configured uploader and places the
// result at the viewport centre.
func (c *Canvas) OnUploadImage(ctx context.Context, name string, r io.Reader) (Item, error) {
	if c.upload == nil {
		return Item{}, ErrNoUploader
	}
	img, err := c.upload.Upload(ctx, name, r)
	if err != nil {
		c.log.WithField("board", c.boardID).Errorf("upload failed, err: %v, name: %s", err, name)
		return Item{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return c.Create(ctx, c.view.Center(), KindImage, Overrides{URL: img.URL, W: img.W, H: img.H})
}

func (c *Canvas) OnUndo() bool { return c.Undo() }
func (c *Canvas) OnRedo() bool { return c.Redo() }
