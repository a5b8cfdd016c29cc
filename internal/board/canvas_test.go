package board

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/blockstore"
)

func TestLoadSkipsUnsupportedBlocks(t *testing.T) {
	shape := blockstore.Block{ID: "s", BoardID: "b1", ContentType: blockstore.ContentShape}
	other := textBlock("elsewhere", 0, 0, 1)
	other.BoardID = "b2"
	store := newMemStore(textBlock("t", 0, 0, 1), gridBlock("g", 500, 0, 2), shape, other)

	c, _, hook := loadTestCanvas(t, store)
	items := c.Items()
	assert.Len(t, items, 2)
	_, ok := c.Item("s")
	assert.False(t, ok)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel && e.Data["item"] == "s" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestLoadFailureReturnsNoCanvas(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("connection refused")
	logger, _ := newTestLogger()
	s := newTestSyncer(t, store, logger)

	c, err := Load(context.Background(), store, s, "b1", Options{Logger: logger})
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorContains(t, err, "connection refused")
}

func TestCreateStacksOnTopAndActivates(t *testing.T) {
	store := newMemStore(textBlock("a", 0, 0, 4), textBlock("b", 0, 0, 9))
	c, _, _ := loadTestCanvas(t, store)

	it, err := c.Create(context.Background(), Point{100, 100}, KindGrid, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, 10, it.Z)
	assert.Equal(t, Rect{100, 100, DefaultGridW, DefaultGridH}, it.Rect)
	assert.Equal(t, Grid{Title: DefaultGridTitle, Secret: DefaultGridSecret}, it.Body)
	assert.Equal(t, it.ID, c.ActiveID())
	assert.True(t, c.CanUndo())

	saved, ok := store.Block(it.ID)
	require.True(t, ok)
	assert.Equal(t, "grid", saved.Content["subtype"])
	assert.Equal(t, 10, saved.PositionIndex)
}

func TestNewItemFloorsSizes(t *testing.T) {
	img := NewItem("i", Point{}, KindImage, Overrides{URL: "/m.png", W: 100, H: 20}, 1)
	assert.Equal(t, 250.0, img.W)
	assert.Equal(t, 50.0, img.H)
	assert.Equal(t, 5.0, img.W/img.H)

	grid := NewItem("g", Point{}, KindGrid, Overrides{W: 100, H: 20}, 1)
	assert.Equal(t, Rect{0, 0, 100, 50}, grid.Rect)

	big := NewItem("b", Point{}, KindImage, Overrides{W: 300, H: 150}, 1)
	assert.Equal(t, Rect{0, 0, 300, 150}, big.Rect)
}

func TestCreateFailureLeavesBoardUntouched(t *testing.T) {
	store := newMemStore(textBlock("a", 0, 0, 1))
	c, _, hook := loadTestCanvas(t, store)
	store.createErr = errors.New("disk full")

	_, err := c.Create(context.Background(), Point{}, KindText, Overrides{})
	require.Error(t, err)
	assert.Len(t, c.Items(), 1)
	assert.False(t, c.CanUndo())
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
}

func TestOnAddGridBoxUsesViewportCentre(t *testing.T) {
	c, _, _ := loadTestCanvas(t, newMemStore())
	c.SetViewport(NewViewport(200, 200))

	it, err := c.OnAddGridBox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, it.X)
	assert.Equal(t, 100.0, it.Y)
	assert.Equal(t, KindGrid, it.Kind())

	txt, err := c.OnAddText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindText, txt.Kind())
	assert.Greater(t, txt.Z, it.Z)
}

type fakeUploader struct{ got string }

func (u *fakeUploader) Upload(_ context.Context, name string, r io.Reader) (UploadedImage, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return UploadedImage{}, err
	}
	u.got = string(b)
	return UploadedImage{URL: "/media/" + name, W: 400, H: 300}, nil
}

func TestOnUploadImage(t *testing.T) {
	store := newMemStore()
	logger, _ := newTestLogger()
	s := newTestSyncer(t, store, logger)
	up := &fakeUploader{}
	c, err := Load(context.Background(), store, s, "b1", Options{Logger: logger, Uploader: up})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	it, err := c.OnUploadImage(context.Background(), "cat.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", up.got)
	assert.Equal(t, Image{URL: "/media/cat.png"}, it.Body)
	assert.Equal(t, 400.0, it.W)
	assert.Equal(t, 300.0, it.H)

	saved, ok := store.Block(it.ID)
	require.True(t, ok)
	assert.Equal(t, blockstore.ContentImage, saved.ContentType)
}

func TestOnUploadImageWithoutUploader(t *testing.T) {
	c, _, _ := loadTestCanvas(t, newMemStore())
	_, err := c.OnUploadImage(context.Background(), "x.png", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoUploader)
	assert.Empty(t, c.Items())
}

func TestGridBoxLifecycleAgainstStore(t *testing.T) {
	store := newMemStore()
	c, s, _ := loadTestCanvas(t, store)
	c.SetViewport(NewViewport(200, 200))

	it, err := c.OnAddGridBox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"list:b1", "create:" + it.ID}, store.Calls())
	saved, _ := store.Block(it.ID)
	assert.Equal(t, blockstore.ContentText, saved.ContentType)
	assert.Equal(t, "grid", saved.Content["subtype"])
	assert.Equal(t, "Title", saved.Content["title"])
	assert.Equal(t, "Secret Info", saved.Content["secret"])
	assert.Equal(t, 340.0, saved.Content["width"])
	assert.Equal(t, 180.0, saved.Content["height"])

	require.NoError(t, c.Delete(it.ID))
	flush(t, s)
	assert.Equal(t, []string{"list:b1", "create:" + it.ID, "delete:" + it.ID}, store.Calls())
	assert.Empty(t, c.Items())
}

func TestLoadingTwiceIsStable(t *testing.T) {
	store := newMemStore(textBlock("t", 1, 2, 1), gridBlock("g", 3, 4, 2), imageBlock("i", 5, 6, 320, 240, 3))
	first, _, _ := loadTestCanvas(t, store)
	second, _, _ := loadTestCanvas(t, store)
	assert.True(t, first.Items().Equal(second.Items()))
	assert.Len(t, first.Items(), 3)
}

func TestDragFlushesOnceAndReleasesListeners(t *testing.T) {
	store := newMemStore(textBlock("a", 100, 100, 1))
	c, s, _ := loadTestCanvas(t, store)
	win := c.Window()
	base := win.Len()
	c.SetViewport(Viewport{Size: Point{800, 600}, Zoom: 2})

	g := c.PointerDown(Point{250, 250})
	require.NotNil(t, g)
	assert.Equal(t, GestureDrag, g.Kind())
	assert.True(t, c.Dragging())
	assert.Equal(t, base+1, win.Len())

	for i := 1; i <= 10; i++ {
		win.PointerMove(Point{250 + float64(i)*4, 250 + float64(i)*2})
	}
	it, _ := c.Item("a")
	assert.Equal(t, 120.0, it.X)
	assert.Equal(t, 110.0, it.Y)
	flush(t, s)
	assert.Empty(t, store.Patches("a"), "no writes while dragging")

	win.PointerUp(Point{290, 270})
	assert.Equal(t, base, win.Len())
	assert.False(t, c.Dragging())
	flush(t, s)

	patches := store.Patches("a")
	require.Len(t, patches, 1)
	assert.Equal(t, 120.0, *patches[0].PositionX)
	assert.Equal(t, 110.0, *patches[0].PositionY)
	assert.Nil(t, patches[0].Content)

	require.True(t, c.Undo())
	it, _ = c.Item("a")
	assert.Equal(t, 100.0, it.X)
	flush(t, s)
	b, _ := store.Block("a")
	assert.Equal(t, 100.0, b.PositionX)
}

func TestDragAtHalfZoomScalesDelta(t *testing.T) {
	store := newMemStore(textBlock("a", 100, 100, 1))
	c, s, _ := loadTestCanvas(t, store)
	c.SetViewport(Viewport{Size: Point{800, 600}, Zoom: 0.5})

	require.NotNil(t, c.PointerDown(Point{60, 60}))
	c.Window().PointerMove(Point{160, 60})
	c.Window().PointerUp(Point{160, 60})

	it, _ := c.Item("a")
	assert.Equal(t, 300.0, it.X)
	assert.Equal(t, 100.0, it.Y)
	flush(t, s)
	patches := store.Patches("a")
	require.Len(t, patches, 1)
	assert.Equal(t, 300.0, *patches[0].PositionX)
}

func TestEscRevertsLiveDrag(t *testing.T) {
	store := newMemStore(textBlock("a", 100, 100, 1), textBlock("b", 1000, 1000, 5))
	c, s, _ := loadTestCanvas(t, store)
	win := c.Window()
	base := win.Len()

	require.NotNil(t, c.PointerDown(Point{110, 110}))
	win.PointerMove(Point{310, 310})
	it, _ := c.Item("a")
	require.Equal(t, 300.0, it.X)
	require.Equal(t, 6, it.Z)

	assert.True(t, win.KeyDown("esc"))
	assert.Equal(t, base, win.Len())
	assert.False(t, c.Dragging())
	win.PointerUp(Point{310, 310})

	it, _ = c.Item("a")
	assert.Equal(t, Rect{100, 100, 400, 120}, it.Rect)
	assert.Equal(t, 1, it.Z)
	assert.Empty(t, c.ActiveID())
	assert.False(t, c.CanUndo())
	flush(t, s)
	assert.Empty(t, store.Patches("a"))

	again, _, _ := loadTestCanvas(t, store)
	assert.True(t, c.Items().Equal(again.Items()))
}

func TestEscRevertsLiveResizeAndPan(t *testing.T) {
	store := newMemStore(imageBlock("img", 0, 0, 200, 100, 1))
	c, s, _ := loadTestCanvas(t, store)
	require.NoError(t, c.SetActive("img"))

	require.NotNil(t, c.PointerDown(Point{200, 50}))
	require.True(t, c.Resizing())
	c.Window().PointerMove(Point{250, 50})
	assert.True(t, c.Window().KeyDown("esc"))
	it, _ := c.Item("img")
	assert.Equal(t, Rect{0, 0, 200, 100}, it.Rect)

	require.NotNil(t, c.PointerDown(Point{700, 500}))
	c.Window().PointerMove(Point{720, 530})
	assert.True(t, c.Window().KeyDown("esc"))
	assert.Equal(t, Point{}, c.Viewport().Pan)

	flush(t, s)
	assert.Empty(t, store.Patches("img"))
}

func TestResizeImageKeepsAspect(t *testing.T) {
	store := newMemStore(imageBlock("img", 0, 0, 200, 100, 1))
	c, s, _ := loadTestCanvas(t, store)
	require.NoError(t, c.SetActive("img"))

	h, ok := c.HandleAt(Point{203, 52})
	require.True(t, ok)
	require.Equal(t, HandleE, h)

	g := c.PointerDown(Point{200, 50})
	require.NotNil(t, g)
	assert.True(t, c.Resizing())
	c.Window().PointerMove(Point{250, 50})
	c.Window().PointerUp(Point{250, 50})

	it, _ := c.Item("img")
	assert.Equal(t, Rect{0, 0, 250, 125}, it.Rect)
	flush(t, s)
	patches := store.Patches("img")
	require.Len(t, patches, 1)
	assert.Equal(t, 250.0, patches[0].Content["width"])
	assert.Equal(t, 125.0, patches[0].Content["height"])
}

func TestHandleHitBox(t *testing.T) {
	c, _, _ := loadTestCanvas(t, newMemStore(imageBlock("img", 0, 0, 200, 100, 1)))
	require.NoError(t, c.SetActive("img"))

	h, ok := c.HandleAt(Point{200 + HandleSlop, 50 - HandleSlop})
	require.True(t, ok)
	assert.Equal(t, HandleE, h)
	_, ok = c.HandleAt(Point{200 + HandleSlop + 1, 50})
	assert.False(t, ok)
	_, ok = c.HandleAt(Point{200, 50 + HandleSlop + 1})
	assert.False(t, ok)
}

func TestTextItemsHaveNoHandles(t *testing.T) {
	c, _, _ := loadTestCanvas(t, newMemStore(textBlock("t", 0, 0, 1)))
	require.NoError(t, c.SetActive("t"))
	_, ok := c.HandleAt(Point{400, 60})
	assert.False(t, ok)
}

func TestPointerDownBringsToFront(t *testing.T) {
	store := newMemStore(textBlock("low", 0, 0, 1), textBlock("high", 500, 500, 7), textBlock("mid", 1000, 0, 3))
	c, s, _ := loadTestCanvas(t, store)

	c.PointerDown(Point{10, 10})
	c.Window().PointerUp(Point{10, 10})

	low, _ := c.Item("low")
	for _, it := range c.Items() {
		if it.ID != "low" {
			assert.Greater(t, low.Z, it.Z)
		}
	}
	assert.Equal(t, "low", c.ActiveID())
	flush(t, s)
	patches := store.Patches("low")
	require.Len(t, patches, 1)
	assert.Equal(t, 8, *patches[0].PositionIndex)
	assert.Nil(t, patches[0].PositionX)
	assert.False(t, c.CanUndo(), "a click without movement is not an undo step")

	// Already on top: a second click writes nothing.
	store.resetCalls()
	c.PointerDown(Point{10, 10})
	c.Window().PointerUp(Point{10, 10})
	flush(t, s)
	assert.Empty(t, store.Patches("low"))
}

func TestPointerDownOnEmptyCanvas(t *testing.T) {
	c, _, _ := loadTestCanvas(t, newMemStore(textBlock("a", 0, 0, 1)))
	require.NoError(t, c.SetActive("a"))

	g := c.PointerDown(Point{700, 500})
	require.NotNil(t, g)
	assert.Equal(t, GesturePan, g.Kind())
	assert.Empty(t, c.ActiveID())

	c.Window().PointerMove(Point{720, 530})
	c.Window().PointerUp(Point{720, 530})
	assert.Equal(t, Point{20, 30}, c.Viewport().Pan)

	c.SetTool(ToolText)
	assert.Nil(t, c.PointerDown(Point{700, 500}))
}

func TestDoubleClickCreatesTextOnlyWithCreationTool(t *testing.T) {
	store := newMemStore(textBlock("a", 0, 0, 1))
	c, _, _ := loadTestCanvas(t, store)
	ctx := context.Background()

	_, created, err := c.DoubleClick(ctx, Point{600, 400})
	require.NoError(t, err)
	assert.False(t, created)

	c.SetTool(ToolGrid)
	_, created, err = c.DoubleClick(ctx, Point{10, 10})
	require.NoError(t, err)
	assert.False(t, created, "double-click on an item does not create")

	it, created, err := c.DoubleClick(ctx, Point{600, 400})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, KindText, it.Kind())
	assert.Equal(t, Point{600, 400}, Point{it.X, it.Y})
	assert.Len(t, c.Items(), 2)
}

func TestUndoRedoReconcilesStore(t *testing.T) {
	store := newMemStore(textBlock("a", 0, 0, 1))
	c, s, _ := loadTestCanvas(t, store)
	ctx := context.Background()
	initial := c.Items()

	g, err := c.Create(ctx, Point{100, 100}, KindGrid, Overrides{})
	require.NoError(t, err)
	require.NoError(t, c.Delete("a"))
	flush(t, s)
	afterOps := c.Items()
	assert.Equal(t, 1, store.Len())

	require.True(t, c.Undo())
	require.True(t, c.Undo())
	assert.False(t, c.Undo())
	assert.True(t, c.Items().Equal(initial))
	flush(t, s)
	_, ok := store.Block("a")
	assert.True(t, ok, "undoing a delete recreates the block")
	_, ok = store.Block(g.ID)
	assert.False(t, ok, "undoing a create deletes the block")

	require.True(t, c.Redo())
	require.True(t, c.Redo())
	assert.False(t, c.Redo())
	assert.True(t, c.Items().Equal(afterOps))
	flush(t, s)
	_, ok = store.Block("a")
	assert.False(t, ok)
	_, ok = store.Block(g.ID)
	assert.True(t, ok)
	assert.Empty(t, s.Failed())
}

func TestNewMutationClearsRedo(t *testing.T) {
	c, _, _ := loadTestCanvas(t, newMemStore())
	ctx := context.Background()

	_, err := c.OnAddText(ctx)
	require.NoError(t, err)
	require.True(t, c.OnUndo())
	require.True(t, c.CanRedo())

	_, err = c.OnAddText(ctx)
	require.NoError(t, err)
	assert.False(t, c.CanRedo())
	assert.False(t, c.OnRedo())
}

func TestDeleteUnknownItem(t *testing.T) {
	c, _, _ := loadTestCanvas(t, newMemStore())
	assert.ErrorIs(t, c.Delete("nope"), ErrUnknownItem)
	assert.ErrorIs(t, c.SetActive("nope"), ErrUnknownItem)
}

func TestKeyboardShortcuts(t *testing.T) {
	store := newMemStore(textBlock("a", 0, 0, 1))
	c, s, _ := loadTestCanvas(t, store)
	win := c.Window()

	assert.False(t, win.KeyDown("delete"), "nothing selected")
	require.NoError(t, c.SetActive("a"))
	assert.True(t, win.KeyDown("delete"))
	assert.Empty(t, c.Items())

	assert.True(t, win.KeyDown("ctrl+z"))
	assert.Len(t, c.Items(), 1)
	assert.True(t, win.KeyDown("ctrl+y"))
	assert.Empty(t, c.Items())
	flush(t, s)
	assert.Equal(t, 0, store.Len())
}

func TestContentEditsSendOnlyChangedKeys(t *testing.T) {
	store := newMemStore(textBlock("t", 0, 0, 1), gridBlock("g", 500, 0, 2))
	c, s, _ := loadTestCanvas(t, store)

	require.NoError(t, c.SetHTML("t", "<p>new</p>"))
	require.NoError(t, c.SetGridFields("g", "Title", "p@ss"))
	require.NoError(t, c.SetGridFields("g", "Title", "p@ss"))
	flush(t, s)

	assert.Equal(t, []blockstore.Patch{{Content: map[string]any{"html": "<p>new</p>"}}}, store.Patches("t"))
	assert.Equal(t, []blockstore.Patch{{Content: map[string]any{"secret": "p@ss"}}}, store.Patches("g"))

	it, _ := c.Item("g")
	assert.Equal(t, Grid{Title: "Title", Secret: "p@ss"}, it.Body)

	assert.ErrorIs(t, c.SetHTML("g", "x"), ErrWrongKind)
	assert.ErrorIs(t, c.SetGridFields("t", "a", "b"), ErrWrongKind)
	assert.ErrorIs(t, c.SetHTML("zzz", "x"), ErrUnknownItem)
}

func TestDebouncedEditsCoalesce(t *testing.T) {
	store := newMemStore(textBlock("t", 0, 0, 1))
	c, s, _ := loadTestCanvas(t, store)

	for _, html := range []string{"h", "he", "hel", "hell", "hello"} {
		require.NoError(t, c.SetHTMLDebounced("t", html))
	}
	flush(t, s)
	patches := store.Patches("t")
	require.Len(t, patches, 1)
	assert.Equal(t, "hello", patches[0].Content["html"])
}

func TestToggleSecretIsLocal(t *testing.T) {
	store := newMemStore(gridBlock("g", 0, 0, 1))
	c, s, _ := loadTestCanvas(t, store)

	shown, err := c.ToggleSecret("g")
	require.NoError(t, err)
	assert.True(t, shown)
	shown, err = c.ToggleSecret("g")
	require.NoError(t, err)
	assert.False(t, shown)

	flush(t, s)
	assert.Empty(t, store.Patches("g"))
	assert.False(t, c.CanUndo())

	// Undo across a toggle restores the flag locally without writing it.
	_, err = c.Create(context.Background(), Point{500, 0}, KindText, Overrides{})
	require.NoError(t, err)
	_, err = c.ToggleSecret("g")
	require.NoError(t, err)
	require.True(t, c.Undo())
	g, _ := c.Item("g")
	assert.False(t, g.Body.(Grid).SecretShown)
	flush(t, s)
	assert.Empty(t, store.Patches("g"))
}

func TestReconcileReplacesModel(t *testing.T) {
	store := newMemStore(textBlock("a", 0, 0, 1))
	c, s, _ := loadTestCanvas(t, store)

	store.setUpdateErr(errors.New("offline"))
	c.PointerDown(Point{10, 10})
	c.Window().PointerUp(Point{60, 10})
	flush(t, s)
	assert.Contains(t, c.Drifted(), "a")

	store.setUpdateErr(nil)
	_, err := store.Create(context.Background(), textBlock("remote", 900, 0, 5))
	require.NoError(t, err)

	require.NoError(t, c.Reconcile(context.Background()))
	assert.Empty(t, c.Drifted())
	assert.Len(t, c.Items(), 2)
	a, _ := c.Item("a")
	assert.Equal(t, 0.0, a.X, "store state wins")
}

func TestCloseReleasesListeners(t *testing.T) {
	store := newMemStore(textBlock("a", 0, 0, 1))
	logger, _ := newTestLogger()
	s := newTestSyncer(t, store, logger)
	win := NewWindow()

	c, err := Load(context.Background(), store, s, "b1", Options{Logger: logger, Window: win})
	require.NoError(t, err)
	assert.Equal(t, 1, win.Len())

	c.PointerDown(Point{10, 10})
	win.PointerMove(Point{40, 10})
	assert.Equal(t, 2, win.Len())

	c.Close()
	c.Close()
	assert.Equal(t, 0, win.Len())
	assert.Nil(t, c.Gesture())

	flush(t, s)
	b, _ := store.Block("a")
	assert.Equal(t, 30.0, b.PositionX, "a gesture cut short by close still saves")
}

func TestDeleteDuringDragCancelsGesture(t *testing.T) {
	store := newMemStore(textBlock("a", 0, 0, 1))
	c, s, _ := loadTestCanvas(t, store)
	base := c.Window().Len()

	c.PointerDown(Point{10, 10})
	c.Window().PointerMove(Point{30, 10})
	require.NoError(t, c.Delete("a"))
	assert.Equal(t, base, c.Window().Len())
	c.Window().PointerUp(Point{50, 10})

	flush(t, s)
	assert.Empty(t, store.Patches("a"))
	assert.Equal(t, 0, store.Len())
}
