package board

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/blockstore"
)

// memStore is an in-memory blockstore.Store that records every call.
type memStore struct {
	mu     sync.Mutex
	blocks map[string]blockstore.Block
	calls  []string
	patch  map[string][]blockstore.Patch

	listErr   error
	createErr error
	updateErr error
	updateLag time.Duration
}

func newMemStore(blocks ...blockstore.Block) *memStore {
	s := &memStore{blocks: map[string]blockstore.Block{}, patch: map[string][]blockstore.Patch{}}
	for _, b := range blocks {
		s.blocks[b.ID] = b
	}
	return s
}

func (s *memStore) List(_ context.Context, boardID string) ([]blockstore.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "list:"+boardID)
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []blockstore.Block
	for _, b := range s.blocks {
		if b.BoardID == boardID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, b blockstore.Block) (blockstore.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "create:"+b.ID)
	if s.createErr != nil {
		return blockstore.Block{}, s.createErr
	}
	if _, ok := s.blocks[b.ID]; ok {
		return blockstore.Block{}, blockstore.ErrConflict
	}
	s.blocks[b.ID] = b
	return b, nil
}

func (s *memStore) Update(_ context.Context, id string, p blockstore.Patch) (blockstore.Block, error) {
	if s.updateLag > 0 {
		time.Sleep(s.updateLag)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "update:"+id)
	s.patch[id] = append(s.patch[id], p)
	if s.updateErr != nil {
		return blockstore.Block{}, s.updateErr
	}
	b, ok := s.blocks[id]
	if !ok {
		return blockstore.Block{}, fmt.Errorf("%w: %s", blockstore.ErrNotFound, id)
	}
	b = p.Apply(b)
	s.blocks[id] = b
	return b, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete:"+id)
	if _, ok := s.blocks[id]; !ok {
		return fmt.Errorf("%w: %s", blockstore.ErrNotFound, id)
	}
	delete(s.blocks, id)
	return nil
}

func (s *memStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *memStore) Patches(id string) []blockstore.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blockstore.Patch(nil), s.patch[id]...)
}

func (s *memStore) Block(id string) (blockstore.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	return b, ok
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

func (s *memStore) setUpdateErr(err error) {
	s.mu.Lock()
	s.updateErr = err
	s.mu.Unlock()
}

func (s *memStore) resetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.patch = map[string][]blockstore.Patch{}
	s.mu.Unlock()
}

func newTestLogger() (*log.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return logger, hook
}

func newTestSyncer(t *testing.T, store blockstore.Store, logger *log.Logger) *Syncer {
	t.Helper()
	s := NewSyncer(store, SyncOptions{Workers: 3, Debounce: 20 * time.Millisecond, Logger: logger})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func flush(t *testing.T, s *Syncer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func textBlock(id string, x, y float64, z int) blockstore.Block {
	return blockstore.Block{
		ID:            id,
		BoardID:       "b1",
		ContentType:   blockstore.ContentText,
		Content:       map[string]any{"width": 400.0, "height": 120.0, "html": "<p>" + id + "</p>"},
		PositionX:     x,
		PositionY:     y,
		PositionIndex: z,
	}
}

func imageBlock(id string, x, y, w, h float64, z int) blockstore.Block {
	return blockstore.Block{
		ID:            id,
		BoardID:       "b1",
		ContentType:   blockstore.ContentImage,
		Content:       map[string]any{"width": w, "height": h, "url": "/media/" + id + ".png"},
		PositionX:     x,
		PositionY:     y,
		PositionIndex: z,
	}
}

func gridBlock(id string, x, y float64, z int) blockstore.Block {
	return blockstore.Block{
		ID:          id,
		BoardID:     "b1",
		ContentType: blockstore.ContentText,
		Content: map[string]any{
			"width": 340.0, "height": 180.0,
			"subtype": "grid", "title": "Title", "secret": "Secret Info",
		},
		PositionX:     x,
		PositionY:     y,
		PositionIndex: z,
	}
}

// loadTestCanvas loads board b1 from store with a zoom-1 viewport whose
// origin is the screen origin.
func loadTestCanvas(t *testing.T, store *memStore) (*Canvas, *Syncer, *test.Hook) {
	t.Helper()
	logger, hook := newTestLogger()
	s := newTestSyncer(t, store, logger)
	n := 0
	c, err := Load(context.Background(), store, s, "b1", Options{
		Logger: logger,
		NewID: func() string {
			n++
			return fmt.Sprintf("new-%d", n)
		},
	})
	require.NoError(t, err)
	c.SetViewport(NewViewport(800, 600))
	t.Cleanup(c.Close)
	return c, s, hook
}
