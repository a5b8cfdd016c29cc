package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"whiteboard/internal/blockstore"
)

const (
	DefaultSyncWorkers = 4
	DefaultDebounce    = 600 * time.Millisecond
	DefaultSyncTimeout = 30 * time.Second

	syncQueueSize = 1024
)

var ErrSyncerClosed = errors.New("syncer closed")

type SyncOptions struct {
	Workers  int
	Debounce time.Duration
	Timeout  time.Duration
	Logger   *log.Logger
}

type syncOp int

const (
	opCreate syncOp = iota
	opUpdate
	opDelete
	opBarrier
)

func (o syncOp) String() string {
	switch o {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	default:
		return "barrier"
	}
}

type syncJob struct {
	op    syncOp
	id    string
	block blockstore.Block
	patch blockstore.Patch
	done  chan struct{}
}

type pendingPatch struct {
	patch blockstore.Patch
	timer *time.Timer
}

// Syncer writes item changes to the Block Store in the background. Jobs for
// one item always land on the same worker, so they reach the store in the
// order they were issued. Failures are logged and remembered per item until
// a later write for that item succeeds.
type Syncer struct {
	store   blockstore.Store
	log     *log.Logger
	delay   time.Duration
	timeout time.Duration

	queues []chan syncJob
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*pendingPatch
	closed  bool

	failMu sync.Mutex
	failed map[string]error
}

func NewSyncer(store blockstore.Store, opts SyncOptions) *Syncer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultSyncWorkers
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSyncTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	s := &Syncer{
		store:   store,
		log:     opts.Logger,
		delay:   opts.Debounce,
		timeout: opts.Timeout,
		queues:  make([]chan syncJob, opts.Workers),
		pending: map[string]*pendingPatch{},
		failed:  map[string]error{},
	}
	for i := range s.queues {
		s.queues[i] = make(chan syncJob, syncQueueSize)
		s.wg.Add(1)
		go s.worker(i, s.queues[i])
	}
	s.log.Debugf("syncer started, workers: %d, debounce: %v", opts.Workers, opts.Debounce)
	return s
}

func (s *Syncer) worker(n int, jobs <-chan syncJob) {
	defer s.wg.Done()
	for j := range jobs {
		if j.op == opBarrier {
			close(j.done)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		var err error
		switch j.op {
		case opCreate:
			_, err = s.store.Create(ctx, j.block)
		case opUpdate:
			_, err = s.store.Update(ctx, j.id, j.patch)
		case opDelete:
			err = s.store.Delete(ctx, j.id)
		}
		cancel()

		s.failMu.Lock()
		if err != nil {
			s.failed[j.id] = err
		} else {
			delete(s.failed, j.id)
		}
		s.failMu.Unlock()

		if err != nil {
			s.log.Errorf("sync failed, err: %v, op: %s, item: %s, worker: %d", err, j.op, j.id, n)
		}
	}
}

func (s *Syncer) queueFor(id string) chan syncJob {
	return s.queues[xxhash.Sum64String(id)%uint64(len(s.queues))]
}

// enqueue must be called with s.mu held.
func (s *Syncer) enqueue(j syncJob) {
	if s.closed {
		s.log.Warnf("sync dropped, err: %v, op: %s, item: %s", ErrSyncerClosed, j.op, j.id)
		return
	}
	s.queueFor(j.id) <- j
}

// flushPending moves a waiting debounced patch for id onto its queue. It
// must be called with s.mu held.
func (s *Syncer) flushPending(id string) {
	p, ok := s.pending[id]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(s.pending, id)
	s.enqueue(syncJob{op: opUpdate, id: id, patch: p.patch})
}

func (s *Syncer) Create(b blockstore.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushPending(b.ID)
	s.enqueue(syncJob{op: opCreate, id: b.ID, block: b})
}

func (s *Syncer) Update(id string, p blockstore.Patch) {
	if p.Empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushPending(id)
	s.enqueue(syncJob{op: opUpdate, id: id, patch: p})
}

// UpdateDebounced merges p into the item's waiting patch and restarts its
// timer. The merged patch is written once no further change arrives within
// the debounce delay.
func (s *Syncer) UpdateDebounced(id string, p blockstore.Patch) {
	if p.Empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Warnf("sync dropped, err: %v, op: update, item: %s", ErrSyncerClosed, id)
		return
	}
	if prev, ok := s.pending[id]; ok {
		prev.timer.Stop()
		p = prev.patch.Merge(p)
	}
	pp := &pendingPatch{patch: p}
	pp.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A newer patch or an immediate write may have replaced this one.
		if s.pending[id] != pp {
			return
		}
		s.flushPending(id)
	})
	s.pending[id] = pp
}

func (s *Syncer) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushPending(id)
	s.enqueue(syncJob{op: opDelete, id: id})
}

// Flush writes every waiting debounced patch and blocks until all queued
// jobs have reached the store.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSyncerClosed
	}
	for id := range s.pending {
		s.flushPending(id)
	}
	barriers := make([]chan struct{}, len(s.queues))
	for i, q := range s.queues {
		barriers[i] = make(chan struct{})
		q <- syncJob{op: opBarrier, done: barriers[i]}
	}
	s.mu.Unlock()

	for _, b := range barriers {
		select {
		case <-b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Failed returns the items whose latest write failed.
func (s *Syncer) Failed() map[string]error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	out := make(map[string]error, len(s.failed))
	for id, err := range s.failed {
		out[id] = err
	}
	return out
}

// ResetFailed forgets recorded failures, typically after a reload.
func (s *Syncer) ResetFailed() {
	s.failMu.Lock()
	s.failed = map[string]error{}
	s.failMu.Unlock()
}

// Close flushes waiting patches, drains every queue and stops the workers.
func (s *Syncer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for id := range s.pending {
		s.flushPending(id)
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
