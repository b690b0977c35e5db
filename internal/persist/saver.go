// Package persist saves documents in the background. Rapid successive
// submissions of one document are coalesced so only the latest version is
// written once edits pause.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/entlabel/internal/stats"
	"github.com/dgallion1/entlabel/internal/store"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("saver stopped")

// Config tunes a Saver.
type Config struct {
	Debounce     time.Duration
	Workers      int
	MaxQueueSize int
	JobTTL       time.Duration
}

type pending struct {
	doc   *store.Document
	timer *time.Timer
	// held is set when the debounce fired while an older version of the
	// document was still being saved.
	held bool
}

// Saver writes documents to a store through a bounded queue.
type Saver struct {
	store store.Store
	jobs  *JobStore
	queue chan *store.Document
	log   *slog.Logger
	stats *stats.Stats
	cfg   Config

	backoff func(attempt int) time.Duration

	mu       sync.Mutex
	pending  map[string]*pending
	running  map[string]bool // doc IDs on a worker
	stopped  bool
	inflight sync.WaitGroup

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSaver creates a saver. Call Start before submitting.
func NewSaver(cfg Config, st store.Store, latency *stats.Stats, log *slog.Logger) *Saver {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	return &Saver{
		store:   st,
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *store.Document, cfg.MaxQueueSize),
		log:     log,
		stats:   latency,
		cfg:     cfg,
		backoff: Backoff,
		pending: make(map[string]*pending),
		running: make(map[string]bool),
	}
}

// Start launches worker goroutines.
func (s *Saver) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for range s.cfg.Workers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for doc := range s.queue {
				s.save(workerCtx, doc)
				s.finish(doc.ID)
				s.inflight.Done()
			}
		}()
	}

	// Start job store cleanup.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				s.jobs.Cleanup()
			}
		}
	}()
}

// Submit schedules doc to be saved once it has not been resubmitted for the
// debounce period. A newer submission replaces a pending one.
func (s *Saver) Submit(doc *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	s.jobs.Acquire(doc.ID).SetStatus(StatusQueued)
	if p, ok := s.pending[doc.ID]; ok {
		p.doc = doc
		p.timer.Reset(s.cfg.Debounce)
		return nil
	}

	s.inflight.Add(1)
	id := doc.ID
	s.pending[id] = &pending{
		doc:   doc,
		timer: time.AfterFunc(s.cfg.Debounce, func() { s.enqueue(id) }),
	}
	return nil
}

// enqueue moves a pending document onto the worker queue. A document is
// saved by at most one worker at a time; while an older version is being
// saved the newer one is held back until finish releases it.
func (s *Saver) enqueue(id string) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if s.running[id] {
		p.held = true
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.running[id] = true
	s.mu.Unlock()

	select {
	case s.queue <- p.doc:
	default:
		err := fmt.Errorf("save queue is full (%d)", s.cfg.MaxQueueSize)
		s.jobs.Acquire(id).Fail(err, true)
		s.log.Error("save dropped", "doc_id", id, "error", err)
		s.finish(id)
		s.inflight.Done()
	}
}

// finish marks a save of id as done and queues a version held back behind it.
func (s *Saver) finish(id string) {
	s.mu.Lock()
	delete(s.running, id)
	p, ok := s.pending[id]
	held := ok && p.held
	s.mu.Unlock()

	if held {
		s.jobs.Acquire(id).SetStatus(StatusQueued)
		s.enqueue(id)
	}
}

func (s *Saver) save(ctx context.Context, doc *store.Document) {
	job := s.jobs.Acquire(doc.ID)
	if doc.ContentHash == "" {
		doc.ContentHash = ContentHashHex([]byte(doc.Text))
	}

	for attempt := 0; ; attempt++ {
		job.StartAttempt(doc.ContentHash)
		start := time.Now()
		err := s.store.Put(ctx, doc)
		if s.stats != nil {
			s.stats.Since(stats.OpSave, start)
		}
		if err == nil {
			job.SetStatus(StatusSaved)
			s.log.Debug("document saved", "doc_id", doc.ID, "attempt", attempt+1)
			return
		}

		final := attempt >= MaxRetries || !IsRetryable(err)
		job.Fail(err, final)
		if final {
			s.log.Error("save failed", "doc_id", doc.ID, "attempts", attempt+1, "error", err)
			return
		}

		wait := s.backoff(attempt)
		s.log.Warn("save failed, retrying", "doc_id", doc.ID, "attempt", attempt+1, "backoff", wait, "error", err)
		select {
		case <-ctx.Done():
			job.Fail(ctx.Err(), true)
			return
		case <-time.After(wait):
		}
	}
}

// Cancel drops a pending save of docID that has not reached the queue yet.
// It reports whether one was dropped.
func (s *Saver) Cancel(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[docID]
	if !ok {
		return false
	}
	if !p.timer.Stop() && !p.held {
		// The debounce fired and the document is on its way to the queue.
		return false
	}
	delete(s.pending, docID)
	s.inflight.Done()
	return true
}

// Status returns the save state of a document.
func (s *Saver) Status(docID string) (JobSnapshot, bool) {
	j := s.jobs.Get(docID)
	if j == nil {
		return JobSnapshot{}, false
	}
	return j.Snapshot(), true
}

// QueueDepth returns current queue depth.
func (s *Saver) QueueDepth() int {
	return len(s.queue)
}

// Pending returns the number of documents waiting out their debounce.
func (s *Saver) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush skips the remaining debounce of every pending document and waits
// until all submitted saves have finished. Workers must be running.
func (s *Saver) Flush() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id, p := range s.pending {
		if p.timer.Stop() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.enqueue(id)
	}
	s.inflight.Wait()
}

// Stop flushes pending saves and shuts the workers down.
func (s *Saver) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.Flush()
	close(s.queue)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
