package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/privacyshield/privacyshield/internal/scrub"
)

// Sink consumes audit records (file, webhook, sqlite).
type Sink interface {
	Name() string
	Deliver(context.Context, *Record) error
	Close(context.Context) error
}

// Stats is a point-in-time copy of the emitter counters.
type Stats struct {
	Enqueued    uint64            `json:"enqueued"`
	Dropped     uint64            `json:"dropped"`
	SinkSuccess map[string]uint64 `json:"sink_success"`
	SinkFailure map[string]uint64 `json:"sink_failure"`
}

// Emitter buffers records and delivers them to sinks off the request
// path. A full queue drops the record and counts it.
type Emitter struct {
	queue           chan *Record
	sinks           []Sink
	shutdownTimeout time.Duration

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	success  []atomic.Uint64
	failure  []atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// NewEmitter starts background workers delivering to sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 2 * time.Second
	}

	e := &Emitter{
		queue:           make(chan *Record, queueSize),
		sinks:           sinks,
		shutdownTimeout: shutdownTimeout,
		success:         make([]atomic.Uint64, len(sinks)),
		failure:         make([]atomic.Uint64, len(sinks)),
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit enqueues rec without blocking. It is safe on a nil Emitter.
func (e *Emitter) Emit(rec *Record) {
	if e == nil || rec == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.queue <- rec:
		e.enqueued.Add(1)
	default:
		e.dropped.Add(1)
	}
}

// Close stops accepting records, drains the queue within the shutdown
// timeout and closes every sink.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()
	select {
	case <-done:
	case <-waitCtx.Done():
		scrub.Logf("audit: shutdown timed out with %d records queued", len(e.queue))
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			scrub.Logf("audit: sink %s close error: %v", s.Name(), err)
		}
	}
}

// Stats copies the current counters.
func (e *Emitter) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	st := Stats{
		Enqueued:    e.enqueued.Load(),
		Dropped:     e.dropped.Load(),
		SinkSuccess: make(map[string]uint64, len(e.sinks)),
		SinkFailure: make(map[string]uint64, len(e.sinks)),
	}
	for i, s := range e.sinks {
		st.SinkSuccess[s.Name()] += e.success[i].Load()
		st.SinkFailure[s.Name()] += e.failure[i].Load()
	}
	return st
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for rec := range e.queue {
		for i, s := range e.sinks {
			if err := s.Deliver(context.Background(), rec); err != nil {
				scrub.Logf("audit: sink %s failed for record %s: %v", s.Name(), rec.ID, err)
				e.failure[i].Add(1)
				continue
			}
			e.success[i].Add(1)
		}
	}
}
