package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// GCScheduler: periodic background collection
// ---------------------------------------------------------------------------

// DefaultGCInterval is the default period of background collection.
const DefaultGCInterval = 30 * time.Second

// GCScheduler periodically collects a runtime's heap from its own
// goroutine. A tick that finds any request active is skipped: contexts
// inside a request may hold unrooted GC-things in Go locals.
type GCScheduler struct {
	rt       *Runtime
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	collectCount atomic.Uint64
	skipCount    atomic.Uint64
}

// NewGCScheduler creates a scheduler for rt. A non-positive interval
// selects DefaultGCInterval.
func NewGCScheduler(rt *Runtime, interval time.Duration) *GCScheduler {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	s := &GCScheduler{
		rt:       rt,
		interval: interval,
	}
	s.enabled.Store(true)
	return s
}

// Start begins the collection goroutine. Calling Start on a running
// scheduler does nothing.
func (s *GCScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}

	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	stopCh := s.stop
	stoppedCh := s.stopped
	go s.loop(stopCh, stoppedCh)
	gcLog.Infof("background collection every %s", s.interval)
}

// Stop halts the goroutine and waits for it to exit. Safe to call more
// than once or on a scheduler that never started.
func (s *GCScheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stop
	stoppedCh := s.stopped
	s.stop = nil
	s.stopped = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled pauses or resumes collection without stopping the goroutine.
func (s *GCScheduler) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// IsEnabled reports whether ticks collect.
func (s *GCScheduler) IsEnabled() bool {
	return s.enabled.Load()
}

// Interval returns the collection period.
func (s *GCScheduler) Interval() time.Duration {
	return s.interval
}

// CollectCount returns the number of background collections performed.
func (s *GCScheduler) CollectCount() uint64 {
	return s.collectCount.Load()
}

// SkipCount returns the number of ticks skipped because a request was
// active.
func (s *GCScheduler) SkipCount() uint64 {
	return s.skipCount.Load()
}

// CollectNow runs one background-style collection immediately. It returns
// nil when a request is active.
func (s *GCScheduler) CollectNow() *GCStats {
	return s.collect()
}

func (s *GCScheduler) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if s.enabled.Load() {
				s.collect()
			}
		}
	}
}

func (s *GCScheduler) collect() *GCStats {
	rt := s.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	// BeginRequest takes mu before counting, so no request can start
	// between this check and the end of the collection.
	if rt.requests.Load() > 0 {
		s.skipCount.Add(1)
		return nil
	}
	stats := rt.collectLocked(ReasonBackground)
	s.collectCount.Add(1)
	return stats
}
