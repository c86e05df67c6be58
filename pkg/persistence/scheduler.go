// Package persistence runs the periodic pass that writes catalog state
// to disk. At most one pass runs at a time, and passes are skipped
// while the node is offline.
package persistence

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
)

// Target is the persistable state, normally the catalog
type Target interface {
	ListDatabases() []string
	SaveDatabase(name string) error
}

// Scheduler drives the periodic persistence pass
type Scheduler struct {
	target   Target
	online   func() bool
	interval time.Duration

	running atomic.Bool

	log     logging.Logger
	metrics *metrics.Registry

	mu            sync.Mutex
	passes        int64
	errors        int64
	lastError     error
	lastErrorTime time.Time
	lastDurations map[string]time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Status is a snapshot of scheduler health
type Status struct {
	Running       bool
	Passes        int64
	Errors        int64
	LastError     string
	LastErrorTime time.Time
	Durations     map[string]time.Duration
}

// NewScheduler creates a scheduler. online reports whether the node is
// part of a reachable network; a nil online always persists.
func NewScheduler(target Target, online func() bool, interval time.Duration, log logging.Logger, reg *metrics.Registry) *Scheduler {
	if online == nil {
		online = func() bool { return true }
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	return &Scheduler{
		target:        target,
		online:        online,
		interval:      interval,
		log:           log,
		metrics:       reg,
		lastDurations: make(map[string]time.Duration),
		stopChan:      make(chan struct{}),
	}
}

// Start launches the tick loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.PerformPersist()
		case <-s.stopChan:
			return
		}
	}
}

// Stop halts the loop and runs one final pass
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.PerformPersist()
}

// PerformPersist runs one pass. Returns true iff the full pass
// completed without errors. A pass is refused, returning false, when
// the node is offline or another pass is already running.
func (s *Scheduler) PerformPersist() bool {
	if !s.online() {
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	defer s.running.Store(false)

	start := time.Now()
	durations := make(map[string]time.Duration)
	var passErr error

	for _, db := range s.target.ListDatabases() {
		dbStart := time.Now()
		if err := s.target.SaveDatabase(db); err != nil {
			passErr = err
			s.log.Error("persistence pass aborted",
				logging.Database(db), logging.Err(err))
			break
		}
		durations[db] = time.Since(dbStart)
	}

	s.metrics.RecordPersistPass(time.Since(start), passErr)

	s.mu.Lock()
	s.lastDurations = durations
	if passErr != nil {
		s.errors++
		s.lastError = passErr
		s.lastErrorTime = time.Now()
	} else {
		s.passes++
	}
	s.mu.Unlock()

	if passErr == nil {
		s.log.Debug("persistence pass complete",
			logging.Duration("elapsed", time.Since(start)),
			logging.Int("databases", len(durations)))
	}
	return passErr == nil
}

// Status returns a snapshot of the scheduler's counters
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:       s.running.Load(),
		Passes:        s.passes,
		Errors:        s.errors,
		LastErrorTime: s.lastErrorTime,
		Durations:     make(map[string]time.Duration, len(s.lastDurations)),
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	for db, d := range s.lastDurations {
		st.Durations[db] = d
	}
	return st
}
