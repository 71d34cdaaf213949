// Package schedule runs named background jobs on fixed intervals.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one unit of periodic work. The context is cancelled when the
// scheduler stops.
type Task func(ctx context.Context)

// JobID identifies a scheduled job for Cancel and Reschedule.
type JobID int64

// Scheduler owns a set of interval jobs. Each job runs on its own
// ticker goroutine; a run that panics is recovered and logged, and a
// run still in flight when the next tick fires is not doubled up.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[JobID]*job
	nextID int64
	log    *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

type job struct {
	id       JobID
	name     string
	interval time.Duration
	task     Task
	cancel   context.CancelFunc
	running  atomic.Bool
}

// New creates a scheduler. Call Stop to tear it down.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[JobID]*job),
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule registers a task to run every interval. The first run
// happens after one interval, not immediately.
func (s *Scheduler) Schedule(name string, interval time.Duration, task Task) JobID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}

	s.nextID++
	id := JobID(s.nextID)
	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{id: id, name: name, interval: interval, task: task, cancel: cancel}
	s.jobs[id] = j

	s.wg.Add(1)
	go s.run(ctx, j)
	s.log.Info("job scheduled", "job", name, "interval", interval)
	return id
}

// Cancel stops a job. Unknown ids are ignored.
func (s *Scheduler) Cancel(id JobID) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if ok {
		j.cancel()
		s.log.Info("job cancelled", "job", j.name)
	}
}

// Reschedule cancels a job and registers it again with a new interval.
// Returns the new id, or 0 if the job was not found.
func (s *Scheduler) Reschedule(id JobID, interval time.Duration) JobID {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	s.Cancel(id)
	return s.Schedule(j.name, interval, j.task)
}

// Stop cancels every job and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.jobs = make(map[JobID]*job)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, j)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		s.log.Warn("job still running, skipping tick", "job", j.name)
		return
	}
	defer j.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job", j.name, "panic", r)
		}
	}()
	j.task(ctx)
}
