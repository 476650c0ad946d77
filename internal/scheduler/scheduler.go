// Package scheduler keeps one timer per active monitor and runs its check
// every interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

var ErrNotRunning = errors.New("scheduler not running")

// Checker runs one check; *check.Executor satisfies it.
type Checker interface {
	RunCheck(ctx context.Context, m *domain.Monitor) (probe.Outcome, error)
}

type Config struct {
	// Resync rebuilds the job set from storage on this period. Zero disables it.
	Resync time.Duration
	Clock  clockwork.Clock
}

type Scheduler struct {
	log      *zap.Logger
	monitors repo.MonitorStore
	checker  Checker
	clock    clockwork.Clock
	resync   time.Duration

	mu      sync.Mutex
	running bool
	jobCtx  context.Context
	cancel  context.CancelFunc
	jobs    map[string]*job
	stop    chan struct{}
	wg      sync.WaitGroup
}

type job struct {
	monitorID string
	interval  time.Duration
	stop      chan struct{}
	timer     clockwork.Timer

	mu   sync.Mutex
	next time.Time
}

func (j *job) setNext(t time.Time) {
	j.mu.Lock()
	j.next = t
	j.mu.Unlock()
}

func (j *job) nextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}

// halt stops j's timer and its goroutine. The timer is stopped by the
// caller so the armed set is exact once SyncAll returns.
func (j *job) halt() {
	close(j.stop)
	j.timer.Stop()
}

func New(log *zap.Logger, monitors repo.MonitorStore, checker Checker, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Resync < 0 {
		cfg.Resync = 0
	}
	return &Scheduler{
		log:      log,
		monitors: monitors,
		checker:  checker,
		clock:    cfg.Clock,
		resync:   cfg.Resync,
		jobs:     map[string]*job{},
	}
}

// Start marks the scheduler running and loads the jobs. A failed initial
// load is returned but the scheduler stays up; the next SyncAll (or
// periodic resync) fills it in.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	// Checks outlive the caller's context; only Shutdown ends them.
	s.jobCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.stop = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.log.Info("scheduler_started", zap.Duration("resync", s.resync))

	if s.resync > 0 {
		s.wg.Add(1)
		go s.resyncLoop(s.stop)
	}

	if _, err := s.SyncAll(ctx); err != nil {
		return err
	}
	return nil
}

// SyncAll drops every job and schedules one per non-paused monitor. A
// monitor whose interval did not change keeps its next run time, so
// rebuilding never pushes a check back. On a listing error the current jobs
// are left alone.
func (s *Scheduler) SyncAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return 0, ErrNotRunning
	}

	ms, err := s.monitors.ListMonitors(ctx, repo.MonitorFilter{ActiveOnly: true})
	if err != nil {
		s.log.Warn("scheduler_sync_error", zap.Error(err))
		return 0, fmt.Errorf("list monitors: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Shutdown may have won the race for the lock.
	if !s.running {
		return 0, ErrNotRunning
	}

	old := s.jobs
	s.jobs = make(map[string]*job, len(ms))
	for _, j := range old {
		j.halt()
	}

	now := s.clock.Now()
	for _, m := range ms {
		interval := m.IntervalDuration()
		next := now.Add(interval)
		if prev, ok := old[m.ID]; ok && prev.interval == interval {
			next = prev.nextRun()
			if next.Before(now) {
				next = now
			}
		}
		j := &job{
			monitorID: m.ID,
			interval:  interval,
			stop:      make(chan struct{}),
			timer:     s.clock.NewTimer(next.Sub(now)),
			next:      next,
		}
		s.jobs[m.ID] = j
		s.wg.Add(1)
		go s.runJob(j)
	}

	s.log.Info("scheduler_synced", zap.Int("jobs", len(s.jobs)))
	return len(s.jobs), nil
}

func (s *Scheduler) runJob(j *job) {
	defer s.wg.Done()
	t := j.timer

	for {
		select {
		case <-j.stop:
			return
		case <-t.Chan():
		}
		// A stop and a fire can be ready together; stop wins.
		select {
		case <-j.stop:
			return
		default:
		}

		// A rebuild during the check carries this estimate forward.
		j.setNext(s.clock.Now().Add(j.interval))
		s.fire(j)

		select {
		case <-j.stop:
			return
		default:
		}
		j.setNext(s.clock.Now().Add(j.interval))
		t.Reset(j.interval)
	}
}

func (s *Scheduler) fire(j *job) {
	ctx := s.jobCtx
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled_check_panic",
				zap.String("monitor_id", j.monitorID),
				zap.Any("panic", r),
			)
		}
	}()

	m, err := s.monitors.GetMonitor(ctx, j.monitorID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		s.log.Info("scheduled_monitor_missing", zap.String("monitor_id", j.monitorID))
		return
	case err != nil:
		s.log.Warn("scheduled_monitor_lookup_error", zap.String("monitor_id", j.monitorID), zap.Error(err))
		return
	case m.Paused:
		s.log.Debug("scheduled_monitor_paused", zap.String("monitor_id", j.monitorID))
		return
	}

	out, err := s.checker.RunCheck(ctx, m)
	if err != nil {
		s.log.Warn("scheduled_check_error", zap.String("monitor_id", m.ID), zap.Error(err))
		return
	}
	s.log.Debug("scheduled_check_done",
		zap.String("monitor_id", m.ID),
		zap.String("status", string(out.Status)),
	)
}

func (s *Scheduler) resyncLoop(stop <-chan struct{}) {
	defer s.wg.Done()
	t := s.clock.NewTicker(s.resync)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			_, _ = s.SyncAll(s.jobCtx)
		}
	}
}

// Shutdown stops every timer and waits for in-flight checks. If ctx ends
// first, pending lock waits are cancelled and ctx's error is returned
// without waiting further; a probe already running finishes on its own
// timeout.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	for id, j := range s.jobs {
		j.halt()
		delete(s.jobs, id)
	}
	close(s.stop)
	cancel := s.cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		s.log.Info("scheduler_stopped")
		return nil
	case <-ctx.Done():
		cancel()
		s.log.Warn("scheduler_stop_forced", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

type JobStatus struct {
	MonitorID       string    `json:"monitor_id"`
	IntervalSeconds int       `json:"interval"`
	NextRun         time.Time `json:"next_run"`
}

type Status struct {
	Running  bool        `json:"running"`
	JobCount int         `json:"job_count"`
	Jobs     []JobStatus `json:"jobs"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, JobCount: len(s.jobs), Jobs: make([]JobStatus, 0, len(s.jobs))}
	for _, j := range s.jobs {
		st.Jobs = append(st.Jobs, JobStatus{
			MonitorID:       j.monitorID,
			IntervalSeconds: int(j.interval / time.Second),
			NextRun:         j.nextRun(),
		})
	}
	slices.SortFunc(st.Jobs, func(a, b JobStatus) int {
		if c := a.NextRun.Compare(b.NextRun); c != 0 {
			return c
		}
		if a.MonitorID < b.MonitorID {
			return -1
		}
		if a.MonitorID > b.MonitorID {
			return 1
		}
		return 0
	})
	return st
}
