// Package check runs probes for monitors and turns their outcomes into
// stored results, incident transitions and uptime.
package check

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const DefaultWindow = 24 * time.Hour

// Observer is told about incidents opened or resolved by a check. It runs
// on the checking goroutine after everything is persisted.
type Observer interface {
	OnTransition(ctx context.Context, t domain.Transition)
}

type Config struct {
	// Window is the trailing period uptime is computed over.
	Window time.Duration
	// Concurrency bounds RunAll; 1 runs monitors one after another.
	Concurrency int
	Clock       clockwork.Clock
}

type Executor struct {
	log         *zap.Logger
	store       repo.Store
	prober      probe.Prober
	clock       clockwork.Clock
	window      time.Duration
	concurrency int
	observers   []Observer
	locks       *monitorLocks
}

func New(log *zap.Logger, store repo.Store, prober probe.Prober, cfg Config, observers ...Observer) *Executor {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Executor{
		log:         log,
		store:       store,
		prober:      prober,
		clock:       cfg.Clock,
		window:      cfg.Window,
		concurrency: cfg.Concurrency,
		observers:   observers,
		locks:       newMonitorLocks(),
	}
}

// RunCheck probes m once and persists the consequences. Checks of the same
// monitor never overlap, whichever path started them. Only the wait for a
// busy monitor honours ctx's cancellation: once started, the check runs to
// its own timeout and is recorded even if the caller goes away. The
// returned Outcome is always usable; the error collects persistence
// failures.
func (e *Executor) RunCheck(ctx context.Context, m *domain.Monitor) (probe.Outcome, error) {
	release, err := e.locks.acquire(ctx, m.ID)
	if err != nil {
		return notRun(err), fmt.Errorf("wait for monitor %s: %w", m.ID, err)
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	// The stored copy is authoritative for the previous status; the
	// caller's copy may be stale by a whole interval.
	cur := m
	stored, err := e.store.GetMonitor(ctx, m.ID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return notRun(err), fmt.Errorf("monitor %s: %w", m.ID, err)
	case err != nil:
		e.log.Warn("check_monitor_reload_error", zap.String("monitor_id", m.ID), zap.Error(err))
	default:
		cur = stored
	}
	prev := cur.Status

	out := e.prober.Probe(ctx, cur)
	at := e.checkTime(cur.LastCheck)

	var errs error
	res := &domain.CheckResult{
		MonitorID:      cur.ID,
		Status:         out.Status,
		ResponseTimeMS: out.ResponseTimeMS,
		StatusCode:     out.StatusCode,
		Details:        out.Details,
		Timestamp:      at,
	}
	if out.Error != "" {
		msg := out.Error
		res.Error = &msg
	}
	if err := e.store.AppendResult(ctx, res); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("append result: %w", err))
	}

	tr, err := e.transition(ctx, cur, prev, out, at)
	errs = multierr.Append(errs, err)

	uptime, err := e.Uptime(ctx, cur.ID)
	if err != nil {
		uptime = cur.UptimePercentage
		errs = multierr.Append(errs, fmt.Errorf("compute uptime: %w", err))
	}

	upd := domain.CheckUpdate{
		Status:             out.Status,
		LastCheck:          at,
		LastResponseTimeMS: out.ResponseTimeMS,
		UptimePercentage:   uptime,
	}
	if err := e.store.RecordCheck(ctx, cur.ID, upd); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("record check: %w", err))
	}

	e.log.Info("check_completed",
		zap.String("monitor_id", cur.ID),
		zap.String("type", string(cur.Type)),
		zap.String("status", string(out.Status)),
		zap.Float64p("response_time_ms", out.ResponseTimeMS),
		zap.String("reason", out.Error),
		zap.Float64("uptime", uptime),
	)
	if errs != nil {
		e.log.Warn("check_persist_error", zap.String("monitor_id", cur.ID), zap.Error(errs))
	}

	if tr != nil {
		snap := *cur
		snap.Status = upd.Status
		snap.LastCheck = &at
		snap.LastResponseTimeMS = upd.LastResponseTimeMS
		snap.UptimePercentage = upd.UptimePercentage
		tr.Monitor = snap
		e.notify(ctx, *tr)
	}
	return out, errs
}

// checkTime returns now, nudged forward if needed so that consecutive
// checks of one monitor always have increasing timestamps. Millisecond
// precision matches the coarsest store.
func (e *Executor) checkTime(last *time.Time) time.Time {
	now := e.clock.Now().UTC().Truncate(time.Millisecond)
	if last != nil && !now.After(*last) {
		return last.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return now
}

func (e *Executor) notify(ctx context.Context, t domain.Transition) {
	for _, o := range e.observers {
		o.OnTransition(ctx, t)
	}
}

func notRun(err error) probe.Outcome {
	return probe.Outcome{
		Status:  domain.StatusPending,
		Error:   "check not run: " + err.Error(),
		Details: map[string]any{},
	}
}

// Summary is one line of a RunAll report.
type Summary struct {
	MonitorID      string        `json:"monitor_id"`
	Name           string        `json:"name"`
	Status         domain.Status `json:"status"`
	ResponseTimeMS *float64      `json:"response_time_ms,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Err            error         `json:"-"`
}

// RunAll checks every non-paused monitor. One monitor failing, even by
// panicking, never stops the others. Summaries follow the store's order.
func (e *Executor) RunAll(ctx context.Context) ([]Summary, error) {
	monitors, err := e.store.ListMonitors(ctx, repo.MonitorFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}

	out := make([]Summary, len(monitors))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, m := range monitors {
		g.Go(func() error {
			out[i] = Summary{MonitorID: m.ID, Name: m.Name}
			defer func() {
				if r := recover(); r != nil {
					out[i].Status = domain.StatusDown
					out[i].Err = fmt.Errorf("check panicked: %v", r)
					e.log.Error("check_panic", zap.String("monitor_id", m.ID), zap.Any("panic", r))
				}
			}()
			o, err := e.RunCheck(ctx, m)
			out[i].Status = o.Status
			out[i].ResponseTimeMS = o.ResponseTimeMS
			out[i].Reason = o.Error
			out[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	var up, down int
	for _, s := range out {
		switch s.Status {
		case domain.StatusUp:
			up++
		case domain.StatusDown:
			down++
		}
	}
	e.log.Info("checks_run_completed",
		zap.Int("monitors", len(out)), zap.Int("up", up), zap.Int("down", down))
	return out, nil
}
