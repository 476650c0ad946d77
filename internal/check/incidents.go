package check

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/probe"
)

// transition applies the incident state machine for one check:
// anything but down -> down opens an incident, down -> up resolves every
// ongoing one, and everything else leaves incidents alone.
func (e *Executor) transition(ctx context.Context, m *domain.Monitor, prev domain.Status, out probe.Outcome, at time.Time) (*domain.Transition, error) {
	switch {
	case prev != domain.StatusDown && out.Status == domain.StatusDown:
		return e.open(ctx, m, out, at)
	case prev == domain.StatusDown && out.Status == domain.StatusUp:
		return e.resolve(ctx, m, at)
	}
	return nil, nil
}

func (e *Executor) open(ctx context.Context, m *domain.Monitor, out probe.Outcome, at time.Time) (*domain.Transition, error) {
	inc := domain.NewIncident(m, out.Error, at)
	opened, err := e.store.OpenIncident(ctx, inc)
	if err != nil {
		return nil, fmt.Errorf("open incident: %w", err)
	}
	if !opened {
		e.log.Debug("incident_already_ongoing", zap.String("monitor_id", m.ID))
		return nil, nil
	}
	e.log.Info("incident_opened",
		zap.String("monitor_id", m.ID),
		zap.String("incident_id", inc.ID),
		zap.String("reason", out.Error),
	)
	return &domain.Transition{
		Kind:      domain.TransitionDown,
		Incidents: []domain.Incident{*inc},
		Error:     out.Error,
		At:        at,
	}, nil
}

func (e *Executor) resolve(ctx context.Context, m *domain.Monitor, at time.Time) (*domain.Transition, error) {
	ongoing, err := e.store.OngoingIncidents(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("list ongoing incidents: %w", err)
	}
	var (
		resolved []domain.Incident
		errs     error
	)
	for _, inc := range ongoing {
		ok, err := e.store.ResolveIncident(ctx, inc.ID, at)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("resolve incident %s: %w", inc.ID, err))
			continue
		}
		if !ok {
			continue
		}
		inc.Resolve(at)
		resolved = append(resolved, inc)
		e.log.Info("incident_resolved",
			zap.String("monitor_id", m.ID),
			zap.String("incident_id", inc.ID),
			zap.Float64p("duration_seconds", inc.DurationSeconds),
		)
	}
	if len(resolved) == 0 {
		return nil, errs
	}
	return &domain.Transition{Kind: domain.TransitionRecovered, Incidents: resolved, At: at}, errs
}
