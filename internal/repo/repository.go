package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// ErrNotFound is returned when a monitor or incident does not exist.
var ErrNotFound = errors.New("not found")

// MonitorFilter narrows ListMonitors. The zero value lists everything.
type MonitorFilter struct {
	Group      string
	ActiveOnly bool
}

func (f MonitorFilter) Match(m *domain.Monitor) bool {
	if f.ActiveOnly && m.Paused {
		return false
	}
	return f.Group == "" || m.Group == f.Group
}

// Ports (interfaces); swap in any DB adapter.
type MonitorStore interface {
	// CreateMonitor assigns ID and timestamps and starts the monitor as
	// pending with 100% uptime.
	CreateMonitor(ctx context.Context, m *domain.Monitor) error
	GetMonitor(ctx context.Context, id string) (*domain.Monitor, error)
	// ListMonitors returns monitors oldest first.
	ListMonitors(ctx context.Context, f MonitorFilter) ([]*domain.Monitor, error)
	// UpdateMonitor writes configuration fields only; live status stays as
	// the last check left it.
	UpdateMonitor(ctx context.Context, m *domain.Monitor) error
	// RecordCheck writes the live status fields after a check.
	RecordCheck(ctx context.Context, id string, u domain.CheckUpdate) error
	// DeleteMonitor removes the monitor with its results and incidents.
	DeleteMonitor(ctx context.Context, id string) error
	// Groups lists distinct group names, ["default"] when there are none.
	Groups(ctx context.Context) ([]string, error)
}

type ResultStore interface {
	AppendResult(ctx context.Context, r *domain.CheckResult) error
	// CountResults counts results at or after since.
	CountResults(ctx context.Context, monitorID string, since time.Time) (up, total int, err error)
	// RecentResults returns newest first.
	RecentResults(ctx context.Context, monitorID string, limit int) ([]domain.CheckResult, error)
}

type IncidentStore interface {
	// OpenIncident stores inc unless the monitor already has an ongoing
	// incident, in which case it reports false.
	OpenIncident(ctx context.Context, inc *domain.Incident) (bool, error)
	OngoingIncidents(ctx context.Context, monitorID string) ([]domain.Incident, error)
	// ResolveIncident reports false when the incident is missing or
	// already resolved.
	ResolveIncident(ctx context.Context, id string, at time.Time) (bool, error)
	RecentIncidents(ctx context.Context, monitorID string, limit int) ([]domain.Incident, error)
}

type Store interface {
	MonitorStore
	ResultStore
	IncidentStore
	Close() error
}

// DefaultGroups is what Groups returns for an empty store.
func DefaultGroups() []string { return []string{domain.DefaultGroup} }
