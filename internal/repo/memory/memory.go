package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory. Values are copied on the way
// in and out so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	monitors  map[string]*domain.Monitor
	seq       map[string]uint64 // insertion order, breaks CreatedAt ties
	nextSeq   uint64
	results   []domain.CheckResult
	incidents []*domain.Incident
	now       func() time.Time
}

func New() *Store {
	return &Store{
		monitors: make(map[string]*domain.Monitor),
		seq:      make(map[string]uint64),
		results:  make([]domain.CheckResult, 0, 128),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Store) Close() error { return nil }

// ---- MonitorStore ----

func (m *Store) CreateMonitor(ctx context.Context, mon *domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mon.ID == "" {
		mon.ID = uuid.NewString()
	}
	now := m.now()
	if mon.CreatedAt.IsZero() {
		mon.CreatedAt = now
	}
	mon.UpdatedAt = now
	mon.Status = domain.StatusPending
	mon.UptimePercentage = 100
	mon.LastCheck = nil
	mon.LastResponseTimeMS = nil
	m.monitors[mon.ID] = cloneMonitor(mon)
	m.nextSeq++
	m.seq[mon.ID] = m.nextSeq
	return nil
}

func (m *Store) GetMonitor(ctx context.Context, id string) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneMonitor(mon), nil
}

func (m *Store) ListMonitors(ctx context.Context, f repo.MonitorFilter) ([]*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if f.Match(mon) {
			out = append(out, cloneMonitor(mon))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Monitor) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(m.seq[a.ID], m.seq[b.ID])
	})
	return out, nil
}

func (m *Store) UpdateMonitor(ctx context.Context, mon *domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.monitors[mon.ID]
	if !ok {
		return repo.ErrNotFound
	}
	next := cloneMonitor(mon)
	next.Status = cur.Status
	next.LastCheck = cur.LastCheck
	next.LastResponseTimeMS = cur.LastResponseTimeMS
	next.UptimePercentage = cur.UptimePercentage
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = m.now()
	m.monitors[mon.ID] = next
	mon.UpdatedAt = next.UpdatedAt
	return nil
}

func (m *Store) RecordCheck(ctx context.Context, id string, u domain.CheckUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	at := u.LastCheck
	cur.Status = u.Status
	cur.LastCheck = &at
	cur.LastResponseTimeMS = u.LastResponseTimeMS
	cur.UptimePercentage = u.UptimePercentage
	return nil
}

func (m *Store) DeleteMonitor(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.monitors, id)
	delete(m.seq, id)
	m.results = slices.DeleteFunc(m.results, func(r domain.CheckResult) bool { return r.MonitorID == id })
	m.incidents = slices.DeleteFunc(m.incidents, func(i *domain.Incident) bool { return i.MonitorID == id })
	return nil
}

func (m *Store) Groups(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, mon := range m.monitors {
		if mon.Group != "" {
			seen[mon.Group] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return repo.DefaultGroups(), nil
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// ---- ResultStore ----

func (m *Store) AppendResult(ctx context.Context, r *domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = m.now()
	}
	cp := *r
	cp.Details = maps.Clone(r.Details)
	m.results = append(m.results, cp)
	return nil
}

func (m *Store) CountResults(ctx context.Context, monitorID string, since time.Time) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var up, total int
	for _, r := range m.results {
		if r.MonitorID != monitorID || r.Timestamp.Before(since) {
			continue
		}
		total++
		if r.Status == domain.StatusUp {
			up++
		}
	}
	return up, total, nil
}

func (m *Store) RecentResults(ctx context.Context, monitorID string, limit int) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CheckResult
	for i := len(m.results) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.results[i].MonitorID == monitorID {
			r := m.results[i]
			r.Details = maps.Clone(r.Details)
			out = append(out, r)
		}
	}
	return out, nil
}

// ---- IncidentStore ----

func (m *Store) OpenIncident(ctx context.Context, inc *domain.Incident) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.incidents {
		if cur.MonitorID == inc.MonitorID && cur.Status == domain.IncidentOngoing {
			return false, nil
		}
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	cp := *inc
	cp.Details = maps.Clone(inc.Details)
	m.incidents = append(m.incidents, &cp)
	return true, nil
}

func (m *Store) OngoingIncidents(ctx context.Context, monitorID string) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, inc := range m.incidents {
		if inc.MonitorID == monitorID && inc.Status == domain.IncidentOngoing {
			out = append(out, *inc)
		}
	}
	return out, nil
}

func (m *Store) ResolveIncident(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inc := range m.incidents {
		if inc.ID == id {
			return inc.Resolve(at), nil
		}
	}
	return false, nil
}

func (m *Store) RecentIncidents(ctx context.Context, monitorID string, limit int) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for i := len(m.incidents) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.incidents[i].MonitorID == monitorID {
			out = append(out, *m.incidents[i])
		}
	}
	return out, nil
}

func cloneMonitor(in *domain.Monitor) *domain.Monitor {
	out := *in
	out.Tags = slices.Clone(in.Tags)
	out.Params.HTTP.ExpectedCodes = slices.Clone(in.Params.HTTP.ExpectedCodes)
	out.Params.HTTP.Headers = maps.Clone(in.Params.HTTP.Headers)
	return &out
}
