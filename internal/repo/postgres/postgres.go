package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New connects and makes sure the schema exists.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS monitors (
  id                    TEXT PRIMARY KEY,
  name                  TEXT NOT NULL,
  owner_id              TEXT NOT NULL DEFAULT '',
  type                  TEXT NOT NULL,
  target                TEXT NOT NULL,
  interval_s            INTEGER NOT NULL,
  timeout_s             INTEGER NOT NULL,
  params                JSONB NOT NULL DEFAULT '{}',
  paused                BOOLEAN NOT NULL DEFAULT FALSE,
  status                TEXT NOT NULL DEFAULT 'pending',
  last_check            TIMESTAMPTZ NULL,
  last_response_time_ms DOUBLE PRECISION NULL,
  uptime_percentage     DOUBLE PRECISION NOT NULL DEFAULT 100,
  monitor_group         TEXT NOT NULL DEFAULT 'default',
  tags                  TEXT[] NOT NULL DEFAULT '{}',
  notes                 TEXT NOT NULL DEFAULT '',
  created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_monitors_created_at ON monitors (created_at, id);

CREATE TABLE IF NOT EXISTS check_results (
  id               TEXT PRIMARY KEY,
  monitor_id       TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
  status           TEXT NOT NULL,
  response_time_ms DOUBLE PRECISION NULL,
  status_code      INTEGER NULL,
  error            TEXT NULL,
  details          JSONB NOT NULL DEFAULT '{}',
  checked_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_results_monitor_time ON check_results (monitor_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS incidents (
  id               TEXT PRIMARY KEY,
  monitor_id       TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
  monitor_name     TEXT NOT NULL,
  owner_id         TEXT NOT NULL DEFAULT '',
  type             TEXT NOT NULL,
  status           TEXT NOT NULL,
  details          JSONB NOT NULL DEFAULT '{}',
  created_at       TIMESTAMPTZ NOT NULL,
  resolved_at      TIMESTAMPTZ NULL,
  duration_seconds DOUBLE PRECISION NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_monitor_created ON incidents (monitor_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS uq_incidents_one_ongoing ON incidents (monitor_id) WHERE status = 'ongoing';
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// ---- MonitorStore ----

const monitorColumns = `id, name, owner_id, type, target, interval_s, timeout_s, params, paused,
       status, last_check, last_response_time_ms, uptime_percentage,
       monitor_group, tags, notes, created_at, updated_at`

func (s *Store) CreateMonitor(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Status = domain.StatusPending
	m.UptimePercentage = 100
	m.LastCheck = nil
	m.LastResponseTimeMS = nil

	params, err := json.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO monitors
		   (id, name, owner_id, type, target, interval_s, timeout_s, params, paused,
		    status, uptime_percentage, monitor_group, tags, notes, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		m.ID, m.Name, m.OwnerID, string(m.Type), m.Target, m.Interval, m.Timeout, params, m.Paused,
		string(m.Status), m.UptimePercentage, m.Group, tagsOrEmpty(m.Tags), m.Notes, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id string) (*domain.Monitor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *Store) ListMonitors(ctx context.Context, f repo.MonitorFilter) ([]*domain.Monitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+monitorColumns+`
		   FROM monitors
		  WHERE ($1 = '' OR monitor_group = $1)
		    AND (NOT $2 OR NOT paused)
		  ORDER BY created_at, id`,
		f.Group, f.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var out []*domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMonitor(ctx context.Context, m *domain.Monitor) error {
	params, err := json.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	m.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors
		    SET name=$2, owner_id=$3, type=$4, target=$5, interval_s=$6, timeout_s=$7,
		        params=$8, paused=$9, monitor_group=$10, tags=$11, notes=$12, updated_at=$13
		  WHERE id=$1`,
		m.ID, m.Name, m.OwnerID, string(m.Type), m.Target, m.Interval, m.Timeout,
		params, m.Paused, m.Group, tagsOrEmpty(m.Tags), m.Notes, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) RecordCheck(ctx context.Context, id string, u domain.CheckUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors
		    SET status=$2, last_check=$3, last_response_time_ms=$4, uptime_percentage=$5
		  WHERE id=$1`,
		id, string(u.Status), u.LastCheck, u.LastResponseTimeMS, u.UptimePercentage,
	)
	if err != nil {
		return fmt.Errorf("record check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// DeleteMonitor relies on ON DELETE CASCADE for results and incidents.
func (s *Store) DeleteMonitor(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Groups(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT monitor_group FROM monitors WHERE monitor_group <> '' ORDER BY monitor_group`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan groups: %w", err)
	}
	if len(groups) == 0 {
		return repo.DefaultGroups(), nil
	}
	return groups, nil
}

// ---- ResultStore ----

func (s *Store) AppendResult(ctx context.Context, r *domain.CheckResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	details, err := json.Marshal(detailsOrEmpty(r.Details))
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO check_results
		   (id, monitor_id, status, response_time_ms, status_code, error, details, checked_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.MonitorID, string(r.Status), r.ResponseTimeMS, r.StatusCode, r.Error, details, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) CountResults(ctx context.Context, monitorID string, since time.Time) (int, int, error) {
	var up, total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE status = 'up'), COUNT(*)
		   FROM check_results
		  WHERE monitor_id = $1 AND checked_at >= $2`,
		monitorID, since).Scan(&up, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count results: %w", err)
	}
	return up, total, nil
}

func (s *Store) RecentResults(ctx context.Context, monitorID string, limit int) ([]domain.CheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, monitor_id, status, response_time_ms, status_code, error, details, checked_at
		   FROM check_results
		  WHERE monitor_id = $1
		  ORDER BY checked_at DESC
		  LIMIT $2`,
		monitorID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		var (
			r       domain.CheckResult
			status  string
			details []byte
		)
		if err := rows.Scan(&r.ID, &r.MonitorID, &status, &r.ResponseTimeMS, &r.StatusCode, &r.Error, &details, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = domain.Status(status)
		if err := json.Unmarshal(details, &r.Details); err != nil {
			s.log.Warn("result_details_decode_error", zap.String("result_id", r.ID), zap.Error(err))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- IncidentStore ----

const incidentColumns = `id, monitor_id, monitor_name, owner_id, type, status, details,
       created_at, resolved_at, duration_seconds`

// OpenIncident leans on the partial unique index: a second ongoing row for
// the same monitor is dropped by ON CONFLICT.
func (s *Store) OpenIncident(ctx context.Context, inc *domain.Incident) (bool, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	details, err := json.Marshal(detailsOrEmpty(inc.Details))
	if err != nil {
		return false, fmt.Errorf("encode details: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO incidents
		   (id, monitor_id, monitor_name, owner_id, type, status, details, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (monitor_id) WHERE status = 'ongoing' DO NOTHING`,
		inc.ID, inc.MonitorID, inc.MonitorName, inc.OwnerID, inc.Type, string(inc.Status), details, inc.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert incident: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) OngoingIncidents(ctx context.Context, monitorID string) ([]domain.Incident, error) {
	return s.queryIncidents(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		  WHERE monitor_id = $1 AND status = 'ongoing'
		  ORDER BY created_at`, monitorID)
}

func (s *Store) ResolveIncident(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE incidents
		    SET status = 'resolved',
		        resolved_at = $2,
		        duration_seconds = EXTRACT(EPOCH FROM ($2::timestamptz - created_at))
		  WHERE id = $1 AND status = 'ongoing'`,
		id, at)
	if err != nil {
		return false, fmt.Errorf("resolve incident: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RecentIncidents(ctx context.Context, monitorID string, limit int) ([]domain.Incident, error) {
	return s.queryIncidents(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		  WHERE monitor_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`, monitorID, limitOrAll(limit))
}

func (s *Store) queryIncidents(ctx context.Context, q string, args ...any) ([]domain.Incident, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		var (
			inc     domain.Incident
			status  string
			details []byte
		)
		if err := rows.Scan(&inc.ID, &inc.MonitorID, &inc.MonitorName, &inc.OwnerID, &inc.Type, &status,
			&details, &inc.CreatedAt, &inc.ResolvedAt, &inc.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Status = domain.IncidentStatus(status)
		if err := json.Unmarshal(details, &inc.Details); err != nil {
			s.log.Warn("incident_details_decode_error", zap.String("incident_id", inc.ID), zap.Error(err))
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func scanMonitor(row pgx.Row) (*domain.Monitor, error) {
	var (
		m      domain.Monitor
		typ    string
		status string
		params []byte
	)
	err := row.Scan(&m.ID, &m.Name, &m.OwnerID, &typ, &m.Target, &m.Interval, &m.Timeout, &params, &m.Paused,
		&status, &m.LastCheck, &m.LastResponseTimeMS, &m.UptimePercentage,
		&m.Group, &m.Tags, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Type = domain.ProbeType(typ)
	m.Status = domain.Status(status)
	// Unreadable params fall back to the per-type defaults.
	_ = json.Unmarshal(params, &m.Params)
	return &m, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func detailsOrEmpty(d map[string]any) map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return d
}

// limitOrAll maps a non-positive limit to no limit (LIMIT NULL).
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
