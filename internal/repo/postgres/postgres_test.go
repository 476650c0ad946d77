package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" || !strings.HasPrefix(dsn, "postgres") {
		t.Skip("DATABASE_URL not set to postgres; skipping Postgres integration test")
	}
	store, err := New(context.Background(), dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore_MonitorLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	// Unique group per run so leftovers from earlier runs don't interfere.
	group := fmt.Sprintf("test-%d", time.Now().UTC().UnixNano())
	m := &domain.Monitor{Name: "site", Target: "https://example.com", Group: group, Tags: []string{"a"}}
	m.ApplyDefaults()
	m.Params.HTTP.ExpectedCodes = []int{200}
	if err := store.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteMonitor(context.Background(), m.ID) })

	got, err := store.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.Status != domain.StatusPending || got.UptimePercentage != 100 {
		t.Fatalf("new monitor not initialised: %+v", got)
	}
	if len(got.Params.HTTP.ExpectedCodes) != 1 || got.Tags[0] != "a" {
		t.Fatalf("params/tags not persisted: %+v", got)
	}

	rt := 42.0
	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.RecordCheck(ctx, m.ID, domain.CheckUpdate{
		Status: domain.StatusUp, LastCheck: at, LastResponseTimeMS: &rt, UptimePercentage: 99.5,
	}); err != nil {
		t.Fatalf("RecordCheck: %v", err)
	}

	m.Name = "renamed"
	m.Paused = true
	if err := store.UpdateMonitor(ctx, m); err != nil {
		t.Fatalf("UpdateMonitor: %v", err)
	}
	got, _ = store.GetMonitor(ctx, m.ID)
	if got.Name != "renamed" || got.Status != domain.StatusUp || got.UptimePercentage != 99.5 {
		t.Fatalf("edit should keep live status: %+v", got)
	}

	active, err := store.ListMonitors(ctx, repo.MonitorFilter{Group: group, ActiveOnly: true})
	if err != nil {
		t.Fatalf("ListMonitors: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("paused monitor listed as active")
	}

	groups, err := store.Groups(ctx)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	found := false
	for _, g := range groups {
		found = found || g == group
	}
	if !found {
		t.Fatalf("group %s missing from %v", group, groups)
	}
}

func TestPostgresStore_ResultsAndIncidents(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	m := &domain.Monitor{Name: "site", Target: "https://example.com"}
	m.ApplyDefaults()
	if err := store.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	code := 500
	msg := "Unexpected status code: 500"
	for i, st := range []domain.Status{domain.StatusUp, domain.StatusDown, domain.StatusUp} {
		r := &domain.CheckResult{MonitorID: m.ID, Status: st, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if st == domain.StatusDown {
			r.StatusCode = &code
			r.Error = &msg
		}
		if err := store.AppendResult(ctx, r); err != nil {
			t.Fatalf("AppendResult: %v", err)
		}
	}
	up, total, err := store.CountResults(ctx, m.ID, base)
	if err != nil || up != 2 || total != 3 {
		t.Fatalf("want 2/3, got %d/%d err=%v", up, total, err)
	}
	recent, err := store.RecentResults(ctx, m.ID, 10)
	if err != nil || len(recent) != 3 || recent[1].StatusCode == nil || *recent[1].StatusCode != 500 {
		t.Fatalf("unexpected recent results: %+v err=%v", recent, err)
	}

	inc := domain.NewIncident(m, msg, base)
	if ok, err := store.OpenIncident(ctx, inc); err != nil || !ok {
		t.Fatalf("OpenIncident: %v %v", ok, err)
	}
	if ok, err := store.OpenIncident(ctx, domain.NewIncident(m, msg, base)); err != nil || ok {
		t.Fatalf("second ongoing incident must be refused: %v %v", ok, err)
	}
	if ok, err := store.ResolveIncident(ctx, inc.ID, base.Add(90*time.Second)); err != nil || !ok {
		t.Fatalf("ResolveIncident: %v %v", ok, err)
	}
	if ok, _ := store.ResolveIncident(ctx, inc.ID, base.Add(time.Hour)); ok {
		t.Fatalf("resolve must be once only")
	}
	incs, err := store.RecentIncidents(ctx, m.ID, 10)
	if err != nil || len(incs) != 1 || incs[0].DurationSeconds == nil || *incs[0].DurationSeconds != 90 {
		t.Fatalf("unexpected incidents: %+v err=%v", incs, err)
	}

	if err := store.DeleteMonitor(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMonitor: %v", err)
	}
	if _, total, _ := store.CountResults(ctx, m.ID, time.Time{}); total != 0 {
		t.Fatalf("results should cascade on delete")
	}
	if _, err := store.GetMonitor(ctx, m.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}
