package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

type memNotifier struct {
	titles []string
	texts  []string
	err    error
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.titles = append(m.titles, title)
	m.texts = append(m.texts, text)
	return m.err
}

func transition(kind domain.TransitionKind, id string, at time.Time) domain.Transition {
	return domain.Transition{
		Kind:    kind,
		Monitor: domain.Monitor{ID: id, Name: "site " + id, Target: "https://" + id, Type: domain.ProbeHTTP},
		Error:   "Unexpected status code: 500",
		At:      at,
	}
}

func TestAlerter_SendsOnDown_RespectsCooldown(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	nt := &memNotifier{}
	al := NewAlerter(zap.NewNop(), nt, AlerterConfig{
		AlertOnRecovery: true,
		Cooldown:        time.Minute,
		Clock:           clock,
	})

	al.OnTransition(ctx, transition(domain.TransitionDown, "A", clock.Now()))
	if len(nt.titles) != 1 || !strings.Contains(nt.titles[0], "DOWN") {
		t.Fatalf("want 1 down alert, got %v", nt.titles)
	}
	if !strings.Contains(nt.texts[0], "Reason: Unexpected status code: 500") {
		t.Fatalf("reason missing: %q", nt.texts[0])
	}

	// recovery bypasses the cooldown
	clock.Advance(10 * time.Second)
	al.OnTransition(ctx, transition(domain.TransitionRecovered, "A", clock.Now()))
	if len(nt.titles) != 2 || !strings.Contains(nt.titles[1], "RECOVERED") {
		t.Fatalf("want recovery alert, got %v", nt.titles)
	}

	// down again inside the cooldown is suppressed
	clock.Advance(10 * time.Second)
	al.OnTransition(ctx, transition(domain.TransitionDown, "A", clock.Now()))
	if len(nt.titles) != 2 {
		t.Fatalf("want cooldown to suppress, got %d", len(nt.titles))
	}

	// another monitor is independent
	al.OnTransition(ctx, transition(domain.TransitionDown, "B", clock.Now()))
	if len(nt.titles) != 3 {
		t.Fatalf("cooldown must be per monitor, got %d", len(nt.titles))
	}

	clock.Advance(time.Minute)
	al.OnTransition(ctx, transition(domain.TransitionDown, "A", clock.Now()))
	if len(nt.titles) != 4 {
		t.Fatalf("want an alert after the cooldown, got %d", len(nt.titles))
	}
}

func TestAlerter_NoRecoveryIfDisabled(t *testing.T) {
	ctx := context.Background()
	nt := &memNotifier{}
	al := NewAlerter(zap.NewNop(), nt, AlerterConfig{Clock: clockwork.NewFakeClock()})

	al.OnTransition(ctx, transition(domain.TransitionRecovered, "B", time.Now()))
	if len(nt.titles) != 0 {
		t.Fatalf("unexpected alert: %v", nt.titles)
	}
	al.OnTransition(ctx, transition(domain.TransitionDown, "B", time.Now()))
	if len(nt.titles) != 1 {
		t.Fatalf("want one down alert, got %d", len(nt.titles))
	}
}

func TestAlerter_SendErrorIsSwallowed(t *testing.T) {
	nt := &memNotifier{err: errors.New("boom")}
	al := NewAlerter(zap.NewNop(), nt, AlerterConfig{})
	al.OnTransition(context.Background(), transition(domain.TransitionDown, "C", time.Now()))
	if len(nt.titles) != 1 {
		t.Fatalf("send should still be attempted")
	}
}

func TestMessage_RecoveryIncludesDuration(t *testing.T) {
	d := 90.0
	tr := transition(domain.TransitionRecovered, "A", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tr.Error = ""
	tr.Incidents = []domain.Incident{{DurationSeconds: &d}}

	_, text := message(tr)
	if !strings.Contains(text, "Down for: 1m30s") {
		t.Fatalf("duration missing: %q", text)
	}
	if strings.Contains(text, "Reason:") {
		t.Fatalf("recovery without error should not carry a reason: %q", text)
	}
	if !strings.HasSuffix(text, "Checked: 2025-06-01T12:00:00Z") {
		t.Fatalf("timestamp missing: %q", text)
	}
}

func TestMulti_TriesEveryNotifier(t *testing.T) {
	a := &memNotifier{err: errors.New("a failed")}
	b := &memNotifier{}
	c := &memNotifier{err: errors.New("c failed")}

	err := Multi{a, nil, b, c}.Send(context.Background(), "T", "X")
	if len(a.titles) != 1 || len(b.titles) != 1 || len(c.titles) != 1 {
		t.Fatalf("every notifier should be called")
	}
	if err == nil || !strings.Contains(err.Error(), "a failed") || !strings.Contains(err.Error(), "c failed") {
		t.Fatalf("want both errors combined, got %v", err)
	}
	if err := (Multi{b}).Send(context.Background(), "T", "X"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
