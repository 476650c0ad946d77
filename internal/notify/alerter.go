package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	// Cooldown suppresses repeated down alerts for one monitor.
	Cooldown time.Duration
	Clock    clockwork.Clock
}

// Alerter turns incident transitions into notifier messages. It plugs into
// the check executor as an observer.
type Alerter struct {
	log      *zap.Logger
	notifier Notifier
	cfg      AlerterConfig

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewAlerter(log *zap.Logger, n Notifier, cfg AlerterConfig) *Alerter {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Alerter{
		log:      log,
		notifier: n,
		cfg:      cfg,
		lastSent: map[string]time.Time{},
	}
}

func (a *Alerter) OnTransition(ctx context.Context, t domain.Transition) {
	id := t.Monitor.ID
	now := a.cfg.Clock.Now()

	a.mu.Lock()
	last, seen := a.lastSent[id]
	cooled := !seen || now.Sub(last) >= a.cfg.Cooldown

	// Cooldown only applies to down alerts; recoveries always go out when enabled.
	send := false
	switch t.Kind {
	case domain.TransitionDown:
		send = cooled
	case domain.TransitionRecovered:
		send = a.cfg.AlertOnRecovery
	}
	if send {
		a.lastSent[id] = now
	}
	a.mu.Unlock()

	if !send {
		a.log.Debug("alert_suppressed",
			zap.String("monitor_id", id),
			zap.String("kind", string(t.Kind)),
		)
		return
	}

	title, text := message(t)
	if err := a.notifier.Send(ctx, title, text); err != nil {
		a.log.Warn("alert_send_error",
			zap.String("monitor_id", id),
			zap.String("kind", string(t.Kind)),
			zap.Error(err),
		)
		return
	}
	a.log.Info("alert_sent", zap.String("monitor_id", id), zap.String("kind", string(t.Kind)))
}

func message(t domain.Transition) (string, string) {
	title := "🔴 Monitor DOWN"
	if t.Kind == domain.TransitionRecovered {
		title = "🟢 Monitor RECOVERED"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Monitor: %s\n", t.Monitor.Name)
	fmt.Fprintf(&b, "Target: %s\n", t.Monitor.Target)
	fmt.Fprintf(&b, "Type: %s\n", t.Monitor.Type)
	if t.Error != "" {
		fmt.Fprintf(&b, "Reason: %s\n", t.Error)
	}
	for _, inc := range t.Incidents {
		if inc.DurationSeconds != nil {
			fmt.Fprintf(&b, "Down for: %s\n", (time.Duration(*inc.DurationSeconds) * time.Second).String())
		}
	}
	fmt.Fprintf(&b, "Checked: %s", t.At.UTC().Format(time.RFC3339))
	return title, b.String()
}
