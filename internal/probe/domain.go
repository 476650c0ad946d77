package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/jonboulle/clockwork"
	"golang.org/x/net/publicsuffix"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// WhoisLookup returns the raw whois record for a registrable domain.
type WhoisLookup func(ctx context.Context, name string) (string, error)

// Labels preceding an expiry date in whois output, in match order.
var expiryLabels = []string{
	"expiry date:",
	"expiration date:",
	"registry expiry date:",
	"registrar registration expiration date:",
	"expires on:",
	"expire date:",
}

// DomainProbe checks how long the target's registration has left. A record
// without a recognisable expiry date is reported up.
type DomainProbe struct {
	Lookup WhoisLookup
	Clock  clockwork.Clock
	// MinDeadline bounds the lookup from below; the effective deadline is
	// never shorter than the monitor timeout plus five seconds.
	MinDeadline time.Duration
}

func NewDomainProbe() *DomainProbe {
	return &DomainProbe{
		Lookup:      WhoisCommand(execRunner),
		Clock:       clockwork.NewRealClock(),
		MinDeadline: 30 * time.Second,
	}
}

// WhoisCommand runs the system whois client. Its exit status is ignored;
// whatever it printed is parsed.
func WhoisCommand(run CommandRunner) WhoisLookup {
	return func(ctx context.Context, name string) (string, error) {
		res, err := run(ctx, "whois", name)
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("whois %s timed out: %w", name, ctxErr)
		}
		if err != nil {
			return "", fmt.Errorf("whois %s: %w", name, err)
		}
		return res.Stdout, nil
	}
}

func (p *DomainProbe) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	name := registrableDomain(extractHost(m.Target))

	deadline := max(m.TimeoutDuration()+5*time.Second, p.MinDeadline)
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	record, err := p.Lookup(ctx, name)
	if err != nil {
		return down(err.Error(), nil, nil)
	}
	rt := elapsedMS(start)

	expiry, ok := parseWhoisExpiry(record)
	if !ok {
		return up(rt, map[string]any{
			"message": "Could not parse expiry date",
			"domain":  name,
		})
	}
	days := daysUntil(p.Clock.Now(), expiry)
	details := map[string]any{
		"expiry_date":       expiry.UTC().Format(time.RFC3339),
		"days_until_expiry": days,
		"domain":            name,
	}
	if days > m.ThresholdDays() {
		return up(rt, details)
	}
	return down(fmt.Sprintf("Domain expires in %d days", days), rt, details)
}

// registrableDomain reduces a host to its eTLD+1; whois servers do not
// answer for subdomains.
func registrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// parseWhoisExpiry returns the first labelled date that parses, scanning
// lines top to bottom.
func parseWhoisExpiry(record string) (time.Time, bool) {
	for _, line := range strings.Split(record, "\n") {
		lower := strings.ToLower(line)
		for _, label := range expiryLabels {
			if !strings.Contains(lower, label) {
				continue
			}
			_, value, _ := strings.Cut(line, ":")
			t, err := dateparse.ParseIn(strings.TrimSpace(value), time.UTC)
			if err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
