package probe

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// Outcome is the unified result of a single probe.
//
// Fields:
//   - ResponseTimeMS: nil when the probe never got far enough to measure one.
//   - StatusCode: protocol status code when available (HTTP only).
//   - Error: empty on success; a human readable reason otherwise.
type Outcome struct {
	Status         domain.Status  `json:"status"`
	ResponseTimeMS *float64       `json:"response_time_ms"`
	StatusCode     *int           `json:"status_code"`
	Error          string         `json:"error,omitempty"`
	Details        map[string]any `json:"details"`
}

func (o Outcome) Up() bool { return o.Status == domain.StatusUp }

// Prober checks one monitor. Implementations always return a usable
// Outcome; faults become a down Outcome where they happen.
type Prober interface {
	Probe(ctx context.Context, m *domain.Monitor) Outcome
}

// Registry dispatches a monitor to the prober for its type.
type Registry struct {
	HTTP    Prober
	Keyword Prober
	Ping    Prober
	Port    Prober
	SSL     Prober
	Domain  Prober
}

// NewRegistry wires the default probers.
func NewRegistry() *Registry {
	httpProbe := NewHTTPProbe()
	return &Registry{
		HTTP:    httpProbe,
		Keyword: NewKeywordProbe(httpProbe),
		Ping:    NewPingProbe(),
		Port:    NewPortProbe(),
		SSL:     NewSSLProbe(),
		Domain:  NewDomainProbe(),
	}
}

// For returns the prober for t. Unknown types are probed as HTTP.
func (r *Registry) For(t domain.ProbeType) Prober {
	var p Prober
	switch t {
	case domain.ProbeHTTP:
		p = r.HTTP
	case domain.ProbeKeyword:
		p = r.Keyword
	case domain.ProbePing:
		p = r.Ping
	case domain.ProbePort:
		p = r.Port
	case domain.ProbeSSL:
		p = r.SSL
	case domain.ProbeDomain:
		p = r.Domain
	}
	if p == nil {
		return r.HTTP
	}
	return p
}

// Probe recovers a panicking prober into a down Outcome.
func (r *Registry) Probe(ctx context.Context, m *domain.Monitor) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = down(fmt.Sprintf("Check error: %v", rec), nil, nil)
		}
	}()
	return r.For(m.Type).Probe(ctx, m)
}

func up(rt *float64, details map[string]any) Outcome {
	if details == nil {
		details = map[string]any{}
	}
	return Outcome{Status: domain.StatusUp, ResponseTimeMS: rt, Details: details}
}

func down(reason string, rt *float64, details map[string]any) Outcome {
	if details == nil {
		details = map[string]any{}
	}
	return Outcome{Status: domain.StatusDown, ResponseTimeMS: rt, Error: reason, Details: details}
}

// elapsedMS rounds to two decimals like every response time we store.
func elapsedMS(start time.Time) *float64 {
	return msPtr(time.Since(start))
}

func msPtr(d time.Duration) *float64 {
	ms := math.Round(float64(d.Microseconds())/10) / 100
	return &ms
}

// extractHost pulls the hostname from a URL or a bare host[:port][/path].
func extractHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "http://"), "https://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if u, err := url.Parse("//" + s); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return s
}

// extractPort returns the explicit port of the target, or 0.
func extractPort(raw string) int {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		u, err = url.Parse("//" + strings.TrimSpace(raw))
		if err != nil {
			return 0
		}
	}
	p := u.Port()
	if p == "" {
		return 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}
