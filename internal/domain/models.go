package domain

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

type ProbeType string

const (
	ProbeHTTP    ProbeType = "http"
	ProbeKeyword ProbeType = "keyword"
	ProbePing    ProbeType = "ping"
	ProbePort    ProbeType = "port"
	ProbeSSL     ProbeType = "ssl"
	ProbeDomain  ProbeType = "domain"
)

// ProbeTypes lists every supported probe kind.
func ProbeTypes() []ProbeType {
	return []ProbeType{ProbeHTTP, ProbeKeyword, ProbePing, ProbePort, ProbeSSL, ProbeDomain}
}

func (t ProbeType) Valid() bool { return slices.Contains(ProbeTypes(), t) }

type Status string

const (
	StatusPending Status = "pending"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// Allowed check intervals in seconds.
var Intervals = []int{30, 60, 120, 180, 300, 600, 900, 1800, 3600}

const (
	DefaultInterval      = 300
	DefaultTimeout       = 30
	DefaultGroup         = "default"
	DefaultPort          = 80
	DefaultThresholdDays = 30
)

var (
	DefaultExpectedCodes = []int{200, 201, 301, 302}
	httpMethods          = []string{
		http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodDelete, http.MethodPatch, http.MethodOptions,
	}
)

type Monitor struct {
	ID      string    `json:"id" bson:"_id"`
	Name    string    `json:"name" bson:"name"`
	OwnerID string    `json:"owner_id,omitempty" bson:"user_id,omitempty"`
	Type    ProbeType `json:"type" bson:"type"`
	Target  string    `json:"target" bson:"url"`
	// Interval and Timeout are seconds.
	Interval int    `json:"interval" bson:"interval"`
	Timeout  int    `json:"timeout" bson:"timeout"`
	Params   Params `json:"params" bson:"params"`
	Paused   bool   `json:"paused" bson:"is_paused"`

	Status             Status     `json:"status" bson:"status"`
	LastCheck          *time.Time `json:"last_check" bson:"last_check"`
	LastResponseTimeMS *float64   `json:"last_response_time_ms" bson:"last_response_time"`
	UptimePercentage   float64    `json:"uptime_percentage" bson:"uptime_percentage"`

	Group string   `json:"group" bson:"group"`
	Tags  []string `json:"tags,omitempty" bson:"tags"`
	Notes string   `json:"notes,omitempty" bson:"notes"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Params carries per-probe settings. Only the section matching the
// monitor's Type is read; the accessors fill in defaults for anything
// missing or malformed.
type Params struct {
	HTTP    HTTPParams    `json:"http" bson:"http"`
	Keyword KeywordParams `json:"keyword" bson:"keyword"`
	Port    PortParams    `json:"port" bson:"port"`
	Expiry  ExpiryParams  `json:"expiry" bson:"expiry"`
}

type HTTPParams struct {
	Method          string            `json:"method,omitempty" bson:"method"`
	ExpectedCodes   []int             `json:"expected_status_codes,omitempty" bson:"expected_status_codes"`
	Headers         map[string]string `json:"headers,omitempty" bson:"headers"`
	Body            string            `json:"body,omitempty" bson:"body"`
	FollowRedirects *bool             `json:"follow_redirects,omitempty" bson:"follow_redirects"`
}

type KeywordMode string

const (
	KeywordExists    KeywordMode = "exists"
	KeywordNotExists KeywordMode = "not_exists"
)

type KeywordParams struct {
	Text string      `json:"text,omitempty" bson:"text"`
	Mode KeywordMode `json:"mode,omitempty" bson:"mode"`
}

type PortParams struct {
	Port int `json:"port,omitempty" bson:"port"`
}

type ExpiryParams struct {
	ThresholdDays int `json:"threshold_days,omitempty" bson:"threshold_days"`
}

// HTTPSettings returns the HTTP section with defaults applied.
func (m *Monitor) HTTPSettings() HTTPParams {
	p := m.Params.HTTP
	p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
	if !slices.Contains(httpMethods, p.Method) {
		p.Method = http.MethodGet
	}
	if len(p.ExpectedCodes) == 0 {
		p.ExpectedCodes = DefaultExpectedCodes
	}
	if p.FollowRedirects == nil {
		follow := true
		p.FollowRedirects = &follow
	}
	return p
}

func (m *Monitor) KeywordSettings() KeywordParams {
	p := m.Params.Keyword
	if p.Mode != KeywordNotExists {
		p.Mode = KeywordExists
	}
	return p
}

func (m *Monitor) PortNumber() int {
	if p := m.Params.Port.Port; p > 0 && p <= 65535 {
		return p
	}
	return DefaultPort
}

func (m *Monitor) ThresholdDays() int {
	if d := m.Params.Expiry.ThresholdDays; d > 0 {
		return d
	}
	return DefaultThresholdDays
}

// TimeoutDuration is the per-probe timeout.
func (m *Monitor) TimeoutDuration() time.Duration {
	if m.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(m.Timeout) * time.Second
}

// IntervalDuration falls back to the default interval for values outside
// the allowed set.
func (m *Monitor) IntervalDuration() time.Duration {
	if !slices.Contains(Intervals, m.Interval) {
		return DefaultInterval * time.Second
	}
	return time.Duration(m.Interval) * time.Second
}

// ApplyDefaults fills unset configuration fields for a new monitor.
func (m *Monitor) ApplyDefaults() {
	if m.Type == "" {
		m.Type = ProbeHTTP
	}
	if m.Interval == 0 {
		m.Interval = DefaultInterval
	}
	if m.Timeout == 0 {
		m.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(m.Group) == "" {
		m.Group = DefaultGroup
	}
}

// ValidationError reports a configuration entry error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks what an operator enters when adding or editing a monitor.
func (m *Monitor) Validate() error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case strings.TrimSpace(m.Target) == "":
		return &ValidationError{Field: "target", Reason: "required"}
	case !m.Type.Valid():
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown probe type %q", m.Type)}
	case !slices.Contains(Intervals, m.Interval):
		return &ValidationError{Field: "interval", Reason: fmt.Sprintf("%d is not an allowed interval", m.Interval)}
	case m.Timeout < 1 || m.Timeout > 300:
		return &ValidationError{Field: "timeout", Reason: "must be between 1 and 300 seconds"}
	}
	if m.Type == ProbePort {
		if p := m.Params.Port.Port; p < 0 || p > 65535 {
			return &ValidationError{Field: "params.port.port", Reason: "out of range"}
		}
	}
	if m.Type == ProbeKeyword {
		if md := m.Params.Keyword.Mode; md != "" && md != KeywordExists && md != KeywordNotExists {
			return &ValidationError{Field: "params.keyword.mode", Reason: fmt.Sprintf("unknown mode %q", md)}
		}
	}
	return nil
}
