package probe

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// BodyFetcher returns the body of a monitor's target.
type BodyFetcher interface {
	FetchBody(ctx context.Context, m *domain.Monitor) (string, error)
}

// KeywordProbe runs the HTTP probe first and only inspects content when
// the endpoint itself is up.
type KeywordProbe struct {
	HTTP    Prober
	Fetcher BodyFetcher
}

func NewKeywordProbe(h *HTTPProbe) *KeywordProbe {
	return &KeywordProbe{HTTP: h, Fetcher: h}
}

func (k *KeywordProbe) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	out := k.HTTP.Probe(ctx, m)
	if !out.Up() {
		return out
	}
	s := m.KeywordSettings()
	if s.Text == "" {
		return out
	}

	details := maps.Clone(out.Details)
	if details == nil {
		details = map[string]any{}
	}

	body, err := k.Fetcher.FetchBody(ctx, m)
	if err != nil {
		res := down(err.Error(), out.ResponseTimeMS, details)
		res.StatusCode = out.StatusCode
		return res
	}

	found := strings.Contains(strings.ToLower(body), strings.ToLower(s.Text))
	details["keyword_found"] = found

	var res Outcome
	switch {
	case s.Mode == domain.KeywordExists && found, s.Mode == domain.KeywordNotExists && !found:
		res = up(out.ResponseTimeMS, details)
	case s.Mode == domain.KeywordExists:
		res = down(fmt.Sprintf("Keyword '%s' not found", s.Text), out.ResponseTimeMS, details)
	default:
		res = down(fmt.Sprintf("Keyword '%s' found", s.Text), out.ResponseTimeMS, details)
	}
	res.StatusCode = out.StatusCode
	return res
}
