package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

const defaultMaxBody = 10 << 20

// HTTPProbe issues a single request and compares the status code with the
// monitor's expected set. It never retries.
type HTTPProbe struct {
	Transport http.RoundTripper
	MaxBody   int64
}

func NewHTTPProbe() *HTTPProbe {
	return &HTTPProbe{
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
		MaxBody:   defaultMaxBody,
	}
}

func (h *HTTPProbe) client(timeout time.Duration, follow bool) *http.Client {
	c := &http.Client{Timeout: timeout, Transport: h.Transport}
	if !follow {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

func (h *HTTPProbe) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	s := m.HTTPSettings()

	var body io.Reader
	if s.Body != "" && methodTakesBody(s.Method) {
		body = strings.NewReader(s.Body)
	}
	req, err := http.NewRequestWithContext(ctx, s.Method, m.Target, body)
	if err != nil {
		return down(err.Error(), nil, nil)
	}
	for k, v := range cleanHeaders(s.Headers) {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := h.client(m.TimeoutDuration(), *s.FollowRedirects).Do(req)
	if err != nil {
		return transportFailure(err, m.TimeoutDuration())
	}
	defer resp.Body.Close()
	n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, h.maxBody()))
	rt := elapsedMS(start)

	code := resp.StatusCode
	details := map[string]any{
		"content_length": n,
		"headers":        flattenHeaders(resp.Header),
	}
	var out Outcome
	if slices.Contains(s.ExpectedCodes, code) {
		out = up(rt, details)
	} else {
		out = down(fmt.Sprintf("Unexpected status code: %d", code), rt, details)
	}
	out.StatusCode = &code
	return out
}

// FetchBody GETs the target and returns at most MaxBody bytes of it.
func (h *HTTPProbe) FetchBody(ctx context.Context, m *domain.Monitor) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.Target, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.client(m.TimeoutDuration(), true).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody()))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

func (h *HTTPProbe) maxBody() int64 {
	if h.MaxBody <= 0 {
		return defaultMaxBody
	}
	return h.MaxBody
}

// transportFailure separates timeouts from connection failures from
// everything else; each gets its own error text.
func transportFailure(err error, timeout time.Duration) Outcome {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return down("Request timeout", msPtr(timeout), nil)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return down("Connection error: "+err.Error(), nil, nil)
	}
	return down(err.Error(), nil, nil)
}

func methodTakesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// cleanHeaders drops entries that would make the transport reject the
// request outright.
func cleanHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
