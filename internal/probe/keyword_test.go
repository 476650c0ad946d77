package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

type fakeProber struct {
	out   Outcome
	calls int
}

func (f *fakeProber) Probe(context.Context, *domain.Monitor) Outcome {
	f.calls++
	return f.out
}

type fakeFetcher struct {
	body  string
	err   error
	calls int
}

func (f *fakeFetcher) FetchBody(context.Context, *domain.Monitor) (string, error) {
	f.calls++
	return f.body, f.err
}

func keywordMonitor(text string, mode domain.KeywordMode) *domain.Monitor {
	m := &domain.Monitor{ID: "K1", Type: domain.ProbeKeyword, Target: "http://example.test"}
	m.Params.Keyword = domain.KeywordParams{Text: text, Mode: mode}
	return m
}

func TestKeywordProbe_DownShortCircuits(t *testing.T) {
	h := &fakeProber{out: down("Request timeout", nil, nil)}
	f := &fakeFetcher{body: "whatever"}
	k := &KeywordProbe{HTTP: h, Fetcher: f}

	out := k.Probe(context.Background(), keywordMonitor("hello", domain.KeywordExists))
	if out.Up() || out.Error != "Request timeout" {
		t.Fatalf("http down should pass through unchanged, got %+v", out)
	}
	if f.calls != 0 {
		t.Fatalf("content must not be fetched when the endpoint is down")
	}
}

func TestKeywordProbe_NoKeywordKeepsHTTPVerdict(t *testing.T) {
	h := &fakeProber{out: up(nil, nil)}
	f := &fakeFetcher{}
	out := (&KeywordProbe{HTTP: h, Fetcher: f}).Probe(context.Background(), keywordMonitor("", ""))
	if !out.Up() || f.calls != 0 {
		t.Fatalf("want http verdict with no fetch, got %+v (fetches=%d)", out, f.calls)
	}
}

func TestKeywordProbe_Modes(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		mode   domain.KeywordMode
		wantUp bool
		errMsg string
	}{
		{"exists and found", "Hello World", domain.KeywordExists, true, ""},
		{"exists missing", "nothing here", domain.KeywordExists, false, "Keyword 'hello' not found"},
		{"not exists absent", "nothing here", domain.KeywordNotExists, true, ""},
		{"not exists present", "oh HELLO", domain.KeywordNotExists, false, "Keyword 'hello' found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k := &KeywordProbe{HTTP: &fakeProber{out: up(nil, nil)}, Fetcher: &fakeFetcher{body: tc.body}}
			out := k.Probe(context.Background(), keywordMonitor("hello", tc.mode))
			if out.Up() != tc.wantUp {
				t.Fatalf("want up=%v, got %+v", tc.wantUp, out)
			}
			if out.Error != tc.errMsg {
				t.Fatalf("want error %q, got %q", tc.errMsg, out.Error)
			}
			if _, ok := out.Details["keyword_found"]; !ok {
				t.Fatalf("keyword_found missing from details")
			}
		})
	}
}

func TestKeywordProbe_FetchFailure(t *testing.T) {
	k := &KeywordProbe{
		HTTP:    &fakeProber{out: up(nil, nil)},
		Fetcher: &fakeFetcher{err: errors.New("connection reset")},
	}
	out := k.Probe(context.Background(), keywordMonitor("hello", domain.KeywordExists))
	if out.Up() || out.Error != "connection reset" {
		t.Fatalf("want down with fetch error, got %+v", out)
	}
}

func TestKeywordProbe_AgainstServer(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Status: Operational</body></html>"))
	}))
	defer s.Close()

	m := keywordMonitor("operational", domain.KeywordExists)
	m.Target = s.URL
	m.Timeout = 2
	out := NewKeywordProbe(NewHTTPProbe()).Probe(context.Background(), m)
	if !out.Up() {
		t.Fatalf("want up, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("http status should be kept, got %v", out.StatusCode)
	}
}
