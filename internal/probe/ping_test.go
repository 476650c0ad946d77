package probe

import (
	"context"
	"errors"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

const pingOK = `PING example.com (93.184.216.34) 56(84) bytes of data.
64 bytes from 93.184.216.34: icmp_seq=1 ttl=57 time=11.6 ms

--- example.com ping statistics ---
1 packets transmitted, 1 received, 0% packet loss, time 0ms
`

type fakeResolver struct {
	ips   []net.IP
	ipErr error
	ns    []*net.NS
	nsErr error
}

func (f fakeResolver) LookupIP(context.Context, string, string) ([]net.IP, error) {
	return f.ips, f.ipErr
}

func (f fakeResolver) LookupNS(context.Context, string) ([]*net.NS, error) {
	return f.ns, f.nsErr
}

func pingMonitor(target string) *domain.Monitor {
	return &domain.Monitor{ID: "P1", Type: domain.ProbePing, Target: target, Timeout: 3}
}

func TestPingProbe_UpParsesTime(t *testing.T) {
	var gotArgs []string
	p := &PingProbe{
		Run: func(_ context.Context, name string, args ...string) (CommandResult, error) {
			gotArgs = append([]string{name}, args...)
			return CommandResult{Stdout: pingOK}, nil
		},
	}
	out := p.Probe(context.Background(), pingMonitor("https://example.com/health"))
	if !out.Up() {
		t.Fatalf("want up, got %+v", out)
	}
	if out.ResponseTimeMS == nil || *out.ResponseTimeMS != 11.6 {
		t.Fatalf("want parsed time 11.6, got %v", out.ResponseTimeMS)
	}
	want := []string{"ping", "-c", "1", "-W", "3", "example.com"}
	if !slices.Equal(gotArgs, want) {
		t.Fatalf("want %v, got %v", want, gotArgs)
	}
}

func TestPingProbe_Unreachable(t *testing.T) {
	p := &PingProbe{
		Run: func(context.Context, string, ...string) (CommandResult, error) {
			return CommandResult{Stderr: "ping: unknown host", ExitCode: 2}, nil
		},
		Resolver: fakeResolver{ipErr: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}},
	}
	out := p.Probe(context.Background(), pingMonitor("nope.invalid"))
	if out.Up() || out.Error != "Host unreachable" {
		t.Fatalf("want Host unreachable, got %+v", out)
	}
	if out.ResponseTimeMS != nil {
		t.Fatalf("unreachable host has no response time")
	}
	dns, _ := out.Details["dns"].(map[string]any)
	if dns["class"] != string(DNSNXDomain) {
		t.Fatalf("want NXDOMAIN classification, got %v", out.Details["dns"])
	}
}

func TestPingProbe_OuterDeadline(t *testing.T) {
	p := &PingProbe{
		Grace: 10 * time.Millisecond,
		Run: func(ctx context.Context, _ string, _ ...string) (CommandResult, error) {
			<-ctx.Done()
			return CommandResult{ExitCode: -1}, nil
		},
	}
	m := pingMonitor("example.com")
	m.Timeout = 1

	start := time.Now()
	out := p.Probe(context.Background(), m)
	if out.Error != "Ping timeout" {
		t.Fatalf("want Ping timeout, got %+v", out)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("outer deadline not enforced")
	}
}

func TestPingProbe_RunnerError(t *testing.T) {
	p := &PingProbe{
		Run: func(context.Context, string, ...string) (CommandResult, error) {
			return CommandResult{}, errors.New(`exec: "ping": executable file not found in $PATH`)
		},
	}
	out := p.Probe(context.Background(), pingMonitor("example.com"))
	if out.Up() || out.Error == "" {
		t.Fatalf("want down with the runner error, got %+v", out)
	}
}

func TestParsePingTime(t *testing.T) {
	if v, ok := parsePingTime("64 bytes from x: icmp_seq=1 ttl=57 time=0.045ms"); !ok || v != 0.045 {
		t.Fatalf("got %v %v", v, ok)
	}
	if _, ok := parsePingTime("no timing here"); ok {
		t.Fatalf("want no match")
	}
}

func TestClassifyHost(t *testing.T) {
	ctx := context.Background()
	if got := ClassifyHost(ctx, fakeResolver{}, "http://bad").Class; got != DNSInvalidName {
		t.Fatalf("want INVALID_NAME, got %s", got)
	}
	if got := ClassifyHost(ctx, fakeResolver{}, "10.0.0.1").Class; got != DNSResolves {
		t.Fatalf("IP literal should resolve, got %s", got)
	}
	r := fakeResolver{ips: []net.IP{net.ParseIP("192.0.2.1")}}
	if got := ClassifyHost(ctx, r, "ok.example").Class; got != DNSResolves {
		t.Fatalf("want RESOLVES, got %s", got)
	}
	r = fakeResolver{
		ipErr: &net.DNSError{Err: "no such host", IsNotFound: true},
		ns:    []*net.NS{{Host: "ns1.example."}},
	}
	rep := ClassifyHost(ctx, r, "parked.example")
	if rep.Class != DNSNoARecord || rep.Nameservers[0] != "ns1.example" {
		t.Fatalf("want NO_A_RECORD with nameserver, got %+v", rep)
	}
	r = fakeResolver{ipErr: &net.DNSError{Err: "server misbehaving", IsTemporary: true}}
	if got := ClassifyHost(ctx, r, "flaky.example").Class; got != DNSServfail {
		t.Fatalf("want SERVFAIL_or_TIMEOUT, got %s", got)
	}
}
