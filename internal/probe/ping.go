package probe

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// CommandResult is what a finished external command produced. A non-zero
// ExitCode is not an error.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs an external tool. It returns an error only when the
// command could not be run at all.
type CommandRunner func(ctx context.Context, name string, args ...string) (CommandResult, error)

func execRunner(ctx context.Context, name string, args ...string) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

// PingProbe sends one ICMP echo through the system ping tool.
type PingProbe struct {
	Run      CommandRunner
	Resolver HostResolver
	// Grace is added to the monitor timeout to bound the whole command.
	Grace time.Duration
}

func NewPingProbe() *PingProbe {
	return &PingProbe{Run: execRunner, Resolver: net.DefaultResolver, Grace: 5 * time.Second}
}

func (p *PingProbe) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	host := extractHost(m.Target)
	timeout := m.TimeoutDuration()

	cctx, cancel := context.WithTimeout(ctx, timeout+p.Grace)
	defer cancel()

	start := time.Now()
	res, err := p.Run(cctx, "ping", "-c", "1", "-W", strconv.Itoa(int(timeout/time.Second)), host)
	rt := elapsedMS(start)
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return down("Ping timeout", nil, nil)
	}
	if err != nil {
		return down(err.Error(), nil, nil)
	}
	if res.ExitCode != 0 {
		details := map[string]any{"output": res.Stderr}
		if p.Resolver != nil {
			details["dns"] = ClassifyHost(ctx, p.Resolver, host).Detail()
		}
		return down("Host unreachable", nil, details)
	}
	if v, ok := parsePingTime(res.Stdout); ok {
		rt = &v
	}
	return up(rt, map[string]any{"output": res.Stdout})
}

// parsePingTime reads the round trip from the first "time=<x> ms" line.
func parsePingTime(out string) (float64, bool) {
	for _, line := range strings.Split(out, "\n") {
		_, after, ok := strings.Cut(line, "time=")
		if !ok {
			continue
		}
		fields := strings.Fields(after)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "ms"), 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}
