package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// PortProbe reports a TCP port as up when a connection can be opened.
type PortProbe struct {
	Dialer *net.Dialer
}

func NewPortProbe() *PortProbe {
	return &PortProbe{Dialer: &net.Dialer{}}
}

func (p *PortProbe) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	port := m.PortNumber()
	addr := net.JoinHostPort(extractHost(m.Target), strconv.Itoa(port))
	details := map[string]any{"port": port}

	ctx, cancel := context.WithTimeout(ctx, m.TimeoutDuration())
	defer cancel()

	start := time.Now()
	conn, err := p.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return down("Connection timeout", nil, details)
		}
		details["error"] = err.Error()
		return down(fmt.Sprintf("Port %d is closed", port), nil, details)
	}
	rt := elapsedMS(start)
	conn.Close()
	return up(rt, details)
}
