package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

const defaultTLSPort = 443

// SSLProbe reads the leaf certificate of the target and compares its
// remaining validity with the monitor's threshold.
type SSLProbe struct {
	Clock clockwork.Clock
	// RootCAs overrides the system pool when set.
	RootCAs *x509.CertPool
}

func NewSSLProbe() *SSLProbe {
	return &SSLProbe{Clock: clockwork.NewRealClock()}
}

func (p *SSLProbe) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	host := extractHost(m.Target)
	port := extractPort(m.Target)
	if port == 0 {
		port = defaultTLSPort
	}

	ctx, cancel := context.WithTimeout(ctx, m.TimeoutDuration())
	defer cancel()

	start := time.Now()
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return down(err.Error(), nil, nil)
	}
	conn := tls.Client(raw, &tls.Config{
		ServerName: host,
		RootCAs:    p.RootCAs,
		Time:       p.Clock.Now,
		MinVersion: tls.VersionTLS12,
	})
	defer conn.Close()
	if err := conn.HandshakeContext(ctx); err != nil {
		return down("SSL Error: "+err.Error(), nil, nil)
	}
	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return down("SSL Error: no peer certificate", nil, nil)
	}
	rt := elapsedMS(start)

	leaf := certs[0]
	days := daysUntil(p.Clock.Now(), leaf.NotAfter)
	details := map[string]any{
		"expiry_date":       leaf.NotAfter.UTC().Format(time.RFC3339),
		"days_until_expiry": days,
		"issuer":            nameFields(leaf.Issuer),
		"subject":           nameFields(leaf.Subject),
	}
	if days > m.ThresholdDays() {
		return up(rt, details)
	}
	return down(fmt.Sprintf("SSL expires in %d days", days), rt, details)
}

// daysUntil counts whole days, rounding toward the past.
func daysUntil(now, t time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}

func nameFields(n pkix.Name) map[string]string {
	out := map[string]string{}
	if n.CommonName != "" {
		out["CN"] = n.CommonName
	}
	if len(n.Organization) > 0 {
		out["O"] = n.Organization[0]
	}
	if len(n.OrganizationalUnit) > 0 {
		out["OU"] = n.OrganizationalUnit[0]
	}
	if len(n.Country) > 0 {
		out["C"] = n.Country[0]
	}
	return out
}
