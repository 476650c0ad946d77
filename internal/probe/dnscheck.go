package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

type DNSClass string

const (
	DNSResolves    DNSClass = "RESOLVES"
	DNSNoARecord   DNSClass = "NO_A_RECORD"
	DNSNXDomain    DNSClass = "NXDOMAIN"
	DNSServfail    DNSClass = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName DNSClass = "INVALID_NAME"
)

// HostResolver is the subset of *net.Resolver used to classify a host.
type HostResolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// DNSReport explains why a host might be unreachable. It is attached to
// failed ping outcomes.
type DNSReport struct {
	Host          string
	Class         DNSClass
	Addrs         []string
	Nameservers   []string
	ResolverError string
}

var dnsTimeout = 3 * time.Second

func ClassifyHost(ctx context.Context, r HostResolver, host string) DNSReport {
	s := DNSReport{Host: strings.TrimSpace(host)}
	if s.Host == "" || strings.Contains(s.Host, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if ip := net.ParseIP(s.Host); ip != nil {
		s.Class = DNSResolves
		s.Addrs = []string{ip.String()}
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", s.Host)
	if err == nil && len(ips) > 0 {
		s.Class = DNSResolves
		for _, ip := range ips {
			s.Addrs = append(s.Addrs, ip.String())
		}
	} else if err != nil {
		var de *net.DNSError
		s.ResolverError = err.Error()
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServfail
			}
		}
	}

	if ns, err := r.LookupNS(ctx, s.Host); err == nil && len(ns) > 0 {
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		switch {
		case len(s.Nameservers) > 0:
			s.Class = DNSNoARecord
		case s.ResolverError != "":
			s.Class = DNSServfail
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}

func (s DNSReport) Detail() map[string]any {
	d := map[string]any{"class": string(s.Class)}
	if len(s.Addrs) > 0 {
		d["addrs"] = s.Addrs
	}
	if len(s.Nameservers) > 0 {
		d["nameservers"] = s.Nameservers
	}
	if s.ResolverError != "" {
		d["error"] = s.ResolverError
	}
	return d
}
