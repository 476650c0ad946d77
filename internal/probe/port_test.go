package probe

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

func portMonitor(t *testing.T, addr string) *domain.Monitor {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(p)
	m := &domain.Monitor{ID: "T1", Type: domain.ProbePort, Target: host, Timeout: 2}
	m.Params.Port.Port = port
	return m
}

func TestPortProbe_Open(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	m := portMonitor(t, ln.Addr().String())
	out := NewPortProbe().Probe(context.Background(), m)
	if !out.Up() {
		t.Fatalf("want up, got %+v", out)
	}
	if out.ResponseTimeMS == nil {
		t.Fatalf("connect latency should be recorded")
	}
	if out.Details["port"] != m.Params.Port.Port {
		t.Fatalf("details should carry the port, got %v", out.Details)
	}
}

func TestPortProbe_Closed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := portMonitor(t, addr)
	out := NewPortProbe().Probe(context.Background(), m)
	if out.Up() {
		t.Fatalf("want down, got %+v", out)
	}
	want := "Port " + strconv.Itoa(m.Params.Port.Port) + " is closed"
	if out.Error != want {
		t.Fatalf("want %q, got %q", want, out.Error)
	}
	if out.ResponseTimeMS != nil {
		t.Fatalf("closed port has no response time")
	}
}

func TestPortProbe_HostFromURL(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	m := portMonitor(t, ln.Addr().String())
	m.Target = "http://127.0.0.1/some/path"
	if out := NewPortProbe().Probe(context.Background(), m); !out.Up() {
		t.Fatalf("host should be taken from the URL, got %+v", out)
	}
}
