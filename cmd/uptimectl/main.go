// Command uptimectl talks to a running uptimed over its HTTP API.
//
//	uptimectl [-api URL] [-key KEY] status|list|sync|run-all|check ID|add -name N -target T [-type http] [-interval 300]
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, &http.Client{Timeout: 2 * time.Minute}); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	key  string
	http *http.Client
}

func run(args []string, out io.Writer, hc *http.Client) error {
	fs := flag.NewFlagSet("uptimectl", flag.ContinueOnError)
	api := fs.String("api", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	key := fs.String("key", os.Getenv("API_KEY"), "API key (admin key for write commands)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("missing command: status, list, sync, run-all, check, add")
	}
	c := &client{base: strings.TrimRight(*api, "/"), key: *key, http: hc}

	rest := fs.Args()[1:]
	switch cmd := fs.Arg(0); cmd {
	case "status":
		return c.print(out, http.MethodGet, "/api/scheduler", nil)
	case "list":
		return c.print(out, http.MethodGet, "/api/monitors", nil)
	case "sync":
		return c.print(out, http.MethodPost, "/api/scheduler/sync", nil)
	case "run-all":
		return c.print(out, http.MethodPost, "/api/checks/run", nil)
	case "check":
		if len(rest) != 1 {
			return errors.New("usage: check MONITOR_ID")
		}
		return c.print(out, http.MethodPost, "/api/monitors/"+rest[0]+"/check", nil)
	case "add":
		body, err := addPayload(rest)
		if err != nil {
			return err
		}
		return c.print(out, http.MethodPost, "/api/monitors", body)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func addPayload(args []string) (map[string]any, error) {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	name := fs.String("name", "", "monitor name")
	target := fs.String("target", "", "URL, host or domain to check")
	typ := fs.String("type", "http", "http, keyword, ping, port, ssl or domain")
	interval := fs.Int("interval", 300, "seconds between checks")
	group := fs.String("group", "", "group name")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *name == "" || *target == "" {
		return nil, errors.New("add needs -name and -target")
	}
	t := *target
	if (*typ == "http" || *typ == "keyword") && !strings.Contains(t, "://") {
		t = "https://" + t
	}
	body := map[string]any{"name": *name, "target": t, "type": *typ, "interval": *interval}
	if *group != "" {
		body["group"] = *group
	}
	return body, nil
}

func (c *client) print(out io.Writer, method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("API returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if len(raw) == 0 {
		_, err = fmt.Fprintln(out, resp.Status)
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") != nil {
		_, err = out.Write(raw)
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(out)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
