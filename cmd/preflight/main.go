// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hamed0406/uptimemonitor/internal/config"
)

type level int

const (
	okLevel level = iota
	warnLevel
	failLevel
)

type finding struct {
	lvl level
	msg string
}

func main() {
	_ = godotenv.Load()
	if !report(os.Stdout, os.Stderr, check(config.FromEnv(), os.Getenv)) {
		os.Exit(1)
	}
}

// report prints findings and says whether preflight passed.
func report(out, errOut io.Writer, fs []finding) bool {
	passed := true
	for _, f := range fs {
		switch f.lvl {
		case okLevel:
			fmt.Fprintln(out, "✔", f.msg)
		case warnLevel:
			fmt.Fprintln(errOut, "⚠", f.msg)
		case failLevel:
			fmt.Fprintln(errOut, "✖", f.msg)
			passed = false
		}
	}
	if passed {
		fmt.Fprintln(out, "✔ preflight passed")
	}
	return passed
}

// check looks at the parsed config and at the raw values, since FromEnv
// silently replaces bad numbers with defaults.
func check(cfg config.Config, getenv func(string) string) []finding {
	var fs []finding
	ok := func(m string) { fs = append(fs, finding{okLevel, m}) }
	warn := func(m string) { fs = append(fs, finding{warnLevel, m}) }
	fail := func(m string) { fs = append(fs, finding{failLevel, m}) }

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (admin routes are open to anyone).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		fail("PUBLIC_API_KEYS is empty (read routes are open to anyone).")
	}
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(getenv(name), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	ok("ADDR=" + cfg.Addr)

	switch u, err := url.Parse(cfg.DatabaseURL); {
	case cfg.DatabaseURL == "":
		warn("DATABASE_URL empty; monitors live in memory and are lost on restart.")
	case err != nil:
		fail("DATABASE_URL does not parse: " + err.Error())
	case u.Scheme == "postgres" || u.Scheme == "postgresql":
		ok("DATABASE_URL is Postgres")
	case u.Scheme == "mongodb" || u.Scheme == "mongodb+srv":
		ok("DATABASE_URL is MongoDB, database " + cfg.MongoDB)
	default:
		fail("DATABASE_URL scheme " + strconv.Quote(u.Scheme) + " is not supported (postgres or mongodb).")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; any origin may call the API from a browser.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.TrustProxy {
		warn("TRUST_PROXY on; rate limits key on X-Forwarded-For / X-Real-IP. Only safe behind a proxy that sets them.")
	}

	for _, name := range []string{
		"PUBLIC_RPM", "PUBLIC_BURST", "ADMIN_RPM", "ADMIN_BURST", "MAX_CONCURRENT_CHECKS",
		"UPTIME_WINDOW_HOURS", "RESYNC_INTERVAL_MS", "ALERT_COOLDOWN_MS", "SHUTDOWN_GRACE_MS",
	} {
		if v := getenv(name); v != "" {
			if _, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
				fail(name + "=" + v + " is not a number.")
			}
		}
	}

	if cfg.SlackWebhookURL == "" {
		warn("SLACK_WEBHOOK_URL empty; incidents will not be announced.")
	} else if !strings.HasPrefix(cfg.SlackWebhookURL, "https://") {
		fail("SLACK_WEBHOOK_URL must be an https URL.")
	} else {
		ok("Slack alerts enabled")
	}
	return fs
}
