package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir      string // logs directory
	LogLevel    string // debug, info, warn, error
	DatabaseURL string // postgres://..., mongodb://... or empty for the in-memory store
	MongoDB     string // database name when DatabaseURL is a MongoDB URI

	PublicAPIKeys  []string
	AdminAPIKeys   []string
	AllowedOrigins []string // empty allows any origin

	PublicRPM   int
	PublicBurst int
	AdminRPM    int
	AdminBurst  int
	TrustProxy  bool // rate-limit on forwarded client addresses

	MaxConcurrentChecks int           // RunAll fan-out
	UptimeWindow        time.Duration // trailing uptime window
	ResyncInterval      time.Duration // periodic scheduler rebuild; 0 disables

	SlackWebhookURL string
	AlertCooldown   time.Duration
	AlertOnRecovery bool

	ShutdownGrace time.Duration
}

func FromEnv() Config {
	return Config{
		Addr:        str("ADDR", "127.0.0.1:8080"),
		LogDir:      str("LOG_DIR", "logs"),
		LogLevel:    str("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		MongoDB:     str("MONGO_DATABASE", "uptime_monitor"),

		PublicAPIKeys:  list("PUBLIC_API_KEYS"),
		AdminAPIKeys:   list("ADMIN_API_KEYS"),
		AllowedOrigins: list("ALLOWED_ORIGINS"),

		PublicRPM:   num("PUBLIC_RPM", 120, 0),
		PublicBurst: num("PUBLIC_BURST", 60, 1),
		AdminRPM:    num("ADMIN_RPM", 30, 0),
		AdminBurst:  num("ADMIN_BURST", 10, 1),
		TrustProxy:  flag("TRUST_PROXY", false),

		MaxConcurrentChecks: num("MAX_CONCURRENT_CHECKS", 1, 1),
		UptimeWindow:        time.Duration(num("UPTIME_WINDOW_HOURS", 24, 1)) * time.Hour,
		ResyncInterval:      millis("RESYNC_INTERVAL_MS", 0),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		AlertCooldown:   millis("ALERT_COOLDOWN_MS", 10*time.Minute),
		AlertOnRecovery: flag("ALERT_ON_RECOVERY", true),

		ShutdownGrace: millis("SHUTDOWN_GRACE_MS", 10*time.Second),
	}
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// list splits a comma separated value, dropping blanks.
func list(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// num parses an integer; unparsable or below-min values keep the default.
func num(key string, def, min int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= min {
			return n
		}
	}
	return def
}

func millis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func flag(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}
