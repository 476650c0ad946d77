package config

import (
	"testing"
	"time"
)

func TestFromEnv_Parses(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("LOG_DIR", "./_testlogs")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PUBLIC_API_KEYS", "pub_a, pub_b,")
	t.Setenv("ADMIN_API_KEYS", "adm_x")
	t.Setenv("ALLOWED_ORIGINS", "https://ops.example.com")
	t.Setenv("MAX_CONCURRENT_CHECKS", "7")
	t.Setenv("PUBLIC_RPM", "111")
	t.Setenv("PUBLIC_BURST", "22")
	t.Setenv("ADMIN_RPM", "33")
	t.Setenv("ADMIN_BURST", "44")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("UPTIME_WINDOW_HOURS", "12")
	t.Setenv("RESYNC_INTERVAL_MS", "60000")
	t.Setenv("ALERT_COOLDOWN_MS", "250")
	t.Setenv("ALERT_ON_RECOVERY", "false")
	t.Setenv("SHUTDOWN_GRACE_MS", "1500")
	t.Setenv("DATABASE_URL", "mongodb://localhost:27017")
	t.Setenv("MONGO_DATABASE", "checks")

	cfg := FromEnv()

	if cfg.Addr != ":9090" || cfg.LogDir != "./_testlogs" || cfg.LogLevel != "debug" {
		t.Fatalf("addr/logdir/level wrong: %+v", cfg)
	}
	if len(cfg.PublicAPIKeys) != 2 || cfg.PublicAPIKeys[1] != "pub_b" {
		t.Fatalf("public keys wrong: %q", cfg.PublicAPIKeys)
	}
	if len(cfg.AdminAPIKeys) != 1 || len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("admin keys/origins wrong: %+v", cfg)
	}
	if cfg.PublicRPM != 111 || cfg.PublicBurst != 22 || cfg.AdminRPM != 33 || cfg.AdminBurst != 44 || !cfg.TrustProxy {
		t.Fatalf("limits wrong: %+v", cfg)
	}
	if cfg.MaxConcurrentChecks != 7 || cfg.UptimeWindow != 12*time.Hour || cfg.ResyncInterval != time.Minute {
		t.Fatalf("check settings wrong: %+v", cfg)
	}
	if cfg.AlertCooldown != 250*time.Millisecond || cfg.AlertOnRecovery || cfg.ShutdownGrace != 1500*time.Millisecond {
		t.Fatalf("alert/shutdown settings wrong: %+v", cfg)
	}
	if cfg.DatabaseURL == "" || cfg.MongoDB != "checks" {
		t.Fatalf("database settings wrong: %+v", cfg)
	}
}

func TestFromEnv_DefaultsAndBadValues(t *testing.T) {
	for _, k := range []string{"ADDR", "LOG_DIR", "LOG_LEVEL", "MONGO_DATABASE", "PUBLIC_API_KEYS", "UPTIME_WINDOW_HOURS", "ALERT_COOLDOWN_MS"} {
		t.Setenv(k, "")
	}
	t.Setenv("MAX_CONCURRENT_CHECKS", "0")
	t.Setenv("PUBLIC_RPM", "lots")
	t.Setenv("ALERT_ON_RECOVERY", "maybe")
	t.Setenv("RESYNC_INTERVAL_MS", "-5")

	cfg := FromEnv()

	if cfg.Addr != "127.0.0.1:8080" || cfg.LogDir != "logs" || cfg.LogLevel != "info" {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	if cfg.MaxConcurrentChecks != 1 || cfg.PublicRPM != 120 || !cfg.AlertOnRecovery || cfg.ResyncInterval != 0 || cfg.TrustProxy {
		t.Fatalf("bad values should keep defaults: %+v", cfg)
	}
	if cfg.UptimeWindow != 24*time.Hour || cfg.AlertCooldown != 10*time.Minute || cfg.MongoDB != "uptime_monitor" {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	if cfg.PublicAPIKeys != nil {
		t.Fatalf("no keys expected: %q", cfg.PublicAPIKeys)
	}
}
