package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Dispatch.GeofenceRadiusM != 150 {
		t.Errorf("geofence radius: got %v", cfg.Dispatch.GeofenceRadiusM)
	}
	if cfg.Dispatch.NotifyCount != 3 {
		t.Errorf("notify count: got %d", cfg.Dispatch.NotifyCount)
	}
	if cfg.Dispatch.AutoAssign {
		t.Error("auto-assign should be off by default")
	}
	if cfg.Tracking.ConnBuffer != 256 {
		t.Errorf("conn buffer: got %d", cfg.Tracking.ConnBuffer)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout: got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.RabbitMQ.URL != "" {
		t.Errorf("rabbitmq should be disabled by default, got %q", cfg.RabbitMQ.URL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GEOFENCE_RADIUS_METERS", "200.5")
	t.Setenv("DISPATCH_NOTIFY_COUNT", "5")
	t.Setenv("DISPATCH_AUTO_ASSIGN", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example.com, https://admin.example.com,")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("REDIS_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dispatch.GeofenceRadiusM != 200.5 || cfg.Dispatch.NotifyCount != 5 || !cfg.Dispatch.AutoAssign {
		t.Errorf("dispatch overrides not applied: %+v", cfg.Dispatch)
	}
	if got := strings.Join(cfg.CORS.AllowedOrigins, "|"); got != "https://ops.example.com|https://admin.example.com" {
		t.Errorf("origins: got %q", got)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format: got %q", cfg.Log.Format)
	}
	// unparsable values fall back
	if cfg.Redis.Port != 6379 {
		t.Errorf("redis port: got %d", cfg.Redis.Port)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"GEOFENCE_RADIUS_METERS", "-1"},
		{"DISPATCH_NOTIFY_COUNT", "0"},
		{"TRACKING_CONN_BUFFER", "0"},
		{"LOG_FORMAT", "xml"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tc.key, tc.value)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DB: "d", SSLMode: "disable"}
	if got := p.DSN(); got != "host=db port=5432 user=u password=p dbname=d sslmode=disable" {
		t.Errorf("dsn: got %q", got)
	}
	p.URL = "postgres://x"
	if p.DSN() != "postgres://x" {
		t.Error("DATABASE_URL should take precedence")
	}
}
