package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAndBackendSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
  cors_origins: ["http://localhost:3000"]
auth:
  jwt_secret: from-file
redis:
  addr: localhost:6379
catalog:
  ttl: 30s
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || len(cfg.Server.CORSOrigins) != 1 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.Auth.JWTSecret)
	}
	if got := cfg.SessionBackend(); got != BackendRedis {
		t.Fatalf("expected redis backend, got %q", got)
	}
	cfg.Postgres.URL = "postgres://localhost/quiz"
	if got := cfg.SessionBackend(); got != BackendPostgres {
		t.Fatalf("expected postgres backend, got %q", got)
	}
	cfg.Sessions.Backend = BackendMemory
	if got := cfg.SessionBackend(); got != BackendMemory {
		t.Fatalf("expected explicit backend to win, got %q", got)
	}
	if d := TTLDuration(cfg.Catalog.TTL, time.Minute); d != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %v", d)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback for empty, got %v", d)
	}
	if d := TTLDuration("soon", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback for garbage, got %v", d)
	}
}
