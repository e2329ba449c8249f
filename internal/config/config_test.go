package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("GATEWAY_SEND_BUFFER", "16")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("jwt secret not bound from JWT_SECRET: %q", cfg.Auth.JWTSecret)
	}
	if cfg.Redis.Address != "redis:6379" {
		t.Errorf("redis address not bound from REDIS_ADDR: %q", cfg.Redis.Address)
	}
	if cfg.Gateway.SendBuffer != 16 {
		t.Errorf("expected automatic env override, got %d", cfg.Gateway.SendBuffer)
	}
	if cfg.Postgres.DSN != "" {
		t.Errorf("expected empty dsn by default, got %q", cfg.Postgres.DSN)
	}
	if cfg.Sync.RetentionMonths != 3 {
		t.Errorf("expected default retention of 3 months, got %d", cfg.Sync.RetentionMonths)
	}
	if cfg.Gateway.PingInterval != 0 {
		t.Errorf("expected pings disabled by default, got %v", cfg.Gateway.PingInterval)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("unexpected shutdown timeout %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr())
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
auth:
  jwt_secret: from-file
  audience: voicechat
gateway:
  ping_interval: 20s
sync:
  retention_months: 6
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Auth.JWTSecret != "from-file" || cfg.Auth.Audience != "voicechat" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Gateway.PingInterval != 20*time.Second {
		t.Errorf("expected 20s ping interval, got %v", cfg.Gateway.PingInterval)
	}
	if cfg.Sync.RetentionMonths != 6 {
		t.Errorf("expected retention 6, got %d", cfg.Sync.RetentionMonths)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error without a jwt secret")
	}
}
