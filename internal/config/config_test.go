package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
supabase:
  project_url: https://demo.supabase.co
  anon_key: anon-key
  service_key: service-key
  timeout: 10s
auth:
  jwt_secret: super-secret
cache:
  redis_addr: localhost:6379
  ttl: 2m
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Supabase.ProjectURL != "https://demo.supabase.co" {
		t.Errorf("Supabase.ProjectURL = %s", cfg.Supabase.ProjectURL)
	}
	if cfg.Supabase.Timeout.Std() != 10*time.Second {
		t.Errorf("Supabase.Timeout = %v, want 10s", cfg.Supabase.Timeout.Std())
	}
	if cfg.Cache.TTL.Std() != 2*time.Minute {
		t.Errorf("Cache.TTL = %v, want 2m", cfg.Cache.TTL.Std())
	}
	// Defaults survive a partial file.
	if cfg.Supabase.StorageBucket != "product-images" {
		t.Errorf("StorageBucket = %s, want default", cfg.Supabase.StorageBucket)
	}
	if cfg.RateLimit.RequestsPerSecond != 20 {
		t.Errorf("RateLimit.RequestsPerSecond = %d, want default 20", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
supabase:
  project_url: https://file.supabase.co
  anon_key: file-anon
auth:
  jwt_secret: file-secret
`)

	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "env-anon")
	t.Setenv("PORT", "7070")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Supabase.ProjectURL != "https://env.supabase.co" {
		t.Errorf("ProjectURL = %s, want env override", cfg.Supabase.ProjectURL)
	}
	if cfg.Supabase.AnonKey != "env-anon" {
		t.Errorf("AnonKey = %s, want env override", cfg.Supabase.AnonKey)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoadFromPath_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "env-anon")
	t.Setenv("SUPABASE_JWT_SECRET", "env-secret")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Supabase.ProjectURL != "https://env.supabase.co" {
		t.Errorf("ProjectURL = %s", cfg.Supabase.ProjectURL)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without supabase credentials")
	}

	cfg.Supabase.ProjectURL = "https://demo.supabase.co"
	cfg.Supabase.AnonKey = "anon"
	cfg.Auth.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	cfg.Server.Port = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject negative port")
	}
}
