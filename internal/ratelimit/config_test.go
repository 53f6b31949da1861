package ratelimit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero burst limit", func(c *Config) { c.BurstLimit = 0 }},
		{"negative day limit", func(c *Config) { c.DayLimit = -1 }},
		{"zero session ttl", func(c *Config) { c.SessionTTL = 0 }},
		{"zero store timeout", func(c *Config) { c.StoreTimeout = 0 }},
		{"oversized store timeout", func(c *Config) { c.StoreTimeout = 2 * time.Second }},
		{"http enabled without address", func(c *Config) { c.HTTPListenAddr = "" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(LoadOptions{Args: []string{}, Environ: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinuteLimit != 20 || cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{"MinuteLimit": 50, "SessionTTL": "1h", "ServiceHost": "svc.test"}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(LoadOptions{ConfigPath: path, Args: []string{}, Environ: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinuteLimit != 50 {
		t.Fatalf("MinuteLimit = %d, want 50", cfg.MinuteLimit)
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
	if cfg.ServiceHost != "svc.test" {
		t.Fatalf("ServiceHost = %q, want svc.test", cfg.ServiceHost)
	}
	// Untouched fields keep their defaults.
	if cfg.HourLimit != 300 {
		t.Fatalf("HourLimit = %d, want 300", cfg.HourLimit)
	}
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"MinuteLimit": 50}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(LoadOptions{
		ConfigPath: path,
		Args:       []string{},
		Environ:    []string{"RATELIMIT_MINUTE_LIMIT=75"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinuteLimit != 75 {
		t.Fatalf("MinuteLimit = %d, want env override 75", cfg.MinuteLimit)
	}
}

func TestLoadConfig_FlagsBeatEnv(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(LoadOptions{
		Args:    []string{"-redis-addr", "flag-redis:6379"},
		Environ: []string{"RATELIMIT_REDIS_ADDR=env-redis:6379"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RedisAddr != "flag-redis:6379" {
		t.Fatalf("RedisAddr = %q, want flag value", cfg.RedisAddr)
	}
}

func TestLoadConfig_ConfigFlagPointsAtFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"KeyPrefix": "svc:"}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(LoadOptions{Args: []string{"-config", path}, Environ: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KeyPrefix != "svc:" {
		t.Fatalf("KeyPrefix = %q, want svc:", cfg.KeyPrefix)
	}
}

func TestLoadConfig_RejectsInvalidResult(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(LoadOptions{
		Args:    []string{},
		Environ: []string{"RATELIMIT_MINUTE_LIMIT=0"},
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadConfig_BadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(LoadOptions{ConfigPath: path, Args: []string{}, Environ: []string{}}); err == nil {
		t.Fatalf("expected error for malformed config file")
	}
}
