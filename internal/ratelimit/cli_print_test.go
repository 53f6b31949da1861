package ratelimit

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPrintConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RedisAddr = "redis:6379"
	cfg.RedisPassword = "hunter2"

	var buf strings.Builder
	if err := PrintConfig(&buf, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(buf.String()), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["MinuteLimit"].(float64) != 20 {
		t.Fatalf("unexpected MinuteLimit: %v", decoded["MinuteLimit"])
	}
	if decoded["RedisAddr"] != "redis:6379" {
		t.Fatalf("unexpected RedisAddr: %v", decoded["RedisAddr"])
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("printed config leaks the redis password")
	}
}

func TestPrintConfig_NilArguments(t *testing.T) {
	t.Parallel()

	if err := PrintConfig(nil, DefaultConfig()); err == nil {
		t.Fatalf("expected error for nil writer")
	}
	var buf strings.Builder
	if err := PrintConfig(&buf, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
