package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Env != "development" || cfg.App.LogLevel != "info" {
		t.Fatalf("unexpected app defaults: %+v", cfg.App)
	}
	if cfg.Queue.Name != "messages" {
		t.Fatalf("queue name = %q, want messages", cfg.Queue.Name)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Fatalf("max retries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Breaker.FailureThreshold != 3 || cfg.Breaker.Timeout != 30*time.Second {
		t.Fatalf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUEUE_NAME", "orders")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("BREAKER_TIMEOUT_SECONDS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Queue.Name != "orders" {
		t.Fatalf("queue name = %q, want orders", cfg.Queue.Name)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Fatalf("max retries = %d, want 5", cfg.Retry.MaxRetries)
	}
	if cfg.Breaker.Timeout != 7*time.Second {
		t.Fatalf("breaker timeout = %v, want 7s", cfg.Breaker.Timeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_RETRIES", "not-a-number")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "MAX_RETRIES") {
		t.Fatalf("expected MAX_RETRIES validation error, got %v", err)
	}
}

func TestLoadRejectsNegativeRetries(t *testing.T) {
	t.Setenv("MAX_RETRIES", "-1")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "MAX_RETRIES") {
		t.Fatalf("expected MAX_RETRIES validation error, got %v", err)
	}
}
