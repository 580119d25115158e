package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Expected default addr :8080, got %s", cfg.Addr)
	}
	if cfg.DBDriver != "sqlite3" {
		t.Errorf("Expected default driver sqlite3, got %s", cfg.DBDriver)
	}
	if cfg.TokenDuration != 24*time.Hour {
		t.Errorf("Expected default token duration 24h, got %v", cfg.TokenDuration)
	}
	if cfg.ReapEmptyChats {
		t.Error("Expected reaping to be off by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("TOKEN_DURATION", "15m")
	t.Setenv("REAP_EMPTY_CHATS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.DBDriver != "postgres" {
		t.Errorf("Expected environment overrides applied, got %+v", cfg)
	}
	if cfg.TokenDuration != 15*time.Minute {
		t.Errorf("Expected 15m token duration, got %v", cfg.TokenDuration)
	}
	if !cfg.ReapEmptyChats {
		t.Error("Expected reaping enabled")
	}
}
