package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("err = %v, want unknown mode", err)
	}
}

func TestValidateArchiveRequiresBucket(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("err = %v, want bucket complaint", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAPERTRADER_POSTGRES_HOST", "db.internal")
	t.Setenv("PAPERTRADER_AGENT_INTERVAL", "90s")
	t.Setenv("PAPERTRADER_AGENT_NORMAL_SYMBOLS", "AAPL, MSFT ,NVDA")
	t.Setenv("PAPERTRADER_ENSEMBLE_DAMPENING", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("host = %q", cfg.Postgres.Host)
	}
	if cfg.Agent.Interval.Duration != 90*time.Second {
		t.Errorf("interval = %v", cfg.Agent.Interval.Duration)
	}
	if len(cfg.Agent.NormalSymbols) != 3 || cfg.Agent.NormalSymbols[1] != "MSFT" {
		t.Errorf("normal symbols = %v", cfg.Agent.NormalSymbols)
	}
	if cfg.Ensemble.Dampening {
		t.Error("dampening override ignored")
	}
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "12345:token"

	red := RedactedConfig(&cfg)
	if red.Postgres.Password != "***" || red.Notify.TelegramToken != "***" {
		t.Errorf("secrets not masked: %+v", red.Notify)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Error("original mutated")
	}
}
