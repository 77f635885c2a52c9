package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradesim/internal/domain"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() error = %v", err)
	}
	if got := cfg.Venues.Venue(domain.VenueOKX).Symbol; got != "BTC-USDT" {
		t.Errorf("OKX default symbol = %q, want BTC-USDT", got)
	}
	if got := cfg.Venues.Venue(domain.VenueBybit).Symbol; got != "BTCUSDT" {
		t.Errorf("Bybit default symbol = %q, want BTCUSDT", got)
	}
	if got := cfg.Venues.Venue(domain.VenueDeribit).Symbol; got != "BTC-PERPETUAL" {
		t.Errorf("Deribit default symbol = %q, want BTC-PERPETUAL", got)
	}
	if len(cfg.Venues.EnabledVenues()) != 3 {
		t.Errorf("enabled venues = %v, want all three", cfg.Venues.EnabledVenues())
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "monitor"
log_level = "debug"

[feed]
reconnect_backoff = "2s"

[venues.okx]
symbol = "ETH-USDT"

[venues.bybit]
enabled = false

[redis]
enabled = true
addr = "redis.internal:6379"

[server]
port = 9090
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != "monitor" {
		t.Errorf("Mode = %q, want monitor", cfg.Mode)
	}
	if cfg.Feed.ReconnectBackoff.Duration != 2*time.Second {
		t.Errorf("ReconnectBackoff = %v, want 2s", cfg.Feed.ReconnectBackoff.Duration)
	}
	// Untouched fields keep defaults.
	if cfg.Feed.HandshakeTimeout.Duration != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want default 10s", cfg.Feed.HandshakeTimeout.Duration)
	}
	if cfg.Venues.OKX.Symbol != "ETH-USDT" {
		t.Errorf("OKX symbol = %q, want ETH-USDT", cfg.Venues.OKX.Symbol)
	}
	if cfg.Venues.Bybit.Enabled {
		t.Error("Bybit still enabled after file override")
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Redis = %+v, want enabled at redis.internal:6379", cfg.Redis)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`log_level = "debug"`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TRADESIM_LOG_LEVEL", "error")
	t.Setenv("TRADESIM_SERVER_PORT", "7070")
	t.Setenv("TRADESIM_VENUES_DERIBIT_ENABLED", "false")
	t.Setenv("TRADESIM_FEED_RECONNECT_BACKOFF", "1s")
	t.Setenv("TRADESIM_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want env override error", cfg.LogLevel)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Venues.Deribit.Enabled {
		t.Error("Deribit still enabled after env override")
	}
	if cfg.Feed.ReconnectBackoff.Duration != time.Second {
		t.Errorf("ReconnectBackoff = %v, want 1s", cfg.Feed.ReconnectBackoff.Duration)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Mode != "serve" || cfg.Server.Port != 8080 {
		t.Errorf("defaults not applied: mode=%q port=%d", cfg.Mode, cfg.Server.Port)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.LogLevel = "verbose"
	cfg.Feed.ReconnectBackoff.Duration = 0
	cfg.Venues.OKX.Symbol = ""
	cfg.Notify.TelegramToken = "token-without-chat"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want failures")
	}
	msg := err.Error()
	for _, want := range []string{
		"unknown mode",
		"unknown log_level",
		"reconnect_backoff",
		"okx is enabled but has no symbol",
		"telegram_token and telegram_chat_id",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Validate() message missing %q:\n%s", want, msg)
		}
	}
}

func TestValidateRejectsNoVenues(t *testing.T) {
	cfg := Defaults()
	cfg.Venues.OKX.Enabled = false
	cfg.Venues.Bybit.Enabled = false
	cfg.Venues.Deribit.Enabled = false

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one venue") {
		t.Errorf("Validate() error = %v, want venue requirement", err)
	}
}
