// Package config defines the top-level configuration for the trade simulator
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"tradesim/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADESIM_* environment
// variables.
type Config struct {
	Feed     FeedConfig   `toml:"feed"`
	Venues   VenuesConfig `toml:"venues"`
	Redis    RedisConfig  `toml:"redis"`
	Server   ServerConfig `toml:"server"`
	Notify   NotifyConfig `toml:"notify"`
	Mode     string       `toml:"mode"`
	LogLevel string       `toml:"log_level"`
}

// FeedConfig holds WebSocket feed tuning shared by all venue adapters.
type FeedConfig struct {
	HandshakeTimeout duration `toml:"handshake_timeout"`
	ReconnectBackoff duration `toml:"reconnect_backoff"`
	ConnectTimeout   duration `toml:"connect_timeout"`
}

// VenueConfig holds per-venue feed parameters. An empty URL keeps the
// venue's production endpoint.
type VenueConfig struct {
	Enabled bool   `toml:"enabled"`
	Symbol  string `toml:"symbol"`
	URL     string `toml:"url"`
}

// VenuesConfig groups the supported venues.
type VenuesConfig struct {
	OKX     VenueConfig `toml:"okx"`
	Bybit   VenueConfig `toml:"bybit"`
	Deribit VenueConfig `toml:"deribit"`
}

// RedisConfig holds Redis connection parameters. The whole layer is
// optional; with Enabled false the simulator runs purely in-process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds alerting channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "500ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"serve":   true,
	"monitor": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns the built-in configuration, matched to each venue's
// production endpoint and flagship instrument.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			HandshakeTimeout: duration{10 * time.Second},
			ReconnectBackoff: duration{5 * time.Second},
			ConnectTimeout:   duration{10 * time.Second},
		},
		Venues: VenuesConfig{
			OKX:     VenueConfig{Enabled: true, Symbol: "BTC-USDT"},
			Bybit:   VenueConfig{Enabled: true, Symbol: "BTCUSDT"},
			Deribit: VenueConfig{Enabled: true, Symbol: "BTC-PERPETUAL"},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Notify: NotifyConfig{
			Events: []string{"venue_disconnected", "venue_reconnected"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// Venue returns the per-venue section for a domain venue.
func (vc VenuesConfig) Venue(v domain.Venue) VenueConfig {
	switch v {
	case domain.VenueOKX:
		return vc.OKX
	case domain.VenueBybit:
		return vc.Bybit
	case domain.VenueDeribit:
		return vc.Deribit
	}
	return VenueConfig{}
}

// EnabledVenues lists the venues switched on in configuration.
func (vc VenuesConfig) EnabledVenues() []domain.Venue {
	var out []domain.Venue
	for _, v := range domain.Venues {
		if vc.Venue(v).Enabled {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks the configuration for internal consistency and collects
// every problem into a single error.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, monitor)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Feed.HandshakeTimeout.Duration <= 0 {
		errs = append(errs, "feed: handshake_timeout must be positive")
	}
	if c.Feed.ReconnectBackoff.Duration <= 0 {
		errs = append(errs, "feed: reconnect_backoff must be positive")
	}
	if c.Feed.ConnectTimeout.Duration <= 0 {
		errs = append(errs, "feed: connect_timeout must be positive")
	}

	if len(c.Venues.EnabledVenues()) == 0 {
		errs = append(errs, "venues: at least one venue must be enabled")
	}
	for _, v := range c.Venues.EnabledVenues() {
		if c.Venues.Venue(v).Symbol == "" {
			errs = append(errs, fmt.Sprintf("venues: %s is enabled but has no symbol", strings.ToLower(string(v))))
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize <= 0 {
			errs = append(errs, "redis: pool_size must be positive")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
		}
	}

	// Telegram fields must be set together, or both empty.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
