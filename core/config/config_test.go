package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc", RunMode: "longpoll"},
		Database: DatabaseConfig{Host: "localhost", Port: "5432", User: "bot", Name: "confessions"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Moderation.CooldownSeconds != DefaultCooldownSeconds {
		t.Fatalf("cooldown = %d, expected default %d", cfg.Moderation.CooldownSeconds, DefaultCooldownSeconds)
	}
	if cfg.Database.SSLMode != "disable" {
		t.Fatalf("sslmode = %q, expected disable", cfg.Database.SSLMode)
	}
	if cfg.Database.MaxConnections <= 0 {
		t.Fatalf("max_connections not defaulted: %d", cfg.Database.MaxConnections)
	}
}

func TestNormalizeRunModeAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "Polling"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run_mode = %q, expected %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
}

func TestNormalizeRejectsMisconfiguration(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "token"},
		{"missing db name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"webhook without url", func(c *Config) { c.Telegram.RunMode = "webhook" }, "webhook.url"},
		{"bad run mode", func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" }, "run_mode"},
		{"negative cooldown", func(c *Config) { c.Moderation.CooldownSeconds = -1 }, "cooldown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Normalize(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
