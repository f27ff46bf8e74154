package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		StoreBackend:         StorePostgres,
		ReservationTTL:       24 * time.Hour,
		SweepInterval:        time.Hour,
		SweepConcurrency:     4,
		SweepScheduler:       SchedulerTicker,
		TxMaxAttempts:        4,
		TxBaseBackoff:        25 * time.Millisecond,
		TxTimeout:            5 * time.Second,
		LogLevel:             "info",
		Environment:          EnvProduction,
		SessionAuthKey:       strings.Repeat("a", 32),
		SessionEncryptionKey: strings.Repeat("b", 32),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero ttl", func(c *Config) { c.ReservationTTL = 0 }, "RESERVATION_TTL"},
		{"negative sweep interval", func(c *Config) { c.SweepInterval = -time.Second }, "SWEEP_INTERVAL"},
		{"zero sweep concurrency", func(c *Config) { c.SweepConcurrency = 0 }, "SWEEP_CONCURRENCY"},
		{"zero attempts", func(c *Config) { c.TxMaxAttempts = 0 }, "TX_MAX_ATTEMPTS"},
		{"zero backoff", func(c *Config) { c.TxBaseBackoff = 0 }, "TX_BASE_BACKOFF"},
		{"zero timeout", func(c *Config) { c.TxTimeout = 0 }, "TX_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateForProduction(t *testing.T) {
	t.Run("non-production is never rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Environment = EnvDevelopment
		cfg.StoreBackend = StoreMemory
		cfg.LogLevel = "debug"
		if err := ValidateForProduction(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("valid production config", func(t *testing.T) {
		if err := ValidateForProduction(validConfig()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("memory backend rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.StoreBackend = StoreMemory
		err := ValidateForProduction(cfg)
		if err == nil || !strings.Contains(err.Error(), "STORE_BACKEND") {
			t.Fatalf("expected STORE_BACKEND error, got %v", err)
		}
	})

	t.Run("short session keys rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionAuthKey = "short"
		cfg.SessionEncryptionKey = "short"
		err := ValidateForProduction(cfg)
		if err == nil {
			t.Fatal("expected error for short keys")
		}
		if !strings.Contains(err.Error(), "SESSION_AUTH_KEY") || !strings.Contains(err.Error(), "SESSION_ENCRYPTION_KEY") {
			t.Fatalf("expected both key errors, got %v", err)
		}
	})

	t.Run("debug logging rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.LogLevel = "debug"
		if err := ValidateForProduction(cfg); err == nil {
			t.Fatal("expected error for debug log level")
		}
	})

	t.Run("wildcard CORS rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.CORSAllowedOrigins = "*"
		err := ValidateForProduction(cfg)
		if err == nil || !strings.Contains(err.Error(), "CORS_ALLOWED_ORIGINS") {
			t.Fatalf("expected CORS error, got %v", err)
		}
	})
}
