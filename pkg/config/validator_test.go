package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Queue:     DefaultQueueConfig(),
		Retention: DefaultRetentionConfig(),
		Defaults:  DefaultDefaults(),
	}
}

func TestValidateAll_ValidConfigPasses(t *testing.T) {
	assert.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateRetention(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RetentionConfig)
		wantErr string
	}{
		{"zero retention days", func(r *RetentionConfig) { r.SessionRetentionDays = 0 }, "session_retention_days"},
		{"zero event ttl", func(r *RetentionConfig) { r.EventTTL = 0 }, "event_ttl"},
		{"zero cleanup interval", func(r *RetentionConfig) { r.CleanupInterval = 0 }, "cleanup_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg.Retention)
			err := NewValidator(cfg).validateRetention()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	t.Run("zero max turns rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Defaults.MaxTurns = 0
		assert.ErrorContains(t, NewValidator(cfg).validateDefaults(), "max_turns")
	})

	t.Run("unknown pattern group rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Defaults.MessageMasking = &MaskingConfig{Enabled: true, PatternGroups: []string{"nonexistent"}}
		assert.ErrorContains(t, NewValidator(cfg).validateDefaults(), "not found")
	})

	t.Run("unknown pattern name rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Defaults.MessageMasking = &MaskingConfig{Enabled: true, Patterns: []string{"nonexistent"}}
		assert.ErrorContains(t, NewValidator(cfg).validateDefaults(), "not found")
	})

	t.Run("custom pattern missing replacement rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Defaults.MessageMasking = &MaskingConfig{
			Enabled:        true,
			CustomPatterns: []MaskingPattern{{Pattern: "foo"}},
		}
		assert.ErrorContains(t, NewValidator(cfg).validateDefaults(), "replacement")
	})

	t.Run("valid masking config passes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Defaults.MessageMasking = &MaskingConfig{Enabled: true, PatternGroups: []string{"secrets"}}
		assert.NoError(t, NewValidator(cfg).validateDefaults())
	})
}

func TestValidateWSOrigins(t *testing.T) {
	t.Run("wildcard allowed", func(t *testing.T) {
		cfg := validConfig()
		cfg.AllowedWSOrigins = []string{"*"}
		assert.NoError(t, NewValidator(cfg).validateWSOrigins())
	})

	t.Run("valid origin passes", func(t *testing.T) {
		cfg := validConfig()
		cfg.AllowedWSOrigins = []string{"https://app.example.com"}
		assert.NoError(t, NewValidator(cfg).validateWSOrigins())
	})

	t.Run("bare host without scheme rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.AllowedWSOrigins = []string{"app.example.com"}
		assert.Error(t, NewValidator(cfg).validateWSOrigins())
	})
}
