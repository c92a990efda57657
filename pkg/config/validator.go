package config

import (
	"fmt"
	"net/url"
)

// Validator validates a loaded Config's structural invariants.
type Validator struct {
	cfg *Config
}

// NewValidator creates a Validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation check in order, returning the first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validateQueue(); err != nil {
		return err
	}
	if err := v.validateRetention(); err != nil {
		return err
	}
	if err := v.validateDefaults(); err != nil {
		return err
	}
	if err := v.validateWSOrigins(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return NewValidationError("queue", "", "", fmt.Errorf("%w: queue config is required", ErrMissingRequiredField))
	}
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "", "worker_count", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.MaxConcurrentSessions < 1 {
		return NewValidationError("queue", "", "max_concurrent_sessions", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.PollInterval <= 0 {
		return NewValidationError("queue", "", "poll_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.PollIntervalJitter < 0 {
		return NewValidationError("queue", "", "poll_interval_jitter", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if q.ProviderTimeout <= 0 {
		return NewValidationError("queue", "", "provider_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.WatchdogInterval <= 0 {
		return NewValidationError("queue", "", "watchdog_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.WatchdogThreshold <= q.ProviderTimeout {
		return NewValidationError("queue", "", "watchdog_threshold", fmt.Errorf("%w: must be greater than provider_timeout", ErrInvalidValue))
	}
	if q.GracefulShutdownTimeout <= 0 {
		return NewValidationError("queue", "", "graceful_shutdown_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return NewValidationError("retention", "", "", fmt.Errorf("%w: retention config is required", ErrMissingRequiredField))
	}
	if r.SessionRetentionDays < 1 {
		return NewValidationError("retention", "", "session_retention_days", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if r.EventTTL <= 0 {
		return NewValidationError("retention", "", "event_ttl", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "", "cleanup_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil {
		return NewValidationError("defaults", "", "", fmt.Errorf("%w: defaults config is required", ErrMissingRequiredField))
	}
	if d.MaxTurns < 1 {
		return NewValidationError("defaults", "", "max_turns", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if d.MessageMasking != nil {
		if err := validateMaskingConfig(d.MessageMasking); err != nil {
			return NewValidationError("defaults", "", "message_masking", err)
		}
	}
	return nil
}

func validateMaskingConfig(m *MaskingConfig) error {
	builtin := GetBuiltinConfig()
	for _, group := range m.PatternGroups {
		if _, ok := builtin.PatternGroups[group]; !ok {
			return fmt.Errorf("%w: pattern group '%s' not found", ErrInvalidReference, group)
		}
	}
	for _, name := range m.Patterns {
		if _, ok := builtin.MaskingPatterns[name]; !ok {
			return fmt.Errorf("%w: pattern '%s' not found", ErrInvalidReference, name)
		}
	}
	for i, custom := range m.CustomPatterns {
		if custom.Pattern == "" {
			return fmt.Errorf("%w: custom pattern %d: pattern is required", ErrMissingRequiredField, i)
		}
		if custom.Replacement == "" {
			return fmt.Errorf("%w: custom pattern %d: replacement is required", ErrMissingRequiredField, i)
		}
	}
	return nil
}

func (v *Validator) validateWSOrigins() error {
	for _, origin := range v.cfg.AllowedWSOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return NewValidationError("allowed_ws_origins", origin, "", fmt.Errorf("%w: not a valid origin URL", ErrInvalidValue))
		}
	}
	return nil
}
