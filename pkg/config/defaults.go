package config

// DefaultMaxTurns is used when a session start request omits max_turns.
const DefaultMaxTurns = 20

// Defaults contains system-wide default configuration applied when a
// request doesn't specify its own value.
type Defaults struct {
	// MaxTurns is the turn budget for a session that doesn't set one explicitly.
	MaxTurns int `yaml:"max_turns,omitempty" validate:"omitempty,min=1"`

	// MessageMasking scrubs sensitive data out of user and assistant message
	// content before it is persisted or logged.
	MessageMasking *MaskingConfig `yaml:"message_masking,omitempty"`
}

// DefaultDefaults returns the built-in system defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		MaxTurns: DefaultMaxTurns,
		MessageMasking: &MaskingConfig{
			Enabled:       true,
			PatternGroups: []string{"secrets"},
		},
	}
}
