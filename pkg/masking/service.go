// Package masking redacts secrets and other sensitive substrings from
// strings that cross a trust boundary — job error messages, log lines — so a
// value a user or a provider happened to echo back never ends up persisted or
// delivered verbatim.
package masking

import (
	"log/slog"

	"github.com/tarsy-coach/coachcore/pkg/config"
)

// Service applies pattern-based redaction. Created once at application
// startup from the resolved Defaults.MessageMasking config; thread-safe and
// stateless aside from its compiled patterns.
type Service struct {
	enabled  bool
	patterns []*CompiledPattern
}

// NewService compiles the patterns named by cfg and returns a ready Service.
// A nil or disabled cfg yields a Service whose Redact is a no-op. Invalid
// regexes are logged and skipped rather than failing startup.
func NewService(cfg *config.MaskingConfig) *Service {
	if cfg == nil || !cfg.Enabled {
		return &Service{}
	}

	ps := newPatternSet()
	ps.compileBuiltinPatterns()
	ps.compileCustomPatterns(cfg.CustomPatterns)

	s := &Service{
		enabled:  true,
		patterns: ps.resolvePatterns(cfg),
	}

	slog.Info("masking service initialized", "compiled_patterns", len(s.patterns))
	return s
}

// Redact replaces every configured pattern match in str with its replacement.
// Returns str unchanged when masking is disabled or str is empty.
func (s *Service) Redact(str string) string {
	if !s.enabled || str == "" {
		return str
	}
	masked := str
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
