package masking

import (
	"log/slog"
	"regexp"
	"strconv"

	"github.com/tarsy-coach/coachcore/pkg/config"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// patternSet compiles the full set of available patterns (built-in and
// custom) and resolves a MaskingConfig against them. It exists only for the
// duration of Service construction.
type patternSet struct {
	patterns      map[string]*CompiledPattern
	patternGroups map[string][]string
}

func newPatternSet() *patternSet {
	return &patternSet{
		patterns:      make(map[string]*CompiledPattern),
		patternGroups: config.GetBuiltinConfig().PatternGroups,
	}
}

// compileBuiltinPatterns compiles all built-in regex patterns from config.
// Invalid patterns are logged and skipped.
func (p *patternSet) compileBuiltinPatterns() {
	for name, pattern := range config.GetBuiltinConfig().MaskingPatterns {
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		p.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
	}
}

// compileCustomPatterns compiles the custom patterns configured for this service.
// Custom patterns are keyed as "custom:{index}" to avoid collisions with built-ins.
func (p *patternSet) compileCustomPatterns(custom []config.MaskingPattern) {
	for i, pattern := range custom {
		name := customPatternName(i)
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("failed to compile custom masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		p.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
	}
}

func customPatternName(i int) string {
	return "custom:" + strconv.Itoa(i)
}

// resolvePatterns expands a MaskingConfig into a deduplicated list of compiled patterns.
func (p *patternSet) resolvePatterns(cfg *config.MaskingConfig) []*CompiledPattern {
	seen := make(map[string]bool)
	var resolved []*CompiledPattern

	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if cp, ok := p.patterns[name]; ok {
			resolved = append(resolved, cp)
		}
	}

	for _, groupName := range cfg.PatternGroups {
		for _, name := range p.patternGroups[groupName] {
			add(name)
		}
	}

	for _, name := range cfg.Patterns {
		add(name)
	}

	for i := range cfg.CustomPatterns {
		add(customPatternName(i))
	}

	return resolved
}
