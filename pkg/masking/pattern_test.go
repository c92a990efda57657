package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-coach/coachcore/pkg/config"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	ps := newPatternSet()
	ps.compileBuiltinPatterns()

	builtin := config.GetBuiltinConfig()
	assert.Equal(t, len(builtin.MaskingPatterns), len(ps.patterns),
		"all built-in patterns should compile")

	for name, cp := range ps.patterns {
		assert.NotNil(t, cp.Regex, "pattern %s should have compiled regex", name)
		assert.NotEmpty(t, cp.Replacement, "pattern %s should have replacement", name)
	}
}

func TestCompileCustomPatterns(t *testing.T) {
	ps := newPatternSet()
	ps.compileBuiltinPatterns()
	ps.compileCustomPatterns([]config.MaskingPattern{
		{Pattern: `CUSTOM_SECRET_[A-Za-z0-9]+`, Replacement: "[MASKED_CUSTOM]", Description: "custom secret pattern"},
	})

	builtinCount := len(config.GetBuiltinConfig().MaskingPatterns)
	assert.Equal(t, builtinCount+1, len(ps.patterns))

	cp, exists := ps.patterns["custom:0"]
	require.True(t, exists, "custom pattern should be registered")
	assert.Equal(t, "[MASKED_CUSTOM]", cp.Replacement)
}

func TestCompileCustomPatterns_InvalidRegex(t *testing.T) {
	ps := newPatternSet()
	ps.compileCustomPatterns([]config.MaskingPattern{
		{Pattern: `[invalid`, Replacement: "[MASKED]"},
		{Pattern: `valid_pattern`, Replacement: "[MASKED_VALID]"},
	})

	_, invalidExists := ps.patterns["custom:0"]
	assert.False(t, invalidExists, "invalid regex pattern should be skipped")

	_, validExists := ps.patterns["custom:1"]
	assert.True(t, validExists, "valid pattern should be compiled")
}

func TestResolvePatterns_GroupExpansion(t *testing.T) {
	ps := newPatternSet()
	ps.compileBuiltinPatterns()

	tests := []struct {
		name     string
		groups   []string
		minCount int
	}{
		{name: "basic group", groups: []string{"basic"}, minCount: 2},
		{name: "secrets group", groups: []string{"secrets"}, minCount: 5},
		{name: "security group", groups: []string{"security"}, minCount: 7},
		{name: "cloud group", groups: []string{"cloud"}, minCount: 4},
		{name: "all group", groups: []string{"all"}, minCount: 14},
		{name: "multiple groups with dedup", groups: []string{"basic", "secrets"}, minCount: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.MaskingConfig{Enabled: true, PatternGroups: tt.groups}
			resolved := ps.resolvePatterns(cfg)
			assert.GreaterOrEqual(t, len(resolved), tt.minCount,
				"should have at least %d patterns", tt.minCount)
		})
	}
}

func TestResolvePatterns_IndividualPatterns(t *testing.T) {
	ps := newPatternSet()
	ps.compileBuiltinPatterns()

	cfg := &config.MaskingConfig{Enabled: true, Patterns: []string{"api_key", "email"}}
	resolved := ps.resolvePatterns(cfg)

	require.Len(t, resolved, 2)
	names := []string{resolved[0].Name, resolved[1].Name}
	assert.Contains(t, names, "api_key")
	assert.Contains(t, names, "email")
}

func TestResolvePatterns_UnknownGroup(t *testing.T) {
	ps := newPatternSet()
	ps.compileBuiltinPatterns()

	cfg := &config.MaskingConfig{Enabled: true, PatternGroups: []string{"nonexistent_group"}}
	assert.Empty(t, ps.resolvePatterns(cfg))
}

func TestResolvePatterns_WithCustomPatterns(t *testing.T) {
	ps := newPatternSet()
	ps.compileBuiltinPatterns()
	ps.compileCustomPatterns([]config.MaskingPattern{
		{Pattern: `MY_SECRET_[A-Z]+`, Replacement: "[MASKED_MY_SECRET]"},
	})

	cfg := &config.MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"basic"},
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `MY_SECRET_[A-Z]+`, Replacement: "[MASKED_MY_SECRET]"},
		},
	}
	resolved := ps.resolvePatterns(cfg)

	assert.GreaterOrEqual(t, len(resolved), 3) // api_key + password + custom
}

func TestResolvePatterns_Deduplication(t *testing.T) {
	ps := newPatternSet()
	ps.compileBuiltinPatterns()

	cfg := &config.MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"basic"}, // contains api_key, password
		Patterns:      []string{"api_key"},
	}
	resolved := ps.resolvePatterns(cfg)

	count := 0
	for _, p := range resolved {
		if p.Name == "api_key" {
			count++
		}
	}
	assert.Equal(t, 1, count, "api_key should appear only once (deduplicated)")
}
