package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestMaskingConfig_UnmarshalYAML(t *testing.T) {
	var m MaskingConfig
	err := yaml.Unmarshal([]byte(`
enabled: true
pattern_groups: [secrets]
patterns: [email]
custom_patterns:
  - pattern: "user_\\d+"
    replacement: "[MASKED_USER]"
    description: internal user ids
`), &m)

	assert.NoError(t, err)
	assert.True(t, m.Enabled)
	assert.Equal(t, []string{"secrets"}, m.PatternGroups)
	assert.Equal(t, []string{"email"}, m.Patterns)
	assert.Len(t, m.CustomPatterns, 1)
	assert.Equal(t, "[MASKED_USER]", m.CustomPatterns[0].Replacement)
}
