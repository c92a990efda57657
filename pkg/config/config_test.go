package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDir(t *testing.T) {
	cfg := &Config{configDir: "/etc/coachcore"}
	assert.Equal(t, "/etc/coachcore", cfg.ConfigDir())
}
