package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// yamlConfig is the on-disk shape of coachcore.yaml.
type yamlConfig struct {
	Queue            *QueueConfig     `yaml:"queue"`
	Retention        *RetentionConfig `yaml:"retention"`
	Defaults         *Defaults        `yaml:"defaults"`
	AllowedWSOrigins []string         `yaml:"allowed_ws_origins"`
}

// Initialize loads, merges, and validates configuration from
// <configDir>/coachcore.yaml.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.InfoContext(ctx, "configuration initialized",
		"worker_count", cfg.Queue.WorkerCount,
		"session_retention_days", cfg.Retention.SessionRetentionDays)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadYAML()
	if err != nil {
		return nil, err
	}

	queueCfg := DefaultQueueConfig()
	if yamlCfg.Queue != nil {
		if err := mergo.Merge(queueCfg, yamlCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	retentionCfg := DefaultRetentionConfig()
	if yamlCfg.Retention != nil {
		if err := mergo.Merge(retentionCfg, yamlCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	defaults := DefaultDefaults()
	if yamlCfg.Defaults != nil {
		if err := mergo.Merge(defaults, yamlCfg.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}

	return &Config{
		configDir:        configDir,
		Queue:            queueCfg,
		Retention:        retentionCfg,
		Defaults:         defaults,
		AllowedWSOrigins: yamlCfg.AllowedWSOrigins,
	}, nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML() (*yamlConfig, error) {
	path := filepath.Join(l.configDir, "coachcore.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg yamlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}
