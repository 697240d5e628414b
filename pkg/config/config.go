// Package config loads tooncost configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/pricing"
)

// Config holds all tooncost configuration.
type Config struct {
	// SessionID pins the session identifier; empty means auto-generated.
	SessionID  string                  `yaml:"session_id"`
	ReportPath string                  `yaml:"report_path"`
	ArchiveDB  string                  `yaml:"archive_db"`
	Budget     models.BudgetConfig     `yaml:"budget"`
	Pricing    PricingConfig           `yaml:"pricing"`
	Runner     RunnerConfig            `yaml:"runner"`
	Phases     map[string]PhaseProfile `yaml:"phases"`
}

// PricingConfig overlays the built-in pricing table.
type PricingConfig struct {
	FallbackUSD float64                 `yaml:"fallback_usd"`
	Models      map[string]pricing.Rate `yaml:"models"`
}

// RunnerConfig controls the batch generation runner.
type RunnerConfig struct {
	Workers       int           `yaml:"workers"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	RecordRetries bool          `yaml:"record_retries"`
}

// PhaseProfile picks the backend a phase generates with, and how many images
// a full run of the phase is planned to produce.
type PhaseProfile struct {
	Model      string                `yaml:"model"`
	Resolution models.ResolutionTier `yaml:"resolution"`
	Batch      bool                  `yaml:"batch"`
	Count      int                   `yaml:"count"`
}

// Default returns a Config with the PoC pipeline defaults: the five phases,
// pro-model character work at 2K, flash panels at 1K, and a $5 session
// ceiling split across phases.
func Default() *Config {
	return &Config{
		ReportPath: "reports/spend_report.json",
		ArchiveDB:  "tooncost.db",
		Budget: models.BudgetConfig{
			TotalUSD: 5.00,
			Phases: map[string]float64{
				"character_generation":  0.70,
				"artifact_generation":   0.40,
				"background_generation": 0.70,
				"panel_generation":      2.50,
				"iteration":             0.70,
			},
		},
		Runner: RunnerConfig{
			Workers:      3,
			MaxAttempts:  3,
			RetryBackoff: 2 * time.Second,
		},
		Phases: map[string]PhaseProfile{
			"character_generation": {
				Model:      "gemini-3-pro-image-preview",
				Resolution: models.Resolution2K,
				Count:      2,
			},
			"artifact_generation": {
				Model:      "gemini-3-pro-image-preview",
				Resolution: models.Resolution2K,
				Count:      1,
			},
			"background_generation": {
				Model:      "gemini-3-pro-image-preview",
				Resolution: models.Resolution2K,
				Count:      2,
			},
			"panel_generation": {
				Model:      "gemini-2.5-flash-image",
				Resolution: models.Resolution1K,
				Count:      5,
			},
			"iteration": {
				Model:      "gemini-2.5-flash-image",
				Resolution: models.Resolution1K,
				Count:      2,
			},
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads the config at path, or returns defaults when path is
// empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Table builds the session pricing table: built-in rates overlaid with the
// config's entries.
func (c *Config) Table() *pricing.Table {
	rates := pricing.DefaultRates()
	for model, rate := range c.Pricing.Models {
		rates[model] = rate
	}
	return pricing.NewTable(rates, c.Pricing.FallbackUSD)
}
