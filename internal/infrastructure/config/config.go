// Package config loads engine configuration from defaults, an optional YAML
// file, and AUTOPILOT_ environment variables, in that order of precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/autopilot-home/pattern-engine/internal/domain/errors"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`
	Timezone    string `koanf:"timezone" validate:"required"`

	Database   DatabaseConfig   `koanf:"database"`
	Source     SourceConfig     `koanf:"source"`
	Analysis   AnalysisConfig   `koanf:"analysis"`
	Automation AutomationConfig `koanf:"automation"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	QueryTimeout    time.Duration `koanf:"query_timeout"`
}

// SourceConfig selects where events come from. Mode "database" reads the
// Home Assistant recorder tables, mode "jsonl" reads exported capture files.
type SourceConfig struct {
	Mode      string `koanf:"mode" validate:"oneof=database jsonl"`
	ExportDir string `koanf:"export_dir"`
}

type AnalysisConfig struct {
	WindowDays         int           `koanf:"window_days" validate:"gte=1"`
	MinConfidence      float64       `koanf:"min_confidence" validate:"gte=0,lte=1"`
	MinOccurrences     int           `koanf:"min_occurrences" validate:"gte=1"`
	MinEventsPerEntity int           `koanf:"min_events_per_entity" validate:"gte=1"`
	MaxSequenceGap     time.Duration `koanf:"max_sequence_gap" validate:"gt=0"`
	ConcurrentWindow   time.Duration `koanf:"concurrent_window" validate:"gt=0"`
	FlapThreshold      int           `koanf:"flap_threshold" validate:"gte=2"`
	FlapWindow         time.Duration `koanf:"flap_window" validate:"gt=0"`
	Workers            int           `koanf:"workers" validate:"gte=0"`
	Timeout            time.Duration `koanf:"timeout"`
	ExcludeEntities    []string      `koanf:"exclude_entities"`
}

type AutomationConfig struct {
	OutputPath  string   `koanf:"output_path"`
	DenyDomains []string `koanf:"deny_domains"`
	TopPerKind  int      `koanf:"top_per_kind" validate:"gte=1"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	MetricsAddr  string `koanf:"metrics_addr"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Timezone:    "UTC",
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    2 * time.Minute,
		},
		Source: SourceConfig{
			Mode:      "jsonl",
			ExportDir: "data",
		},
		Analysis: AnalysisConfig{
			WindowDays:         30,
			MinConfidence:      0.90,
			MinOccurrences:     5,
			MinEventsPerEntity: 5,
			MaxSequenceGap:     5 * time.Minute,
			ConcurrentWindow:   60 * time.Second,
			FlapThreshold:      5,
			FlapWindow:         60 * time.Second,
			Timeout:            10 * time.Minute,
		},
		Automation: AutomationConfig{
			OutputPath: "generated_automations.yaml",
			TopPerKind: 10,
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: ":9092",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path when
// one exists, and AUTOPILOT_ environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	// Double underscore separates nesting levels so keys like
	// analysis.window_days stay addressable from the environment.
	if err := k.Load(env.Provider("AUTOPILOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AUTOPILOT_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on any out-of-range value so a bad deployment never
// produces a silently wrong analysis.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if stderrors.As(err, &errs) && len(errs) > 0 {
			first := errs[0]
			return errors.NewConfigError(first.Namespace(),
				fmt.Sprintf("failed %q validation", first.Tag()))
		}
		return errors.NewConfigError("config", err.Error())
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.NewConfigError("timezone", fmt.Sprintf("unknown timezone %q", c.Timezone))
	}
	if c.Source.Mode == "jsonl" && c.Source.ExportDir == "" {
		return errors.NewConfigError("source.export_dir", "required when source.mode is jsonl")
	}
	if c.Source.Mode == "database" && c.Database.URL == "" {
		return errors.NewConfigError("database.url", "required when source.mode is database")
	}
	return nil
}

// Location resolves the configured timezone. Validate has already checked
// it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
