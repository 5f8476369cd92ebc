package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ctxline/pkg/logger"
)

// Config is the root configuration structure.
type Config struct {
	Version    string           `mapstructure:"version" yaml:"version"`
	Learning   LearningConfig   `mapstructure:"learning" yaml:"learning"`
	Window     WindowConfig     `mapstructure:"window" yaml:"window"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Log        logger.LogConfig `mapstructure:"log" yaml:"log"`
}

// LearningConfig controls the adaptive context window learning engine.
type LearningConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ConfidenceThreshold is the minimum confidence score a learned
	// window needs before the resolver will use it.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`

	// AutoCompactThreshold is the fractional token drop that marks a
	// compaction candidate.
	AutoCompactThreshold float64 `mapstructure:"auto_compact_threshold" yaml:"auto_compact_threshold"`

	// CeilingTolerance is the fractional band below the observed maximum
	// within which an observation still counts as a ceiling approach.
	CeilingTolerance float64 `mapstructure:"ceiling_tolerance" yaml:"ceiling_tolerance"`
}

// WindowConfig controls context window resolution and display.
type WindowConfig struct {
	// Size is the global fallback window when nothing else matches.
	Size int `mapstructure:"size" yaml:"size"`

	// BufferSize is the token margin added beyond a learned ceiling when
	// estimating the total window.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`

	// PercentageMode selects the usage denominator: "full" or "working".
	PercentageMode string `mapstructure:"percentage_mode" yaml:"percentage_mode"`

	// ModelWindows maps exact model display names to fixed window sizes.
	// An entry here always wins over learned values.
	ModelWindows map[string]int `mapstructure:"model_windows" yaml:"model_windows,omitempty"`
}

// TranscriptConfig controls transcript observation collection.
type TranscriptConfig struct {
	// TailLines bounds how many trailing transcript lines are scanned
	// per invocation.
	TailLines int `mapstructure:"tail_lines" yaml:"tail_lines"`
}

// StorageConfig holds the learned-state store location.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// mu serializes Load and Reset, which both mutate viper's global state.
var mu sync.Mutex

// Load loads configuration with priority ENV > config file > defaults,
// then clamps invalid values into range. A missing config file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("CTXLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, err
			}
			if !os.IsNotExist(err) {
				var pathErr *os.PathError
				if !errors.As(err, &pathErr) {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Normalize()
	return &cfg, nil
}

// Normalize clamps out-of-range values to the nearest valid value.
// Invalid configuration never aborts an invocation.
func (c *Config) Normalize() {
	c.Learning.ConfidenceThreshold = clampFraction(c.Learning.ConfidenceThreshold, DefaultConfidenceThreshold)
	c.Learning.AutoCompactThreshold = clampFraction(c.Learning.AutoCompactThreshold, DefaultAutoCompactThreshold)
	c.Learning.CeilingTolerance = clampFraction(c.Learning.CeilingTolerance, DefaultCeilingTolerance)

	if c.Window.Size < 0 {
		c.Window.Size = 0
	}
	if c.Window.BufferSize < 0 {
		c.Window.BufferSize = 0
	}
	if c.Window.PercentageMode != PercentageModeFull && c.Window.PercentageMode != PercentageModeWorking {
		c.Window.PercentageMode = PercentageModeFull
	}
	for name, size := range c.Window.ModelWindows {
		if size < 0 {
			c.Window.ModelWindows[name] = 0
		}
	}
	if c.Transcript.TailLines <= 0 {
		c.Transcript.TailLines = DefaultTailLines
	}
}

// clampFraction forces v into [0,1]. NaN-like zero defaults fall back to
// def so an unset value behaves like the documented default.
func clampFraction(v, def float64) float64 {
	if v != v {
		return def
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SaveTo writes a configuration to the given path as YAML.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset clears loaded configuration state (used by tests).
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	viper.Reset()
}
