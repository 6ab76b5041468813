// Package config loads the lowering and runtime settings from asyncc.yaml.
//
// A config file looks like:
//
//	limits:
//	  max_instructions: 10000
//	  max_suspend_points: 100
//	  max_locals: 1000
//	  forbid_recursion: true
//	  forbidden_calls: ["os.*", "exit"]
//	runtime:
//	  max_steps: 1000000
//	log:
//	  level: info
//	  development: false
//
// Omitted fields keep their defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/moikas-code/script-sub002/asyncify"
	"github.com/moikas-code/script-sub002/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// FileName is the config file searched for by Find.
const FileName = "asyncc.yaml"

// Default limits.
const (
	DefaultMaxInstructions  = 10_000
	DefaultMaxSuspendPoints = 100
	DefaultMaxLocals        = 1_000
	DefaultMaxSteps         = 1_000_000
)

// Config is the top-level asyncc.yaml configuration.
type Config struct {
	Log     Log     `yaml:"log"`
	Limits  Limits  `yaml:"limits"`
	Runtime Runtime `yaml:"runtime"`
}

// Limits bounds the async functions the lowering accepts.
type Limits struct {
	// ForbidRecursion rejects async functions that can reach themselves.
	// A pointer so that an explicit false survives defaulting.
	ForbidRecursion *bool `yaml:"forbid_recursion,omitempty"`

	// ForbiddenCalls are callee patterns: "name", "ns.name", "ns.*" or "*".
	ForbiddenCalls []string `yaml:"forbidden_calls,omitempty"`

	MaxInstructions  int `yaml:"max_instructions,omitempty"`
	MaxSuspendPoints int `yaml:"max_suspend_points,omitempty"`
	MaxLocals        int `yaml:"max_locals,omitempty"`
}

// Runtime configures the executor.
type Runtime struct {
	// MaxSteps bounds the instructions one poll may execute.
	MaxSteps int `yaml:"max_steps,omitempty"`
}

// Log configures the zap logger.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level       string `yaml:"level,omitempty"`
	Development bool   `yaml:"development,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).Detail("reading config").Cause(err).Build()
	}
	return Parse(data, path)
}

// Parse parses config content. The path is used only for error messages.
func Parse(data []byte, path string) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path).Detail("parsing config").Cause(err).Build()
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// Find searches for asyncc.yaml starting from dir and walking up to the
// filesystem root. It returns "" when there is none.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) setDefaults() {
	if c.Limits.MaxInstructions == 0 {
		c.Limits.MaxInstructions = DefaultMaxInstructions
	}
	if c.Limits.MaxSuspendPoints == 0 {
		c.Limits.MaxSuspendPoints = DefaultMaxSuspendPoints
	}
	if c.Limits.MaxLocals == 0 {
		c.Limits.MaxLocals = DefaultMaxLocals
	}
	if c.Limits.ForbidRecursion == nil {
		on := true
		c.Limits.ForbidRecursion = &on
	}
	if c.Runtime.MaxSteps == 0 {
		c.Runtime.MaxSteps = DefaultMaxSteps
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for semantic errors.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(field).Detail(format, args...).Build()
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"limits.max_instructions", c.Limits.MaxInstructions},
		{"limits.max_suspend_points", c.Limits.MaxSuspendPoints},
		{"limits.max_locals", c.Limits.MaxLocals},
		{"runtime.max_steps", c.Runtime.MaxSteps},
	} {
		if f.v < 0 {
			return invalid(f.name, "must not be negative, got %d", f.v)
		}
	}
	for i, p := range c.Limits.ForbiddenCalls {
		if p == "" {
			return invalid(fmt.Sprintf("limits.forbidden_calls[%d]", i), "empty pattern")
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown level %q", c.Log.Level)
	}
	return nil
}

// Asyncify converts the limits into a lowering configuration.
func (c *Config) Asyncify(log *zap.Logger) asyncify.Config {
	cfg := asyncify.Config{
		Logger:           log,
		MaxInstructions:  c.Limits.MaxInstructions,
		MaxSuspendPoints: c.Limits.MaxSuspendPoints,
		MaxLocals:        c.Limits.MaxLocals,
		AllowRecursion:   c.Limits.ForbidRecursion != nil && !*c.Limits.ForbidRecursion,
		Verify:           true,
	}
	if len(c.Limits.ForbiddenCalls) > 0 {
		cfg.Forbidden = asyncify.NewWildcardMatcher(c.Limits.ForbiddenCalls)
	}
	return cfg
}

// Logger builds the zap logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
