// Package config loads the annotator settings from a YAML file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvWordpoolFile  = "WORDPOOL_FILE"
	EnvAnnotator     = "ANNOTATOR"
	EnvLogLevel      = "LOG_LEVEL"
	EnvSpanGapMs     = "SPAN_GAP_MS"
	EnvAtomicRewrite = "ATOMIC_REWRITE"
)

// Config is the complete runtime configuration.
type Config struct {
	// WordpoolFile is the vocabulary, one word per line.
	WordpoolFile string `yaml:"wordpool_file"`

	// Annotator pre-fills the annotator name so new files do not prompt.
	Annotator string `yaml:"annotator"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// SpanGapMs is the idle time that ends an activity span.
	SpanGapMs int64 `yaml:"span_gap_ms"`

	// AtomicRewrite renames rewritten files over the original in one step.
	// When false the original is deleted first and the header prepended
	// after the rename.
	AtomicRewrite bool `yaml:"atomic_rewrite"`

	Suggestions SuggestionsConfig `yaml:"suggestions"`
}

// SuggestionsConfig controls how recogniser output becomes suggestions.
type SuggestionsConfig struct {
	// PhoneticThreshold is the minimum Jaro-Winkler score for a word that
	// shares a Double Metaphone code.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum score for any other word.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// SnapToWordpool replaces recognised words with their closest wordpool
	// word when one scores above the thresholds.
	SnapToWordpool bool `yaml:"snap_to_wordpool"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		SpanGapMs:     10_000,
		AtomicRewrite: true,
		Suggestions: SuggestionsConfig{
			PhoneticThreshold: 0.70,
			FuzzyThreshold:    0.85,
			SnapToWordpool:    true,
		},
	}
}

// Load reads the YAML file at path on top of Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of Default. Unknown keys are
// rejected. The result is not validated, since environment and flags may
// still fill in missing values.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the environment variables found by lookup.
// Malformed values are collected into one joined error; well-formed ones are
// still applied.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	if v, ok := lookup(EnvWordpoolFile); ok && v != "" {
		cfg.WordpoolFile = v
	}
	if v, ok := lookup(EnvAnnotator); ok && v != "" {
		cfg.Annotator = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvSpanGapMs); ok && v != "" {
		gap, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", EnvSpanGapMs, v, err))
		} else {
			cfg.SpanGapMs = gap
		}
	}
	if v, ok := lookup(EnvAtomicRewrite); ok && v != "" {
		atomic, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", EnvAtomicRewrite, v, err))
		} else {
			cfg.AtomicRewrite = atomic
		}
	}
	return errors.Join(errs...)
}

// Validate checks that cfg is usable. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.WordpoolFile == "" {
		errs = append(errs, errors.New("wordpool_file is required"))
	}
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.SpanGapMs < 0 {
		errs = append(errs, fmt.Errorf("span_gap_ms must be >= 0, got %d", cfg.SpanGapMs))
	}
	if t := cfg.Suggestions.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("suggestions.phonetic_threshold must be in [0, 1], got %v", t))
	}
	if t := cfg.Suggestions.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("suggestions.fuzzy_threshold must be in [0, 1], got %v", t))
	}

	return errors.Join(errs...)
}

// Level returns the logrus level named by LogLevel, defaulting to info.
func (c *Config) Level() logrus.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (logrus.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel, true
	case "warn", "warning":
		return logrus.WarnLevel, true
	case "error":
		return logrus.ErrorLevel, true
	case "info", "":
		return logrus.InfoLevel, true
	default:
		return logrus.InfoLevel, false
	}
}
