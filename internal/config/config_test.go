package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(10_000), cfg.SpanGapMs)
	assert.True(t, cfg.AtomicRewrite)
	assert.True(t, cfg.Suggestions.SnapToWordpool)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
wordpool_file: /data/wordpool.txt
annotator: Ada
log_level: debug
span_gap_ms: 5000
atomic_rewrite: false
suggestions:
  fuzzy_threshold: 0.9
`))
	require.NoError(t, err)
	assert.Equal(t, "/data/wordpool.txt", cfg.WordpoolFile)
	assert.Equal(t, "Ada", cfg.Annotator)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, int64(5000), cfg.SpanGapMs)
	assert.False(t, cfg.AtomicRewrite)
	assert.Equal(t, 0.9, cfg.Suggestions.FuzzyThreshold)
	assert.Equal(t, 0.70, cfg.Suggestions.PhoneticThreshold, "unset keys keep defaults")
	assert.NoError(t, Validate(cfg))
}

func TestLoadFromReaderEmpty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("wordpool: x\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wordpool_file: wp.txt\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wp.txt", cfg.WordpoolFile)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, envMap(map[string]string{
		EnvWordpoolFile:  "/env/wp.txt",
		EnvAnnotator:     "Grace",
		EnvLogLevel:      "warn",
		EnvSpanGapMs:     "2500",
		EnvAtomicRewrite: "false",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/env/wp.txt", cfg.WordpoolFile)
	assert.Equal(t, "Grace", cfg.Annotator)
	assert.Equal(t, logrus.WarnLevel, cfg.Level())
	assert.Equal(t, int64(2500), cfg.SpanGapMs)
	assert.False(t, cfg.AtomicRewrite)
}

func TestApplyEnvJoinsErrors(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, envMap(map[string]string{
		EnvAnnotator:     "Grace",
		EnvSpanGapMs:     "soon",
		EnvAtomicRewrite: "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvSpanGapMs)
	assert.Contains(t, err.Error(), EnvAtomicRewrite)
	assert.Equal(t, "Grace", cfg.Annotator, "valid values still applied")
	assert.Equal(t, int64(10_000), cfg.SpanGapMs)
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.SpanGapMs = -1
	cfg.Suggestions.FuzzyThreshold = 1.5

	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"wordpool_file", "log_level", "span_gap_ms", "fuzzy_threshold"} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, "phonetic_threshold")
}
