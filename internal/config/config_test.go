package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stylematch/internal/css"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.DocumentIsHTML)
	assert.Equal(t, 4, cfg.Cache.Capacity)
	assert.Equal(t, css.DocumentState(0), cfg.DocumentStates())
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
quirks_mode: true
cache:
  capacity: 8
features:
  width: 400
document_state:
  rtl_locale: true
`))
	require.NoError(t, err)
	assert.True(t, cfg.QuirksMode)
	assert.True(t, cfg.DocumentIsHTML, "kept from defaults")
	assert.Equal(t, 8, cfg.Cache.Capacity)
	assert.Equal(t, 400.0, cfg.Features.Width)
	assert.Equal(t, 800.0, cfg.Features.Height)
	assert.Equal(t, css.DocumentStateRTLLocale, cfg.DocumentStates())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("unknown_field: 1\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = Parse([]byte("cache:\n  capacity: 0\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse([]byte("cache:\n  capacity: 65\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse([]byte("logging:\n  console:\n    level: loud\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse([]byte("features:\n  color_scheme: sepia\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadAndDump(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)

	cfg.Cache.MaxRules = 100
	data, err := Dump(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_rules: 100")

	path := filepath.Join(t.TempDir(), "stylematch.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoggingPrepare(t *testing.T) {
	var stdout, stderr bytes.Buffer

	conf := LoggingConfig{ConsoleLogger: LoggerConfig{Level: "normal"}}
	log := conf.prepare(&stdout, &stderr)
	log.Debug("hidden")
	log.Info("shown", zap.Int("rules", 3))
	log.Error("failed")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "shown")
	assert.Contains(t, stdout.String(), "rules")
	assert.Contains(t, stderr.String(), "failed")
	assert.NotContains(t, stdout.String(), "failed")

	stdout.Reset()
	conf.ConsoleLogger.Level = "debug"
	conf.prepare(&stdout, &stderr).Debug("visible")
	assert.Contains(t, stdout.String(), "visible")

	stdout.Reset()
	conf.ConsoleLogger.Level = "none"
	conf.prepare(&stdout, &stderr).Error("silent")
	assert.Empty(t, stdout.String())
	assert.NotContains(t, stderr.String(), "silent")
}
