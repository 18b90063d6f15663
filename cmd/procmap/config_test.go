package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procmap/internal/matcher"
	"github.com/rendis/procmap/internal/telemetry"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"PROCMAP_DB_PATH", "PROCMAP_LOG_LEVEL", "PROCMAP_METRICS_ADDR", "PROCMAP_OVERRIDES_DIR",
		"PROCMAP_FUZZY_THRESHOLD", "PROCMAP_AMBIGUITY_DELTA", "PROCMAP_FUZZY_SCALE",
	} {
		t.Setenv(key, "")
	}
	return home
}

func writeSettings(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".procmap")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(content), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := withHome(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".procmap", "procmap.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, matcher.DefaultConfig(), cfg.Matcher)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := withHome(t)
	writeSettings(t, home, `
log_level: debug
overrides_dir: /srv/overrides
matcher:
  fuzzy_threshold: 0.8
  domain_tokens: [kyc, aml]
  rules:
    - name: same-prefix
      engine: expr
      expression: call_activity.name == candidate.name
`)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/overrides", cfg.OverridesDir)
	assert.Equal(t, 0.8, cfg.Matcher.FuzzyThreshold)
	// keys absent from the file keep their defaults
	assert.Equal(t, matcher.DefaultAmbiguityDelta, cfg.Matcher.AmbiguityDelta)
	assert.Equal(t, []string{"kyc", "aml"}, cfg.Matcher.DomainTokens)
	require.Len(t, cfg.Matcher.Rules, 1)
	assert.Equal(t, "expr", cfg.Matcher.Rules[0].Engine)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	home := withHome(t)
	writeSettings(t, home, `{"db_path": "/from/file.db", "log_level": "warn"}`)
	t.Setenv("PROCMAP_DB_PATH", "/from/env.db")
	t.Setenv("PROCMAP_METRICS_ADDR", ":9464")
	t.Setenv("PROCMAP_AMBIGUITY_DELTA", "0")
	t.Setenv("PROCMAP_FUZZY_SCALE", " 0.6 ")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.DBPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
	assert.Zero(t, cfg.Matcher.AmbiguityDelta)
	assert.Equal(t, 0.6, cfg.Matcher.FuzzyScale)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("malformed settings", func(t *testing.T) {
		home := withHome(t)
		writeSettings(t, home, "matcher: [unclosed")
		_, err := loadConfig()
		assert.Error(t, err)
	})

	t.Run("non numeric env", func(t *testing.T) {
		withHome(t)
		t.Setenv("PROCMAP_FUZZY_THRESHOLD", "high")
		_, err := loadConfig()
		assert.Error(t, err)
	})

	t.Run("out of range", func(t *testing.T) {
		withHome(t)
		t.Setenv("PROCMAP_FUZZY_SCALE", "0.9")
		_, err := loadConfig()
		assert.Error(t, err)
	})
}

func TestDBURI(t *testing.T) {
	assert.Equal(t, "file:/tmp/p.db", Config{DBPath: "/tmp/p.db"}.dbURI())
	assert.Equal(t, "file:/tmp/p.db", Config{DBPath: "file:/tmp/p.db"}.dbURI())
}

func TestMetricsMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := telemetry.NewPrometheus(reg)
	require.NoError(t, err)
	rec.RecordMatch("matched", "heuristic")

	rr := httptest.NewRecorder()
	metricsMux(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "procmap_match_total")
}
