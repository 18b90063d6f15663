package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/procmap/internal/matcher"
)

// Config holds the procmap server configuration.
// Priority: env vars > settings.yaml > defaults.
type Config struct {
	DBPath       string         `yaml:"db_path"`
	LogLevel     string         `yaml:"log_level"`
	MetricsAddr  string         `yaml:"metrics_addr"`
	OverridesDir string         `yaml:"overrides_dir"`
	Matcher      matcher.Config `yaml:"matcher"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(procmapDir(), "procmap.db"),
		LogLevel: "info",
		Matcher:  matcher.DefaultConfig(),
	}
}

func procmapDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".procmap"
	}
	return filepath.Join(home, ".procmap")
}

func settingsPath() string {
	return filepath.Join(procmapDir(), "settings.yaml")
}

// loadConfig layers settings.yaml and PROCMAP_* env vars over the defaults.
// A missing settings file is fine; a malformed one or a malformed numeric
// env var is an error.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(settingsPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read settings: %w", err)
	default:
		// JSON is valid YAML, so settings.json content works here too.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	}

	if v := os.Getenv("PROCMAP_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PROCMAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PROCMAP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("PROCMAP_OVERRIDES_DIR"); v != "" {
		cfg.OverridesDir = v
	}
	floats := []struct {
		env string
		dst *float64
	}{
		{"PROCMAP_FUZZY_THRESHOLD", &cfg.Matcher.FuzzyThreshold},
		{"PROCMAP_AMBIGUITY_DELTA", &cfg.Matcher.AmbiguityDelta},
		{"PROCMAP_FUZZY_SCALE", &cfg.Matcher.FuzzyScale},
	}
	for _, f := range floats {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", f.env, err)
		}
		*f.dst = n
	}

	if err := cfg.Matcher.Validate(); err != nil {
		return cfg, fmt.Errorf("matcher settings: %w", err)
	}
	return cfg, nil
}

// dbURI turns DBPath into the file URI libSQL expects.
func (c Config) dbURI() string {
	if strings.HasPrefix(c.DBPath, "file:") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}
