package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ProjectConfigName is looked up in the working directory and its parents
	ProjectConfigName = "charterkit.yaml"
	// EnvPrefix prefixes environment overrides such as CHARTERKIT_LOG_LEVEL
	EnvPrefix = "CHARTERKIT_"
)

// Loader handles loading configuration from multiple sources
type Loader struct {
	home   string
	dir    string
	getenv func(string) string
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithHome overrides the home directory used for the user config
func WithHome(home string) LoaderOption {
	return func(l *Loader) { l.home = home }
}

// WithWorkDir sets where the project config search starts
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) { l.dir = dir }
}

// WithEnv replaces os.Getenv, mostly for tests
func WithEnv(getenv func(string) string) LoaderOption {
	return func(l *Loader) { l.getenv = getenv }
}

// NewLoader creates a new config loader
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{getenv: os.Getenv}
	if home, err := os.UserHomeDir(); err == nil {
		l.home = home
	}
	if cwd, err := os.Getwd(); err == nil {
		l.dir = cwd
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with the following precedence (highest first):
// 1. Environment variables (CHARTERKIT_*)
// 2. Explicit config file (if path is non-empty)
// 3. Project config (charterkit.yaml in the working directory or a parent)
// 4. User config (~/.config/charterkit/config.yaml)
// 5. Default values
func (l *Loader) Load(explicit string) (*Config, error) {
	cfg := DefaultConfig()

	if path := l.userConfigPath(); path != "" {
		// A missing or broken user config is not fatal.
		_ = overlayFile(cfg, path)
	}

	if path := l.findProjectConfig(); path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load project config: %w", err)
		}
	}

	if explicit != "" {
		if err := overlayFile(cfg, explicit); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	if l.home == "" {
		return ""
	}
	return filepath.Join(l.home, ".config", "charterkit", "config.yaml")
}

// findProjectConfig walks up from the working directory looking for charterkit.yaml
func (l *Loader) findProjectConfig() string {
	if l.dir == "" {
		return ""
	}
	dir := l.dir
	for {
		path := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return cfg.Overlay(data)
}

// applyEnv overrides selected settings from CHARTERKIT_* variables
func (l *Loader) applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":        &cfg.Log.Level,
		"LOG_FORMAT":       &cfg.Log.Format,
		"PASSWORD":         &cfg.Extract.Password,
		"OUTPUT_DIR":       &cfg.Output.Dir,
		"OUTPUT_PAPER":     &cfg.Output.Paper,
		"SERVER_ADDR":      &cfg.Server.Addr,
		"METRICS_TEXTFILE": &cfg.Metrics.Textfile,
	}
	for key, dst := range strs {
		if v := l.getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"OCR_ENABLED":   &cfg.OCR.Enabled,
		"OUTPUT_STRICT": &cfg.Output.Strict,
		"SERVER_DEBUG":  &cfg.Server.Debug,
	}
	for key, dst := range bools {
		if v := l.getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	if v := l.getenv(EnvPrefix + "OCR_LANGUAGES"); v != "" {
		var langs []string
		for _, lang := range strings.Split(v, ",") {
			if lang = strings.TrimSpace(lang); lang != "" {
				langs = append(langs, lang)
			}
		}
		cfg.OCR.Languages = langs
	}
	if v := l.getenv(EnvPrefix + "AMEND_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sAMEND_THRESHOLD: %w", EnvPrefix, err)
		}
		cfg.Amend.Threshold = f
	}
	if v := l.getenv(EnvPrefix + "BATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBATCH_WORKERS: %w", EnvPrefix, err)
		}
		cfg.Batch.Workers = n
	}
	if v := l.getenv(EnvPrefix + "SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSESSION_TTL: %w", EnvPrefix, err)
		}
		cfg.Server.SessionTTL = d
	}
	return nil
}
