// Package config provides configuration loading and management for charterkit.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete charterkit configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Extract ExtractConfig `yaml:"extract"`
	OCR     OCRConfig     `yaml:"ocr"`
	Amend   AmendConfig   `yaml:"amend"`
	Output  OutputConfig  `yaml:"output"`
	Rules   RulesConfig   `yaml:"rules"`
	Batch   BatchConfig   `yaml:"batch"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// ExtractConfig tunes text extraction and amendment marks
type ExtractConfig struct {
	// Password opens encrypted inputs
	Password      string  `yaml:"password"`
	LineTolerance float64 `yaml:"line_tolerance"`
	SpaceFraction float64 `yaml:"space_fraction"`
	StrikeOverlap float64 `yaml:"strike_overlap"`
	GreenMin      float64 `yaml:"green_min"`
	GreenMargin   float64 `yaml:"green_margin"`
	// MaxFormDepth bounds nested form XObjects while reading pages
	MaxFormDepth int `yaml:"max_form_depth"`
}

// OCRConfig configures recognition of image-only pages
type OCRConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Languages []string `yaml:"languages"`
	// TargetDPI is the resolution images are upscaled to before recognition
	TargetDPI int `yaml:"target_dpi"`
}

// AmendConfig configures amendment detection
type AmendConfig struct {
	// Threshold is the similarity above which a deletion and an addition
	// are reported as one modification (0-1)
	Threshold float64 `yaml:"threshold"`
}

// OutputConfig configures the generated PDF
type OutputConfig struct {
	// Dir is where batch and UI outputs are written
	Dir string `yaml:"dir"`
	// Filename is the default output name for process
	Filename string `yaml:"filename"`
	// Paper is letter or a4
	Paper string `yaml:"paper"`
	// MarginInches applies to all four sides
	MarginInches float64 `yaml:"margin_inches"`
	Language     string  `yaml:"language"`
	// SkipSummary drops the amendment summary page
	SkipSummary bool `yaml:"skip_summary"`
	// Strict refuses to write output when Part I validation fails
	Strict        bool   `yaml:"strict"`
	UserPassword  string `yaml:"user_password"`
	OwnerPassword string `yaml:"owner_password"`
	// FontRegular and FontBold are TrueType files embedded instead of Helvetica
	FontRegular string `yaml:"font_regular"`
	FontBold    string `yaml:"font_bold"`
	// Deterministic writes byte-identical files for identical input
	Deterministic bool `yaml:"deterministic"`
}

// RulesConfig lists JavaScript rule scripts run after field mapping
type RulesConfig struct {
	Scripts []string      `yaml:"scripts"`
	Timeout time.Duration `yaml:"timeout"`
	// Normalize tidies quantity, freight and laytime values before the scripts run
	Normalize bool `yaml:"normalize"`
}

// BatchConfig configures batch and watch runs
type BatchConfig struct {
	Workers int `yaml:"workers"`
	// Glob selects recap files inside a watched inbox
	Glob     string        `yaml:"glob"`
	Debounce time.Duration `yaml:"debounce"`
}

// ServerConfig configures the web UI
type ServerConfig struct {
	Addr       string        `yaml:"addr"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	// MaxUploadMB bounds each multipart upload
	MaxUploadMB int64 `yaml:"max_upload_mb"`
	// Debug shows raw session keys on the preview page
	Debug bool `yaml:"debug"`
}

// MetricsConfig configures prometheus export
type MetricsConfig struct {
	// Textfile is written after batch runs for the node exporter
	Textfile string `yaml:"textfile"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Extract: ExtractConfig{
			LineTolerance: 0.5,
			SpaceFraction: 0.15,
			StrikeOverlap: 0.6,
			GreenMin:      0.35,
			GreenMargin:   0.2,
			MaxFormDepth:  12,
		},
		OCR: OCRConfig{
			Languages: []string{"eng"},
			TargetDPI: 300,
		},
		Amend: AmendConfig{Threshold: 0.7},
		Output: OutputConfig{
			Dir:          "output",
			Filename:     "Final_Filled.pdf",
			Paper:        "letter",
			MarginInches: 0.5,
			Language:     "en",
		},
		Rules: RulesConfig{Timeout: 5 * time.Second},
		Batch: BatchConfig{
			Workers:  4,
			Glob:     "*.pdf",
			Debounce: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			SessionTTL:  time.Hour,
			MaxUploadMB: 32,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log.format must be text or json")
	}
	if c.Amend.Threshold < 0 || c.Amend.Threshold > 1 {
		return fmt.Errorf("amend.threshold must be between 0 and 1")
	}
	if c.Extract.MaxFormDepth < 0 {
		return fmt.Errorf("extract.max_form_depth must not be negative")
	}
	if c.Extract.StrikeOverlap <= 0 || c.Extract.StrikeOverlap > 1 {
		return fmt.Errorf("extract.strike_overlap must be in (0, 1]")
	}
	if p := strings.ToLower(c.Output.Paper); p != "letter" && p != "a4" {
		return fmt.Errorf("output.paper must be letter or a4")
	}
	if c.Output.MarginInches < 0 || c.Output.MarginInches > 2 {
		return fmt.Errorf("output.margin_inches must be between 0 and 2")
	}
	if (c.Output.FontRegular == "") != (c.Output.FontBold == "") {
		return fmt.Errorf("output.font_regular and output.font_bold must be set together")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1")
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("server.session_ttl must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := config.Overlay(data); err != nil {
		return nil, err
	}

	return config, nil
}

// Overlay decodes YAML on top of c. Only keys present in data change, so a
// file can set a boolean back to false. On error c is left untouched.
func (c *Config) Overlay(data []byte) error {
	next := *c
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	*c = next
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
// Booleans can only be switched on; use Overlay for file layers.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	// Extract
	if other.Extract.Password != "" {
		c.Extract.Password = other.Extract.Password
	}
	if other.Extract.LineTolerance != 0 {
		c.Extract.LineTolerance = other.Extract.LineTolerance
	}
	if other.Extract.SpaceFraction != 0 {
		c.Extract.SpaceFraction = other.Extract.SpaceFraction
	}
	if other.Extract.StrikeOverlap != 0 {
		c.Extract.StrikeOverlap = other.Extract.StrikeOverlap
	}
	if other.Extract.GreenMin != 0 {
		c.Extract.GreenMin = other.Extract.GreenMin
	}
	if other.Extract.GreenMargin != 0 {
		c.Extract.GreenMargin = other.Extract.GreenMargin
	}
	if other.Extract.MaxFormDepth != 0 {
		c.Extract.MaxFormDepth = other.Extract.MaxFormDepth
	}

	// OCR
	if other.OCR.Enabled {
		c.OCR.Enabled = true
	}
	if len(other.OCR.Languages) > 0 {
		c.OCR.Languages = other.OCR.Languages
	}
	if other.OCR.TargetDPI != 0 {
		c.OCR.TargetDPI = other.OCR.TargetDPI
	}

	// Amend
	if other.Amend.Threshold != 0 {
		c.Amend.Threshold = other.Amend.Threshold
	}

	// Output
	o := other.Output
	if o.Dir != "" {
		c.Output.Dir = o.Dir
	}
	if o.Filename != "" {
		c.Output.Filename = o.Filename
	}
	if o.Paper != "" {
		c.Output.Paper = o.Paper
	}
	if o.MarginInches != 0 {
		c.Output.MarginInches = o.MarginInches
	}
	if o.Language != "" {
		c.Output.Language = o.Language
	}
	if o.SkipSummary {
		c.Output.SkipSummary = true
	}
	if o.Strict {
		c.Output.Strict = true
	}
	if o.Deterministic {
		c.Output.Deterministic = true
	}
	if o.UserPassword != "" {
		c.Output.UserPassword = o.UserPassword
	}
	if o.OwnerPassword != "" {
		c.Output.OwnerPassword = o.OwnerPassword
	}
	if o.FontRegular != "" {
		c.Output.FontRegular = o.FontRegular
	}
	if o.FontBold != "" {
		c.Output.FontBold = o.FontBold
	}

	// Rules
	if len(other.Rules.Scripts) > 0 {
		c.Rules.Scripts = other.Rules.Scripts
	}
	if other.Rules.Timeout != 0 {
		c.Rules.Timeout = other.Rules.Timeout
	}
	if other.Rules.Normalize {
		c.Rules.Normalize = true
	}

	// Batch
	if other.Batch.Workers != 0 {
		c.Batch.Workers = other.Batch.Workers
	}
	if other.Batch.Glob != "" {
		c.Batch.Glob = other.Batch.Glob
	}
	if other.Batch.Debounce != 0 {
		c.Batch.Debounce = other.Batch.Debounce
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.SessionTTL != 0 {
		c.Server.SessionTTL = other.Server.SessionTTL
	}
	if other.Server.MaxUploadMB != 0 {
		c.Server.MaxUploadMB = other.Server.MaxUploadMB
	}
	if other.Server.Debug {
		c.Server.Debug = true
	}

	// Metrics
	if other.Metrics.Textfile != "" {
		c.Metrics.Textfile = other.Metrics.Textfile
	}
}
