// Package config holds the host-facing configuration surface. Every field
// is optional; Defaults documents the fallback values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/gaurav-prasanna/promptpipe/core/fetch"
	"github.com/gaurav-prasanna/promptpipe/core/reencode"
	"github.com/gaurav-prasanna/promptpipe/core/submission"
)

// LevelOff disables diagnostics entirely.
const LevelOff = "off"

// Config is the full configuration.
type Config struct {
	MaxImageBytes    int64           `yaml:"maxImageBytes" json:"maxImageBytes"`
	MaxDimensionPx   int             `yaml:"maxDimensionPx" json:"maxDimensionPx"`
	MaxImages        int             `yaml:"maxImages" json:"maxImages"`
	MaxDocuments     int             `yaml:"maxDocuments" json:"maxDocuments"`
	ClipboardDialog  bool            `yaml:"clipboardDialog" json:"clipboardDialog"`
	LogLevel         string          `yaml:"logLevel" json:"logLevel"`
	Relays           []string        `yaml:"relays" json:"relays"`
	FetchTimeout     time.Duration   `yaml:"fetchTimeout" json:"fetchTimeout"`
	FetchCacheSize   int             `yaml:"fetchCacheSize" json:"fetchCacheSize"`
	Policy           reencode.Policy `yaml:"policy" json:"policy"`
	DefaultsDebounce time.Duration   `yaml:"defaultsDebounce" json:"defaultsDebounce"`
	BaseURL          string          `yaml:"baseURL" json:"baseURL"`
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		MaxImageBytes:    5 << 20,
		LogLevel:         zerolog.LevelWarnValue,
		Relays:           append([]string(nil), fetch.DefaultRelays...),
		FetchTimeout:     fetch.DefaultTimeout,
		FetchCacheSize:   fetch.DefaultCacheSize,
		Policy:           reencode.DefaultPolicy(),
		DefaultsDebounce: submission.DefaultDebounce,
	}
}

// Load reads a YAML (or JSON) file over Defaults. An empty path returns
// Defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			if jerr := json.Unmarshal(b, &cfg); jerr != nil {
				return cfg, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxImageBytes <= 0 {
		errs = append(errs, fmt.Errorf("maxImageBytes must be positive, got %d", c.MaxImageBytes))
	}
	if c.MaxDimensionPx < 0 {
		errs = append(errs, fmt.Errorf("maxDimensionPx must not be negative, got %d", c.MaxDimensionPx))
	}
	if c.MaxImages < 0 || c.MaxDocuments < 0 {
		errs = append(errs, errors.New("attachment ceilings must not be negative"))
	}
	if c.FetchTimeout < 0 || c.DefaultsDebounce < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.FetchCacheSize < 0 {
		errs = append(errs, fmt.Errorf("fetchCacheSize must not be negative, got %d", c.FetchCacheSize))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	return errors.Join(errs...)
}

// Logger builds the diagnostic logger at the configured level.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
}

func parseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.WarnLevel, nil
	case LevelOff:
		return zerolog.Disabled, nil
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logLevel: %w", err)
	}
	return lvl, nil
}
