package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the scraper. Nothing here mutates
// after startup; the pipeline reads the backend credential exactly once.
type Config struct {
	// One-shot URL or HTTP listen address; exactly one must be set.
	URL       string
	ServeAddr string

	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	CacheDir string
	CacheTTL time.Duration

	FetchTimeout   time.Duration
	FetchUserAgent string
	// RequestTimeout bounds a whole scrape including retries; 0 disables.
	RequestTimeout time.Duration

	Verbose bool
}

// FileConfig is the optional YAML configuration schema. Nested sections map
// naturally to the flag names.
type FileConfig struct {
	URL   string `yaml:"url"`
	Serve string `yaml:"serve"`

	LLM struct {
		Base  string `yaml:"base"`
		Model string `yaml:"model"`
		Key   string `yaml:"key"`
	} `yaml:"llm"`

	Cache struct {
		Dir string `yaml:"dir"`
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`

	Fetch struct {
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"userAgent"`
	} `yaml:"fetch"`

	Timeout string `yaml:"timeout"`
	Verbose bool   `yaml:"verbose"`
}

// LoadFile reads a YAML config file.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse yaml: %w", err)
	}
	return fc, nil
}

// Apply overlays file values into cfg for any fields still unset, so explicit
// flags and environment values win over the file.
func Apply(cfg *Config, fc FileConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.URL == "" && fc.URL != "" {
		cfg.URL = fc.URL
	}
	if cfg.ServeAddr == "" && fc.Serve != "" {
		cfg.ServeAddr = fc.Serve
	}
	if cfg.LLMBaseURL == "" && fc.LLM.Base != "" {
		cfg.LLMBaseURL = fc.LLM.Base
	}
	if cfg.LLMModel == "" && fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" && fc.LLM.Key != "" {
		cfg.LLMAPIKey = fc.LLM.Key
	}
	if cfg.CacheDir == "" && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.FetchUserAgent == "" && fc.Fetch.UserAgent != "" {
		cfg.FetchUserAgent = fc.Fetch.UserAgent
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
	var err error
	if cfg.CacheTTL, err = overlayDuration(cfg.CacheTTL, fc.Cache.TTL, "cache.ttl"); err != nil {
		return err
	}
	if cfg.FetchTimeout, err = overlayDuration(cfg.FetchTimeout, fc.Fetch.Timeout, "fetch.timeout"); err != nil {
		return err
	}
	if cfg.RequestTimeout, err = overlayDuration(cfg.RequestTimeout, fc.Timeout, "timeout"); err != nil {
		return err
	}
	return nil
}

func overlayDuration(current time.Duration, raw, name string) (time.Duration, error) {
	if current != 0 || strings.TrimSpace(raw) == "" {
		return current, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return d, nil
}

// Validate performs minimal schema validation for required settings.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llm.model is required (or set LLM_MODEL)")
	}
	url := strings.TrimSpace(cfg.URL) != ""
	serve := strings.TrimSpace(cfg.ServeAddr) != ""
	if url == serve {
		return errors.New("config: exactly one of -url and -serve is required")
	}
	if cfg.CacheTTL < 0 || cfg.FetchTimeout < 0 || cfg.RequestTimeout < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	return nil
}
