package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "lorekeeper.yaml"

type ProjectConfig struct {
	Project   string          `yaml:"project"`
	Version   int             `yaml:"version"`
	Store     StoreConfig     `yaml:"store"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	LockDir   string          `yaml:"lock_dir"`
	Exclude   []string        `yaml:"exclude"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type ExtractorConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        *int          `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxConcurrent     int           `yaml:"max_concurrent"`

	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-"`
}

type ReconcileConfig struct {
	// Nil thresholds take the defaults; an explicit 0 flags any shared token.
	WorldOverlapThreshold    *int `yaml:"world_overlap_threshold"`
	TimelineOverlapThreshold *int `yaml:"timeline_overlap_threshold"`
	KeyMaxLength             int  `yaml:"key_max_length"`
}

type envOverrides struct {
	StoreDriver       string `env:"LOREKEEPER_STORE_DRIVER"`
	StorePath         string `env:"LOREKEEPER_STORE_PATH"`
	StoreDSN          string `env:"LOREKEEPER_STORE_DSN"`
	ExtractorProvider string `env:"LOREKEEPER_EXTRACTOR_PROVIDER"`
	ExtractorModel    string `env:"LOREKEEPER_EXTRACTOR_MODEL"`
	OpenAIKey         string `env:"OPENAI_API_KEY"`
	AnthropicKey      string `env:"ANTHROPIC_API_KEY"`
}

var (
	storeDrivers       = []string{"memory", "files", "sqlite", "postgres"}
	extractorProviders = []string{"openai", "anthropic", "heuristic", "jsonfile"}
)

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}
	applyDefaults(&cfg)

	if err := validateProjectConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault falls back to Default, with environment overrides applied,
// when path does not exist.
func LoadOrDefault(path string) (*ProjectConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := &ProjectConfig{Project: "default", Version: 1}
		if err := applyEnv(cfg); err != nil {
			return nil, fmt.Errorf("loading default config: %w", err)
		}
		applyDefaults(cfg)
		if err := validateProjectConfig(cfg); err != nil {
			return nil, fmt.Errorf("loading default config: %w", err)
		}
		return cfg, nil
	}
	return LoadProjectConfig(path)
}

// Default returns the configuration used when no project file exists.
func Default() *ProjectConfig {
	cfg := &ProjectConfig{Project: "default", Version: 1}
	applyDefaults(cfg)
	return cfg
}

func applyEnv(cfg *ProjectConfig) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if overrides.StoreDriver != "" {
		cfg.Store.Driver = overrides.StoreDriver
	}
	if overrides.StorePath != "" {
		cfg.Store.Path = overrides.StorePath
	}
	if overrides.StoreDSN != "" {
		cfg.Store.DSN = overrides.StoreDSN
	}
	if overrides.ExtractorProvider != "" {
		cfg.Extractor.Provider = overrides.ExtractorProvider
	}
	if overrides.ExtractorModel != "" {
		cfg.Extractor.Model = overrides.ExtractorModel
	}
	switch strings.ToLower(cfg.Extractor.Provider) {
	case "openai":
		cfg.Extractor.APIKey = overrides.OpenAIKey
	case "anthropic":
		cfg.Extractor.APIKey = overrides.AnthropicKey
	}
	return nil
}

func applyDefaults(cfg *ProjectConfig) {
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "files"
	}
	if cfg.Store.Driver == "files" && cfg.Store.Path == "" {
		cfg.Store.Path = "Database"
	}

	e := &cfg.Extractor
	e.Provider = strings.ToLower(strings.TrimSpace(e.Provider))
	if e.Provider == "" {
		e.Provider = "heuristic"
	}
	if e.Model == "" {
		switch e.Provider {
		case "openai":
			e.Model = "gpt-4o"
		case "anthropic":
			e.Model = "claude-sonnet-4-5"
		}
	}
	if e.Timeout == 0 {
		e.Timeout = 60 * time.Second
	}
	if e.MaxRetries == nil {
		e.MaxRetries = intPtr(3)
	}
	if e.InitialBackoff == 0 {
		e.InitialBackoff = time.Second
	}
	if e.MaxBackoff == 0 {
		e.MaxBackoff = 30 * time.Second
	}
	if e.MaxConcurrent == 0 {
		e.MaxConcurrent = 2
	}

	r := &cfg.Reconcile
	if r.WorldOverlapThreshold == nil {
		r.WorldOverlapThreshold = intPtr(3)
	}
	if r.TimelineOverlapThreshold == nil {
		r.TimelineOverlapThreshold = intPtr(5)
	}
	if r.KeyMaxLength == 0 {
		r.KeyMaxLength = 40
	}

	if cfg.LockDir == "" {
		cfg.LockDir = ".lorekeeper/locks"
	}
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}

	if !contains(storeDrivers, cfg.Store.Driver) {
		return fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	switch cfg.Store.Driver {
	case "files":
		if strings.TrimSpace(cfg.Store.Path) == "" {
			return fmt.Errorf("store path is required for the files driver")
		}
	case "sqlite":
		if !strings.HasPrefix(cfg.Store.DSN, "sqlite://") {
			return fmt.Errorf("sqlite store requires a sqlite:// dsn")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return fmt.Errorf("postgres store requires a dsn")
		}
	}

	e := cfg.Extractor
	if !contains(extractorProviders, e.Provider) {
		return fmt.Errorf("unsupported extractor provider: %s", e.Provider)
	}
	if *e.MaxRetries < 0 {
		return fmt.Errorf("extractor max_retries must not be negative")
	}
	if e.Timeout < 0 || e.InitialBackoff < 0 || e.MaxBackoff < 0 {
		return fmt.Errorf("extractor durations must not be negative")
	}
	if e.MaxBackoff < e.InitialBackoff {
		return fmt.Errorf("extractor max_backoff must be at least initial_backoff")
	}
	if e.RequestsPerMinute < 0 || e.MaxConcurrent < 0 {
		return fmt.Errorf("extractor limits must not be negative")
	}

	r := cfg.Reconcile
	if *r.WorldOverlapThreshold < 0 || *r.TimelineOverlapThreshold < 0 {
		return fmt.Errorf("overlap thresholds must not be negative")
	}
	if r.KeyMaxLength < 8 {
		return fmt.Errorf("key_max_length must be at least 8")
	}

	return nil
}

func intPtr(v int) *int {
	return &v
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
