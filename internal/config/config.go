package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvConfigPath names the environment variable pointing at the config file.
	EnvConfigPath = "SHARIAHGUIDE_CONFIG"

	DefaultProvider = "gemini"
	DefaultModel    = "gemini-1.5-flash-8b"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Generation  GenerationConfig          `json:"generation"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Speech      SpeechConfig              `json:"speech"`
	About       AboutConfig               `json:"about"`
}

type ProviderConfig struct {
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	DocumentPath      string `json:"document_path"`
	FeedbackPath      string `json:"feedback_path"`
	LogLevel          string `json:"log_level"`
	LogFile           string `json:"log_file"`
	MetricsEnabled    bool   `json:"metrics_enabled"`
	SecureCookies     bool   `json:"secure_cookies"`
	SessionQueueSize  int    `json:"session_queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
	TempFileTTL       int    `json:"temp_file_ttl"`       // minutes
	TempCleanInterval int    `json:"temp_clean_interval"` // minutes
}

// GenerationConfig selects the provider used for answer synthesis.
type GenerationConfig struct {
	Provider string `json:"provider"`
	// SpeakFailures keeps the old behaviour of reading "Error: ..." answers aloud.
	SpeakFailures bool `json:"speak_failures"`
}

type SpeechConfig struct {
	Disabled  bool   `json:"disabled"`
	Slow      bool   `json:"slow"`
	DetectURL string `json:"detect_url"`
	TTSURL    string `json:"tts_url"`
}

// AboutConfig fills the sidebar developer card; it is hidden when Name is empty.
type AboutConfig struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	LinkedIn string `json:"linkedin"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:     ":8501",
			DocumentPath:      "islamic banking.pdf",
			FeedbackPath:      "feedback.csv",
			LogLevel:          "info",
			MetricsEnabled:    true,
			SessionQueueSize:  4,
			WorkerIdleTimeout: 30,
			TempFileTTL:       60,
			TempCleanInterval: 10,
		},
		Generation: GenerationConfig{Provider: DefaultProvider},
		Providers: map[string]ProviderConfig{
			"gemini":      {Model: DefaultModel, APIKeyEnv: "GEMINI_API_KEY"},
			"gemini-eino": {Model: DefaultModel, APIKeyEnv: "GEMINI_API_KEY"},
			"openai":      {Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY"},
			"claude":      {Model: "claude-3-5-haiku-latest", APIKeyEnv: "ANTHROPIC_API_KEY"},
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		cfg.resolvePaths(filepath.Dir(absPath))
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Provider returns the settings for the configured generation provider.
func (c *Config) Provider() (string, ProviderConfig) {
	name := strings.TrimSpace(c.Generation.Provider)
	if name == "" {
		name = DefaultProvider
	}
	return name, c.Providers[name]
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.BasicConfig.DocumentPath, &c.BasicConfig.FeedbackPath, &c.BasicConfig.LogFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// applyEnv fills provider keys from the environment when the file leaves them blank.
func (c *Config) applyEnv() {
	defaults := Default().Providers
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, def := range defaults {
		if _, ok := c.Providers[name]; !ok {
			c.Providers[name] = def
		}
	}
	for name, prov := range c.Providers {
		if prov.APIKeyEnv == "" {
			prov.APIKeyEnv = defaults[name].APIKeyEnv
		}
		if prov.APIKey == "" && prov.APIKeyEnv != "" {
			prov.APIKey = strings.TrimSpace(os.Getenv(prov.APIKeyEnv))
		}
		c.Providers[name] = prov
	}
}

func (c *Config) validate() error {
	if c.BasicConfig.DocumentPath == "" {
		return errors.New("document_path must be configured")
	}
	if c.BasicConfig.FeedbackPath == "" {
		return errors.New("feedback_path must be configured")
	}
	name, _ := c.Provider()
	if _, ok := c.Providers[name]; !ok {
		return fmt.Errorf("provider %s not configured", name)
	}
	return nil
}
