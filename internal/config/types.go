package config

import "time"

// Config represents the complete instant-ai configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	Prefs   PrefsConfig   `yaml:"prefs"`
	Backend BackendConfig `yaml:"backend"`
	Retry   RetryConfig   `yaml:"retry"`
	API     APIConfig     `yaml:"api,omitempty"`
	Journal JournalConfig `yaml:"journal,omitempty"`

	// SourcePath is the absolute path the config was loaded from. Not serialized.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines local state storage settings.
type StateConfig struct {
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path,omitempty"`
}

// PrefsConfig selects the key/value store holding the menu configuration.
type PrefsConfig struct {
	Driver string      `yaml:"driver"` // sqlite | redis | memory
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines the redis connection used by the redis prefs driver.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// BackendConfig selects and configures the processing runtime.
type BackendConfig struct {
	Kind       string        `yaml:"kind"` // local | plugin | gemini | http
	Entrypoint string        `yaml:"entrypoint,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	Gemini     GeminiConfig  `yaml:"gemini,omitempty"`
	HTTP       HTTPConfig    `yaml:"http,omitempty"`
}

// GeminiConfig configures the Google GenAI runtime.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// HTTPConfig configures an OpenAI-compatible chat completions runtime.
type HTTPConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// RetryConfig defines the bridge retry schedule for transient backend failures.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// JournalConfig controls the processing log.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "instant-ai",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Prefs: PrefsConfig{
			Driver: "sqlite",
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "instant-ai:prefs:",
			},
		},
		Backend: BackendConfig{
			Kind:    "local",
			Timeout: 60 * time.Second,
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
		},
		Retry: DefaultRetry(),
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
		Journal: JournalConfig{
			Enabled:   true,
			Retention: 30 * 24 * time.Hour,
		},
	}
}

// DefaultRetry returns the retry schedule used while the backend registers its handler:
// three extra attempts at 300ms, 600ms and 900ms.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  300 * time.Millisecond,
		MaxDelay:   900 * time.Millisecond,
	}
}
