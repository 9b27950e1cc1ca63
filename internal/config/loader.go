package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrNoConfig is returned by Discover when no configuration file exists in any standard location.
var ErrNoConfig = errors.New("no config found")

// Load reads, verifies and validates configuration from a file.
// A directory argument is resolved to <dir>/config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := VerifyConfigChecksum(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	if cfg.State.Path != "" && !filepath.IsAbs(cfg.State.Path) {
		cfg.State.Path = filepath.Join(filepath.Dir(absPath), cfg.State.Path)
	}
	if cfg.Backend.Entrypoint != "" && !filepath.IsAbs(cfg.Backend.Entrypoint) {
		cfg.Backend.Entrypoint = filepath.Join(filepath.Dir(absPath), cfg.Backend.Entrypoint)
	}
	return cfg, nil
}

// Parse decodes YAML onto Defaults(), interpolates ${ENV} references and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds the config file by checking standard locations.
// Priority order: $INSTANT_AI_CONFIG, ~/.config/instant-ai/config.yaml, ./config.yaml
func Discover() (string, error) {
	if p := os.Getenv("INSTANT_AI_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "instant-ai", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("%w (checked: $INSTANT_AI_CONFIG, ~/.config/instant-ai/config.yaml, ./config.yaml)", ErrNoConfig)
}

// applyConfigDefaults fills zero values a partial YAML document may leave behind.
func applyConfigDefaults(cfg *Config) *Config {
	def := Defaults()

	cfg.Service.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Service.LogLevel))
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}
	if cfg.Prefs.Driver == "" {
		cfg.Prefs.Driver = def.Prefs.Driver
	}
	if cfg.Prefs.Redis.Prefix == "" {
		cfg.Prefs.Redis.Prefix = def.Prefs.Redis.Prefix
	}
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = def.Backend.Kind
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = def.Backend.Timeout
	}
	if cfg.Backend.Gemini.Model == "" {
		cfg.Backend.Gemini.Model = def.Backend.Gemini.Model
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = def.API.Listen
	}
	if cfg.State.LockPath == "" && cfg.State.Path != "" {
		cfg.State.LockPath = cfg.State.Path + ".lock"
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with the environment value; unset variables are left in place.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	switch cfg.Prefs.Driver {
	case "sqlite", "memory":
	case "redis":
		if cfg.Prefs.Redis.Addr == "" {
			return fmt.Errorf("prefs.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("prefs.driver must be one of: sqlite, redis, memory (got %q)", cfg.Prefs.Driver)
	}

	if cfg.Prefs.Driver == "sqlite" || cfg.Journal.Enabled {
		if cfg.State.Path == "" {
			return fmt.Errorf("state.path is required")
		}
	}

	switch cfg.Backend.Kind {
	case "local":
	case "plugin":
		if cfg.Backend.Entrypoint == "" {
			return fmt.Errorf("backend.entrypoint is required for the plugin backend")
		}
	case "gemini":
		if err := checkResolved("backend.gemini.api_key", cfg.Backend.Gemini.APIKey, true); err != nil {
			return err
		}
	case "http":
		if cfg.Backend.HTTP.Endpoint == "" {
			return fmt.Errorf("backend.http.endpoint is required for the http backend")
		}
		if err := checkResolved("backend.http.api_key", cfg.Backend.HTTP.APIKey, false); err != nil {
			return err
		}
	default:
		return fmt.Errorf("backend.kind must be one of: local, plugin, gemini, http (got %q)", cfg.Backend.Kind)
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%v) must be >= retry.base_delay (%v)", cfg.Retry.MaxDelay, cfg.Retry.BaseDelay)
	}

	if cfg.API.Enabled {
		if err := checkResolved("api.auth.api_key", cfg.API.Auth.APIKey, false); err != nil {
			return err
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth requires api_key or tokens when the API is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if err := checkResolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token, true); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	return nil
}

// checkResolved rejects values still carrying a ${VAR} placeholder so secrets never leak
// into requests as literal text.
func checkResolved(field, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
