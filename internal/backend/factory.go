package backend

import (
	"fmt"

	"github.com/bekaIva/instant-ai-translator/internal/config"
)

// Open builds the runtime selected by cfg.Kind. The runtime is not started.
func Open(cfg config.BackendConfig) (Runtime, error) {
	switch cfg.Kind {
	case "", "local":
		return NewLocalRuntime(), nil
	case "plugin":
		if cfg.Entrypoint == "" {
			return nil, fmt.Errorf("plugin backend requires an entrypoint")
		}
		return NewPluginRuntime(cfg.Entrypoint, cfg.Timeout), nil
	case "gemini":
		return NewGeminiRuntime(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL), nil
	case "http":
		return NewHTTPChatRuntime(cfg.HTTP.Endpoint, cfg.HTTP.Model, cfg.HTTP.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}
