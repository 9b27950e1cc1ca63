package menu

import "github.com/bekaIva/instant-ai-translator/internal/backend"

// FallbackActions returns the demo menu offered when the user has not configured anything.
// Its operations are served by backend.LocalRuntime.
func FallbackActions() []MenuItemConfig {
	return []MenuItemConfig{
		{ID: "fallback-uppercase", Label: "Uppercase", Operation: backend.OpUppercase, Enabled: true, Icon: DefaultIcon, SortOrder: 0},
		{ID: "fallback-prefix", Label: "Prefix [AI] ", Operation: backend.OpPrefix, Enabled: true, Icon: DefaultIcon, SortOrder: 1},
		{ID: "fallback-echo", Label: "Echo", Operation: backend.OpEcho, Enabled: true, Icon: DefaultIcon, SortOrder: 2},
	}
}

// Resolve returns the configured enabled items, or the fallback actions and true when
// there are none.
func Resolve(configured []MenuItemConfig) ([]MenuItemConfig, bool) {
	if len(configured) == 0 {
		return FallbackActions(), true
	}
	return configured, false
}
