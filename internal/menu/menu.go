// Package menu reads the user-configured processing menu from the preference store.
//
// The menu is persisted as a JSON array of item descriptors under prefs.MenuConfigKey
// by a configuration management surface outside this package. Reading is fail-open:
// a missing key, an unreadable store or a malformed blob all produce an empty menu,
// never an error, so a broken config cannot take the menu down.
package menu

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/bekaIva/instant-ai-translator/internal/log"
	"github.com/bekaIva/instant-ai-translator/internal/prefs"
)

// DefaultIcon is used for items that do not carry a string icon.
const DefaultIcon = "🔧"

// MenuItemConfig is one configurable user action.
type MenuItemConfig struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Operation   string `json:"operation"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Icon        string `json:"icon"`
	SortOrder   int    `json:"sortOrder"`
}

// ParseError reports a blob that is not a JSON array.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("menu config is not a JSON array: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// GetEnabledConfigs returns the enabled items from store ordered by SortOrder.
// Items sharing a SortOrder keep their array order.
func GetEnabledConfigs(ctx context.Context, store prefs.Store) []MenuItemConfig {
	logger := log.WithComponent("menu")

	raw, ok, err := store.GetString(ctx, prefs.MenuConfigKey)
	if err != nil {
		logger.Warn("menu config unreadable, using empty menu", "error", err)
		return []MenuItemConfig{}
	}
	if !ok {
		return []MenuItemConfig{}
	}

	items, err := ParseConfigs(raw)
	if err != nil {
		logger.Warn("menu config malformed, using empty menu", "error", err)
		return []MenuItemConfig{}
	}
	return EnabledSorted(items)
}

// EnabledSorted filters items to enabled ones and stable-sorts them by SortOrder.
func EnabledSorted(items []MenuItemConfig) []MenuItemConfig {
	out := make([]MenuItemConfig, 0, len(items))
	for _, it := range items {
		if it.Enabled {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b MenuItemConfig) int {
		return cmp.Compare(a.SortOrder, b.SortOrder)
	})
	return out
}

// ParseConfigs decodes every object element of a JSON array, applying field defaults.
// Non-object elements are skipped. A blob that is not an array yields *ParseError.
func ParseConfigs(raw string) ([]MenuItemConfig, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, &ParseError{Err: err}
	}

	items := make([]MenuItemConfig, 0, len(elems))
	for _, el := range elems {
		var obj map[string]any
		if err := json.Unmarshal(el, &obj); err != nil || obj == nil {
			continue
		}
		items = append(items, fromObject(obj))
	}
	return items, nil
}

func fromObject(obj map[string]any) MenuItemConfig {
	return MenuItemConfig{
		ID:          optString(obj, "id", ""),
		Label:       optString(obj, "label", ""),
		Operation:   optString(obj, "operation", ""),
		Description: optString(obj, "description", ""),
		Enabled:     optBool(obj, "enabled", false),
		Icon:        optString(obj, "icon", DefaultIcon),
		SortOrder:   optInt(obj, "sortOrder", 0),
	}
}

func optString(obj map[string]any, key, def string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return def
}

func optBool(obj map[string]any, key string, def bool) bool {
	if v, ok := obj[key].(bool); ok {
		return v
	}
	return def
}

// optInt accepts any JSON number and keeps its integral part; values outside the
// int32 range (the host platform's int) fall back to def.
func optInt(obj map[string]any, key string, def int) int {
	v, ok := obj[key].(float64)
	if !ok || math.IsNaN(v) {
		return def
	}
	t := math.Trunc(v)
	if t > math.MaxInt32 || t < math.MinInt32 {
		return def
	}
	return int(t)
}

// EncodeConfigs serializes items in the persisted blob format.
func EncodeConfigs(items []MenuItemConfig) (string, error) {
	if items == nil {
		items = []MenuItemConfig{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode menu config: %w", err)
	}
	return string(b), nil
}

// DisplayLabel returns the label shown for an item, falling back to its id.
func DisplayLabel(item MenuItemConfig) string {
	if item.Label != "" {
		return item.Label
	}
	return item.ID
}

// Validate checks items before they are persisted: every item needs an id and an
// operation, and ids are unique.
func Validate(items []MenuItemConfig) error {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.ID == "" {
			return fmt.Errorf("item %d: id is empty", i)
		}
		if item.Operation == "" {
			return fmt.Errorf("item %q: operation is empty", item.ID)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("item %q: duplicate id", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
