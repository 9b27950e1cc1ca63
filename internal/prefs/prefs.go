// Package prefs provides the key/value stores that hold host-managed preferences,
// most importantly the JSON blob describing the processing menu.
package prefs

import (
	"context"
	"errors"
	"fmt"
)

// MenuConfigKey is the well-known key the configuration management surface writes the
// menu descriptors under. The "flutter." prefix is kept so blobs exported from the mobile
// app's shared preferences can be imported unchanged.
const MenuConfigKey = "flutter.context_menu_configs"

// DefaultMaxValueBytes caps a single preference value.
const DefaultMaxValueBytes = 1 << 20

// ErrEmptyKey is returned for operations on an empty key.
var ErrEmptyKey = errors.New("preference key is empty")

// Store is the read side used by the menu config provider.
type Store interface {
	// GetString returns the value for key. ok is false when the key is absent.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)
}

// Writer is implemented by stores the configuration management surface can write to.
type Writer interface {
	Store
	SetString(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

func checkWrite(key, value string, max int) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(value) > max {
		return fmt.Errorf("preference %q exceeds max size (%d bytes)", key, max)
	}
	return nil
}
