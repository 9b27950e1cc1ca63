package prefs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runWriterContract exercises the behaviour every Writer implementation must share.
func runWriterContract(t *testing.T, w Writer) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		v, ok, err := w.GetString(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, w.SetString(ctx, MenuConfigKey, `[{"id":"a"}]`))
		v, ok, err := w.GetString(ctx, MenuConfigKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `[{"id":"a"}]`, v)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, w.SetString(ctx, "k", "one"))
		require.NoError(t, w.SetString(ctx, "k", "two"))
		v, _, err := w.GetString(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", v)
	})

	t.Run("empty value is present", func(t *testing.T) {
		require.NoError(t, w.SetString(ctx, "blank", ""))
		_, ok, err := w.GetString(ctx, "blank")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, w.SetString(ctx, "gone", "x"))
		require.NoError(t, w.Delete(ctx, "gone"))
		_, ok, err := w.GetString(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, w.Delete(ctx, "gone"), "deleting a missing key is not an error")
	})

	t.Run("empty key", func(t *testing.T) {
		_, _, err := w.GetString(ctx, "")
		assert.True(t, errors.Is(err, ErrEmptyKey))
		assert.ErrorIs(t, w.SetString(ctx, "", "x"), ErrEmptyKey)
	})

	t.Run("oversized value", func(t *testing.T) {
		err := w.SetString(ctx, "big", strings.Repeat("x", DefaultMaxValueBytes+1))
		assert.Error(t, err)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runWriterContract(t, NewMemoryStore())
}
