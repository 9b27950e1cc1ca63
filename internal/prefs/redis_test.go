package prefs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Contract(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, WithPrefix("test:prefs:"))
	defer store.Close()

	runWriterContract(t, store)
}

func TestRedisStore_UsesPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store := NewRedisStore(mr.Addr(), "", 0, WithPrefix("app:"))
	defer store.Close()

	require.NoError(t, store.SetString(context.Background(), MenuConfigKey, "[]"))
	assert.True(t, mr.Exists("app:"+MenuConfigKey), "value should live under the configured prefix")

	got, err := mr.Get("app:" + MenuConfigKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	store := NewRedisStore(addr, "", 0)
	defer store.Close()

	_, _, err = store.GetString(context.Background(), MenuConfigKey)
	assert.Error(t, err)
}
