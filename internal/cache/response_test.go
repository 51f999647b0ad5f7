package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecoach-platform/tradecoach/internal/provider"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *ResponseStore) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return s, NewResponseStore(rdb, time.Hour)
}

func TestResponseStore_PutGet(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	store.Put(ctx, 42, "fp1", "RSI measures momentum.")

	reply, ok := store.Get(ctx, 42, "fp1")
	require.True(t, ok)
	assert.Equal(t, "RSI measures momentum.", reply)
}

func TestResponseStore_MissIsSilent(t *testing.T) {
	_, store := setupStore(t)

	reply, ok := store.Get(context.Background(), 42, "nope")
	assert.False(t, ok)
	assert.Empty(t, reply)
}

func TestResponseStore_ScopedPerUser(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	store.Put(ctx, 1, "fp1", "user one's reply")

	_, ok := store.Get(ctx, 2, "fp1")
	assert.False(t, ok, "another user must not see the cached reply")
}

func TestResponseStore_TTLExpiry(t *testing.T) {
	s, store := setupStore(t)
	ctx := context.Background()

	store.Put(ctx, 42, "fp1", "short-lived")
	_, ok := store.Get(ctx, 42, "fp1")
	require.True(t, ok)

	s.FastForward(time.Hour + time.Second)

	_, ok = store.Get(ctx, 42, "fp1")
	assert.False(t, ok)
}

func TestResponseStore_OverwriteLastWriteWins(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	store.Put(ctx, 42, "fp1", "first")
	store.Put(ctx, 42, "fp1", "second")

	reply, ok := store.Get(ctx, 42, "fp1")
	require.True(t, ok)
	assert.Equal(t, "second", reply)
}

func TestResponseStore_MalformedEntryIsMiss(t *testing.T) {
	s, store := setupStore(t)

	require.NoError(t, s.Set("ai_response:42:fp1", "not-json"))

	_, ok := store.Get(context.Background(), 42, "fp1")
	assert.False(t, ok)
}

func TestResponseStore_StoreErrorIsMiss(t *testing.T) {
	s, store := setupStore(t)
	ctx := context.Background()

	s.SetError("connection refused")

	_, ok := store.Get(ctx, 42, "fp1")
	assert.False(t, ok)

	// Put must not panic or surface the error either.
	store.Put(ctx, 42, "fp1", "reply")
}

func TestFingerprint_Deterministic(t *testing.T) {
	msgs := []provider.Message{
		{Role: "user", Content: "What is RSI?"},
		{Role: "assistant", Content: "A momentum oscillator."},
		{Role: "user", Content: "When is it overbought?"},
	}

	assert.Equal(t, Fingerprint(msgs), Fingerprint(msgs))
}

func TestFingerprint_SensitiveToContentRoleAndOrder(t *testing.T) {
	base := []provider.Message{
		{Role: "user", Content: "What is RSI?"},
		{Role: "assistant", Content: "A momentum oscillator."},
	}
	fp := Fingerprint(base)

	contentChanged := []provider.Message{
		{Role: "user", Content: "What is MACD?"},
		{Role: "assistant", Content: "A momentum oscillator."},
	}
	assert.NotEqual(t, fp, Fingerprint(contentChanged))

	roleChanged := []provider.Message{
		{Role: "assistant", Content: "What is RSI?"},
		{Role: "user", Content: "A momentum oscillator."},
	}
	assert.NotEqual(t, fp, Fingerprint(roleChanged))

	reordered := []provider.Message{
		{Role: "assistant", Content: "A momentum oscillator."},
		{Role: "user", Content: "What is RSI?"},
	}
	assert.NotEqual(t, fp, Fingerprint(reordered))
}
