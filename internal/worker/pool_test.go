package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecoach-platform/tradecoach/internal/cache"
	"github.com/tradecoach-platform/tradecoach/internal/provider"
)

type fakeProvider struct {
	reply string
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt string, history []provider.Message) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func setupPool(t *testing.T, prov provider.Provider, workers, queueSize int) (*Pool, *cache.ResponseStore) {
	t.Helper()
	s := miniredis.RunT(t)
	store := cache.NewResponseStore(redis.NewClient(&redis.Options{Addr: s.Addr()}), time.Hour)
	p := NewPool(prov, store, workers, queueSize)
	t.Cleanup(p.Stop)
	return p, store
}

func task(fp string) Task {
	return Task{
		RequestID:    "req-1",
		UserID:       42,
		Fingerprint:  fp,
		SystemPrompt: "You are a trading assistant.",
		Messages:     []provider.Message{{Role: "user", Content: "What is RSI?"}},
	}
}

func TestPool_ExecutesTask(t *testing.T) {
	prov := &fakeProvider{reply: "RSI measures momentum."}
	p, store := setupPool(t, prov, 2, 8)

	h, err := p.Submit(task("fp1"))
	require.NoError(t, err)

	res, err := h.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "RSI measures momentum.", res.Reply)
	assert.False(t, res.FromCache)

	// The reply was written through to the cache.
	reply, ok := store.Get(context.Background(), 42, "fp1")
	require.True(t, ok)
	assert.Equal(t, "RSI measures momentum.", reply)
}

func TestPool_AbsorbsDuplicateViaCacheCheck(t *testing.T) {
	prov := &fakeProvider{reply: "fresh reply"}
	p, store := setupPool(t, prov, 1, 8)

	store.Put(context.Background(), 42, "fp1", "already computed")

	h, err := p.Submit(task("fp1"))
	require.NoError(t, err)

	res, err := h.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "already computed", res.Reply)
	assert.Equal(t, int64(0), prov.calls.Load(), "cached task must not call upstream")
}

func TestPool_AwaitTimeoutLeavesTaskRunning(t *testing.T) {
	prov := &fakeProvider{reply: "slow reply", delay: 100 * time.Millisecond}
	p, store := setupPool(t, prov, 1, 8)

	h, err := p.Submit(task("fp1"))
	require.NoError(t, err)

	_, err = h.Await(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrDispatchTimeout)

	// The task keeps running past the bounded wait and still populates
	// the cache for a future request.
	assert.Eventually(t, func() bool {
		_, ok := store.Get(context.Background(), 42, "fp1")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestPool_UpstreamErrorSurfacesOnAwait(t *testing.T) {
	upstreamErr := errors.New("model overloaded")
	prov := &fakeProvider{err: upstreamErr}
	p, _ := setupPool(t, prov, 1, 8)

	h, err := p.Submit(task("fp1"))
	require.NoError(t, err)

	_, err = h.Await(context.Background(), time.Second)
	assert.ErrorIs(t, err, upstreamErr)
}

func TestPool_QueueFull(t *testing.T) {
	prov := &fakeProvider{reply: "ok", delay: 200 * time.Millisecond}
	p, _ := setupPool(t, prov, 1, 1)

	// First task occupies the worker, second fills the queue.
	_, err := p.Submit(task("fp1"))
	require.NoError(t, err)
	// The worker may not have picked up fp1 yet; keep submitting until
	// the queue itself rejects.
	var full bool
	for i := 0; i < 3; i++ {
		if _, err := p.Submit(task("fp-extra")); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full, "a bounded queue must reject when at capacity")
}

func TestPool_SubmitAfterStop(t *testing.T) {
	prov := &fakeProvider{reply: "ok"}
	s := miniredis.RunT(t)
	store := cache.NewResponseStore(redis.NewClient(&redis.Options{Addr: s.Addr()}), time.Hour)
	p := NewPool(prov, store, 1, 4)

	p.Stop()
	assert.False(t, p.Healthy())

	_, err := p.Submit(task("fp1"))
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestPool_AwaitHonorsCallerContext(t *testing.T) {
	prov := &fakeProvider{reply: "slow", delay: 200 * time.Millisecond}
	p, _ := setupPool(t, prov, 1, 8)

	h, err := p.Submit(task("fp1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.Await(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
