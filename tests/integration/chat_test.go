//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatData struct {
	Reply             string `json:"reply"`
	DailyQueriesUsed  int    `json:"daily_queries_used"`
	DailyQueriesLimit int    `json:"daily_queries_limit"`
	FromCache         bool   `json:"from_cache"`
}

func postChat(t *testing.T, env *TestEnv, token, content string) (*http.Response, chatData) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": content}},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/api/v1/chat", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope struct {
		Data chatData `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	return resp, envelope.Data
}

func flushRedis(t *testing.T, env *TestEnv) {
	t.Helper()
	ctx := context.Background()
	keys, err := env.RedisClient.Keys(ctx, "*").Result()
	require.NoError(t, err)
	if len(keys) > 0 {
		require.NoError(t, env.RedisClient.Del(ctx, keys...).Err())
	}
}

func TestChatFlow_FreeUserLifecycle(t *testing.T) {
	env := SetupTestEnv(t)
	flushRedis(t, env)
	token := AccessToken(t, env, 42, "free")
	callsBefore := env.Provider.calls.Load()

	// First call reaches upstream and charges one query.
	resp, data := postChat(t, env, token, "What is RSI?")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, env.Provider.reply, data.Reply)
	assert.False(t, data.FromCache)
	assert.Equal(t, 1, data.DailyQueriesUsed)
	assert.Equal(t, 5, data.DailyQueriesLimit)
	assert.Equal(t, callsBefore+1, env.Provider.calls.Load())

	// Immediate repeat comes from the cache, quota unchanged.
	resp, data = postChat(t, env, token, "What is RSI?")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, data.FromCache)
	assert.Equal(t, 1, data.DailyQueriesUsed)
	assert.Equal(t, callsBefore+1, env.Provider.calls.Load())

	// Four more distinct questions reach the ceiling.
	for i := 2; i <= 5; i++ {
		resp, data = postChat(t, env, token, fmt.Sprintf("Distinct question %d", i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, i, data.DailyQueriesUsed)
	}

	// The sixth distinct question is rejected with a 429.
	resp, _ = postChat(t, env, token, "A sixth distinct question")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestChatFlow_QueryCountReadOnly(t *testing.T) {
	env := SetupTestEnv(t)
	flushRedis(t, env)
	token := AccessToken(t, env, 77, "pro")

	req, err := http.NewRequest(http.MethodGet, env.Server.URL+"/api/v1/chat/query-count", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	for i := 0; i < 3; i++ {
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		var envelope struct {
			Data struct {
				Used  int `json:"daily_queries_used"`
				Limit int `json:"daily_queries_limit"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 0, envelope.Data.Used)
		assert.Equal(t, 100, envelope.Data.Limit)
	}
}

func TestChatFlow_ResetQuota(t *testing.T) {
	env := SetupTestEnv(t)
	flushRedis(t, env)
	token := AccessToken(t, env, 88, "free")

	resp, data := postChat(t, env, token, "Explain position sizing")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, data.DailyQueriesUsed)

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/api/v1/chat/reset-quota", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resetResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resetResp.Body.Close()
	require.Equal(t, http.StatusOK, resetResp.StatusCode)

	// A new distinct question starts from a fresh counter.
	resp, data = postChat(t, env, token, "Explain stop losses")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, data.DailyQueriesUsed)
}

func TestChatFlow_Unauthenticated(t *testing.T) {
	env := SetupTestEnv(t)

	body := bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`)
	resp, err := http.Post(env.Server.URL+"/api/v1/chat", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	env := SetupTestEnv(t)

	resp, err := http.Get(env.Server.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.Server.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
