//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorgate/internal/aicache"
	"tutorgate/internal/core"
	"tutorgate/internal/providers"
	"tutorgate/internal/providers/mock"
	"tutorgate/internal/quota"
	"tutorgate/internal/service"
	"tutorgate/internal/usage"
)

func postComplete(t *testing.T, url, userID, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/v1/complete", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeCompletion(t *testing.T, resp *http.Response) core.CompletionResponse {
	t.Helper()
	defer resp.Body.Close()
	var out core.CompletionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCompleteLifecycle_SQLite(t *testing.T) {
	fixture := SetupFixture(t, FixtureConfig{CacheEnabled: true})

	body := `{"prompt":"explain mitosis","feature_type":"chat"}`

	resp := postComplete(t, fixture.ServerURL, "student-1", body, map[string]string{
		"X-Request-ID": "req-lifecycle-1",
	})
	require.Equal(t, 200, resp.StatusCode)
	first := decodeCompletion(t, resp)
	assert.False(t, first.CacheHit, "first call should miss")
	assert.Greater(t, first.TokensUsed.Total, 0, "mock reports usage")

	resp = postComplete(t, fixture.ServerURL, "student-1", body, nil)
	require.Equal(t, 200, resp.StatusCode)
	second := decodeCompletion(t, resp)
	assert.True(t, second.CacheHit, "second identical call should hit")
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.CostCents, second.CostCents, "cost replayed from original")

	assert.Equal(t, 1, fixture.Adapter.CallCount(), "provider called once")

	// Flush before querying the database
	fixture.FlushUsage(t)

	rows, err := fixture.Storage.SQLiteDB().Query(
		`SELECT request_id, cache_hit FROM usage WHERE user_id = ? ORDER BY timestamp`, "student-1")
	require.NoError(t, err)
	defer rows.Close()

	var entries int
	var cacheHits int
	var firstRequestID string
	for rows.Next() {
		var requestID string
		var cacheHit bool
		require.NoError(t, rows.Scan(&requestID, &cacheHit))
		if entries == 0 {
			firstRequestID = requestID
		}
		if cacheHit {
			cacheHits++
		}
		entries++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 2, entries, "one entry per request")
	assert.Equal(t, 1, cacheHits, "exactly one cache hit entry")
	assert.Equal(t, "req-lifecycle-1", firstRequestID, "request ID captured from header")

	// Stats aggregate both entries
	stats, err := fixture.Service.UsageStats(context.Background(), "student-1", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalRequests)
	assert.InDelta(t, 0.5, stats.CacheHitRate, 0.001)
}

func TestQuotaPersistsAcrossManagers(t *testing.T) {
	limits := map[core.FeatureType]quota.Limits{
		core.FeatureChat: {MaxRequests: 1},
	}
	fixture := SetupFixture(t, FixtureConfig{QuotaLimits: limits})

	body := `{"prompt":"hello","feature_type":"chat"}`
	resp := postComplete(t, fixture.ServerURL, "student-1", body, nil)
	require.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()

	resp = postComplete(t, fixture.ServerURL, "student-1", body, nil)
	assert.Equal(t, 429, resp.StatusCode, "second request over limit")
	resp.Body.Close()

	// A fresh manager over the same database sees the recorded usage
	store, err := quota.NewSQLiteStore(fixture.Storage.SQLiteDB())
	require.NoError(t, err)
	fresh := quota.NewManager(store, limits)

	result, err := fresh.Check(context.Background(), "student-1", core.FeatureChat)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "usage survives manager restart")
}

func TestCacheSharedAcrossServiceInstances(t *testing.T) {
	fixture := SetupFixture(t, FixtureConfig{CacheEnabled: true})

	req := &core.CompletionRequest{Prompt: "define osmosis", FeatureType: core.FeatureChat}
	first, err := fixture.Service.Complete(context.Background(), "student-1", req)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	// Second service instance over the same database, with its own adapter
	cacheStore, err := aicache.NewSQLiteStore(fixture.Storage.SQLiteDB())
	require.NoError(t, err)
	quotaStore, err := quota.NewSQLiteStore(fixture.Storage.SQLiteDB())
	require.NoError(t, err)

	adapter2 := mock.New()
	svc2 := service.New(
		providers.NewRegistry(adapter2),
		aicache.New(cacheStore, nil),
		quota.NewManager(quotaStore, nil),
		&usage.NoopLogger{},
		nil,
		service.Config{
			Features: map[core.FeatureType]service.FeatureConfig{
				core.FeatureChat: {
					Provider: core.ProviderMock, Model: "mock-model",
					MaxTokens: 256, CacheEnabled: true,
				},
			},
		},
	)

	second, err := svc2.Complete(context.Background(), "student-2", req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit, "hit served from shared database")
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 0, adapter2.CallCount(), "second instance never calls the provider")
}

func TestMasterKeyProtectsAPI(t *testing.T) {
	fixture := SetupFixture(t, FixtureConfig{MasterKey: "integration-secret"})

	body := `{"prompt":"hello","feature_type":"chat"}`

	resp := postComplete(t, fixture.ServerURL, "student-1", body, nil)
	assert.Equal(t, 401, resp.StatusCode, "unauthenticated request rejected")
	resp.Body.Close()

	resp = postComplete(t, fixture.ServerURL, "student-1", body, map[string]string{
		"Authorization": "Bearer integration-secret",
	})
	assert.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()

	healthResp, err := http.Get(fixture.ServerURL + "/health")
	require.NoError(t, err)
	assert.Equal(t, 200, healthResp.StatusCode, "health stays public")
	healthResp.Body.Close()
}
