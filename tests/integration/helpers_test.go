//go:build integration

package integration

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tutorgate/internal/aicache"
	"tutorgate/internal/core"
	"tutorgate/internal/providers"
	"tutorgate/internal/providers/mock"
	"tutorgate/internal/quota"
	"tutorgate/internal/server"
	"tutorgate/internal/service"
	"tutorgate/internal/storage"
	"tutorgate/internal/usage"
)

// Fixture is a full service stack over a real SQLite database, fronted by
// an httptest server.
type Fixture struct {
	ServerURL string
	Storage   storage.Storage
	Adapter   *mock.Adapter
	Service   *service.Service

	httpServer *httptest.Server
}

// FixtureConfig tunes what the fixture enables.
type FixtureConfig struct {
	MasterKey    string
	CacheEnabled bool
	QuotaLimits  map[core.FeatureType]quota.Limits
}

// SetupFixture builds the stack in production order: storage, stores,
// service, HTTP server. The database lives in t.TempDir.
func SetupFixture(t *testing.T, cfg FixtureConfig) *Fixture {
	t.Helper()

	st, err := storage.NewSQLite(storage.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "tutorgate.db"),
	})
	require.NoError(t, err, "sqlite storage")

	var cache *aicache.Cache
	if cfg.CacheEnabled {
		cacheStore, err := aicache.NewSQLiteStore(st.SQLiteDB())
		require.NoError(t, err, "cache store")
		cache = aicache.New(cacheStore, nil)
	}

	quotaStore, err := quota.NewSQLiteStore(st.SQLiteDB())
	require.NoError(t, err, "quota store")

	usageStore, err := usage.NewSQLiteStore(st.SQLiteDB(), 0)
	require.NoError(t, err, "usage store")
	reader, err := usage.NewSQLiteReader(st.SQLiteDB())
	require.NoError(t, err, "usage reader")

	adapter := mock.New()
	svc := service.New(
		providers.NewRegistry(adapter),
		cache,
		quota.NewManager(quotaStore, cfg.QuotaLimits),
		usage.NewLogger(usageStore, usage.Config{Enabled: true, BufferSize: 100}),
		reader,
		service.Config{
			Features: map[core.FeatureType]service.FeatureConfig{
				core.FeatureChat: {
					Provider:     core.ProviderMock,
					Model:        "mock-model",
					MaxTokens:    256,
					CacheEnabled: cfg.CacheEnabled,
				},
				core.FeatureQuizGenerator: {
					Provider:     core.ProviderMock,
					Model:        "mock-model",
					MaxTokens:    1024,
					CacheEnabled: cfg.CacheEnabled,
				},
			},
		},
	)

	srv := server.New(svc, &server.Config{MasterKey: cfg.MasterKey})
	httpServer := httptest.NewServer(srv)

	f := &Fixture{
		ServerURL:  httpServer.URL,
		Storage:    st,
		Adapter:    adapter,
		Service:    svc,
		httpServer: httpServer,
	}
	t.Cleanup(func() {
		httpServer.Close()
		_ = st.Close()
	})
	return f
}

// FlushUsage flushes buffered usage entries so database assertions see them.
// The service stays usable for reads afterwards.
func (f *Fixture) FlushUsage(t *testing.T) {
	t.Helper()
	require.NoError(t, f.Service.Close(), "flushing usage")
}
