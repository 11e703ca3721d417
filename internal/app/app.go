// Package app assembles the orchestration layer from configuration:
// storage, cache, quota, usage tracking, provider adapters and the HTTP
// server, with ordered shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tutorgate/config"
	"tutorgate/internal/aicache"
	"tutorgate/internal/core"
	"tutorgate/internal/providers"
	"tutorgate/internal/providers/anthropic"
	"tutorgate/internal/providers/chatbase"
	"tutorgate/internal/providers/gemini"
	"tutorgate/internal/providers/mock"
	"tutorgate/internal/providers/openai"
	"tutorgate/internal/quota"
	"tutorgate/internal/server"
	"tutorgate/internal/service"
	"tutorgate/internal/storage"
	"tutorgate/internal/usage"
)

// App holds the assembled application and its shutdown order.
type App struct {
	cfg     *config.Config
	svc     *service.Service
	server  *server.Server
	storage storage.Storage // nil for the memory backend
	cache   *aicache.Cache  // nil when caching is disabled

	shutdownOnce sync.Once
	shutdownErr  error
}

// New wires the application from configuration. Construction order matters:
// storage first, then the stores built over it, then the service, then the
// HTTP surface.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	var st storage.Storage
	if cfg.Storage.Backend != "memory" {
		var err error
		st, err = storage.New(ctx, storageConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		a.storage = st
	}

	cache, err := buildCache(ctx, cfg, st)
	if err != nil {
		a.closePartial()
		return nil, err
	}
	a.cache = cache

	quotaStore, err := buildQuotaStore(st)
	if err != nil {
		a.closePartial()
		return nil, err
	}
	quotas := quota.NewManager(quotaStore, quotaLimits(cfg))

	usageLog, reader, err := buildUsage(cfg, st)
	if err != nil {
		a.closePartial()
		return nil, err
	}

	a.svc = service.New(buildRegistry(cfg), cache, quotas, usageLog, reader, service.Config{
		Features: serviceFeatures(cfg),
	})

	a.server = server.New(a.svc, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Server.MetricsEnabled,
		MetricsEndpoint: cfg.Server.MetricsEndpoint,
	})

	return a, nil
}

// Run starts the HTTP server and blocks until it stops.
func (a *App) Run() error {
	slog.Info("starting server", "port", a.cfg.Server.Port,
		"storage", a.cfg.Storage.Backend, "cache", cacheLabel(a.cfg))
	return a.server.Start(":" + a.cfg.Server.Port)
}

// Shutdown stops the server and releases resources in reverse construction
// order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		if err := a.server.Shutdown(ctx); err != nil {
			a.shutdownErr = err
		}
		// Flushes any buffered usage entries
		if err := a.svc.Close(); err != nil && a.shutdownErr == nil {
			a.shutdownErr = err
		}
		if a.cache != nil {
			if err := a.cache.Close(); err != nil && a.shutdownErr == nil {
				a.shutdownErr = err
			}
		}
		if a.storage != nil {
			if err := a.storage.Close(); err != nil && a.shutdownErr == nil {
				a.shutdownErr = err
			}
		}
	})
	return a.shutdownErr
}

// closePartial releases what exists when construction fails midway.
func (a *App) closePartial() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.storage != nil {
		_ = a.storage.Close()
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Type: cfg.Storage.Backend,
		SQLite: storage.SQLiteConfig{
			Path: cfg.Storage.SQLitePath,
		},
		PostgreSQL: storage.PostgreSQLConfig{
			URL: cfg.Storage.PostgresURL,
		},
		MongoDB: storage.MongoDBConfig{
			URL:      cfg.Storage.MongoURI,
			Database: cfg.Storage.MongoDatabase,
		},
	}
}

func buildCache(ctx context.Context, cfg *config.Config, st storage.Storage) (*aicache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	var store aicache.Store
	switch cfg.Cache.Backend {
	case "memory":
		store = aicache.NewMemoryStore()
	case "redis":
		s, err := aicache.NewRedisStore(aicache.RedisConfig{URL: cfg.Cache.RedisURL})
		if err != nil {
			return nil, fmt.Errorf("initializing redis cache: %w", err)
		}
		store = s
	case "storage":
		switch {
		case st == nil:
			store = aicache.NewMemoryStore()
		case st.Type() == storage.TypeSQLite:
			s, err := aicache.NewSQLiteStore(st.SQLiteDB())
			if err != nil {
				return nil, fmt.Errorf("initializing sqlite cache: %w", err)
			}
			store = s
		case st.Type() == storage.TypePostgreSQL:
			pool, ok := st.PostgreSQLPool().(*pgxpool.Pool)
			if !ok {
				return nil, fmt.Errorf("postgresql storage returned unexpected pool type")
			}
			s, err := aicache.NewPostgresStore(ctx, pool)
			if err != nil {
				return nil, fmt.Errorf("initializing postgresql cache: %w", err)
			}
			store = s
		default:
			// No document-store cache backend; responses are still served,
			// just never from cache across restarts
			slog.Warn("cache falling back to memory store", "storage", st.Type())
			store = aicache.NewMemoryStore()
		}
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	return aicache.New(store, cacheTTLs(cfg)), nil
}

func buildQuotaStore(st storage.Storage) (quota.Store, error) {
	if st == nil {
		return quota.NewMemoryStore(), nil
	}
	return quota.NewStoreFor(st)
}

func buildUsage(cfg *config.Config, st storage.Storage) (usage.LoggerInterface, usage.Reader, error) {
	if !cfg.Usage.Enabled {
		return &usage.NoopLogger{}, nil, nil
	}

	logCfg := usage.Config{
		Enabled:       true,
		BufferSize:    cfg.Usage.BufferSize,
		FlushInterval: time.Duration(cfg.Usage.FlushSeconds) * time.Second,
		RetentionDays: cfg.Usage.RetentionDays,
	}

	if st == nil {
		store := usage.NewMemoryStore()
		return usage.NewLogger(store, logCfg), store, nil
	}

	store, err := usage.NewStore(st, cfg.Usage.RetentionDays)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing usage store: %w", err)
	}
	reader, err := usage.NewReaderFor(st)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing usage reader: %w", err)
	}
	return usage.NewLogger(store, logCfg), reader, nil
}

func buildRegistry(cfg *config.Config) *providers.Registry {
	return providers.NewRegistry(
		openai.New(cfg.OpenAI.APIKey),
		anthropic.New(cfg.Anthropic.APIKey),
		gemini.New(cfg.Gemini.APIKey),
		chatbase.New(cfg.Chatbase.APIKey, cfg.Chatbase.ChatbotID),
		mock.New(),
	)
}

func serviceFeatures(cfg *config.Config) map[core.FeatureType]service.FeatureConfig {
	features := make(map[core.FeatureType]service.FeatureConfig, len(cfg.Features))
	for feature, fc := range cfg.Features {
		features[feature] = service.FeatureConfig{
			Provider:     core.Provider(fc.Provider),
			Model:        fc.Model,
			Temperature:  fc.Temperature,
			MaxTokens:    fc.MaxTokens,
			CacheEnabled: fc.CacheEnabled,
		}
	}
	return features
}

func quotaLimits(cfg *config.Config) map[core.FeatureType]quota.Limits {
	limits := make(map[core.FeatureType]quota.Limits, len(cfg.Features))
	for feature, fc := range cfg.Features {
		limits[feature] = quota.Limits{
			MaxRequests: fc.MaxRequestsPerDay,
			MaxTokens:   fc.MaxTokensPerDay,
		}
	}
	return limits
}

func cacheTTLs(cfg *config.Config) map[core.FeatureType]time.Duration {
	ttls := make(map[core.FeatureType]time.Duration)
	for feature, fc := range cfg.Features {
		if fc.CacheTTLSeconds > 0 {
			ttls[feature] = time.Duration(fc.CacheTTLSeconds) * time.Second
		}
	}
	return ttls
}

func cacheLabel(cfg *config.Config) string {
	if !cfg.Cache.Enabled {
		return "disabled"
	}
	return cfg.Cache.Backend
}
