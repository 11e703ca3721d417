package quota

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tutorgate/internal/core"
	"tutorgate/internal/storage"
)

func newTestManager(t *testing.T, limits map[core.FeatureType]Limits) *Manager {
	t.Helper()
	m := NewManager(NewMemoryStore(), limits)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCheckUnlimitedFeature(t *testing.T) {
	m := newTestManager(t, map[core.FeatureType]Limits{})

	result, err := m.Check(context.Background(), "user-1", core.FeatureChat)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Allowed {
		t.Error("expected unlimited feature to be allowed")
	}
}

func TestCheckRequestLimit(t *testing.T) {
	limits := map[core.FeatureType]Limits{
		core.FeatureChat: {MaxRequests: 3},
	}
	m := newTestManager(t, limits)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := m.Check(ctx, "user-1", core.FeatureChat)
		if err != nil {
			t.Fatalf("Check %d failed: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("Check %d: expected allowed", i)
		}
		if got, want := result.RemainingRequests, int64(3-i); got != want {
			t.Errorf("Check %d: RemainingRequests = %d, want %d", i, got, want)
		}
		if err := m.Record(ctx, "user-1", core.FeatureChat, 100); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	result, err := m.Check(ctx, "user-1", core.FeatureChat)
	if err != nil {
		t.Fatalf("Check after limit failed: %v", err)
	}
	if result.Allowed {
		t.Error("expected deny after request limit reached")
	}
	if result.RemainingRequests != 0 {
		t.Errorf("RemainingRequests = %d, want 0", result.RemainingRequests)
	}
	if result.ResetAt.IsZero() {
		t.Error("expected ResetAt to be set on deny")
	}
}

func TestCheckTokenLimit(t *testing.T) {
	limits := map[core.FeatureType]Limits{
		core.FeatureCourseTutor: {MaxTokens: 1000},
	}
	m := newTestManager(t, limits)
	ctx := context.Background()

	if err := m.Record(ctx, "user-1", core.FeatureCourseTutor, 999); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	result, err := m.Check(ctx, "user-1", core.FeatureCourseTutor)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed at 999/1000 tokens")
	}
	if result.RemainingTokens != 1 {
		t.Errorf("RemainingTokens = %d, want 1", result.RemainingTokens)
	}

	if err := m.Record(ctx, "user-1", core.FeatureCourseTutor, 1); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	result, err = m.Check(ctx, "user-1", core.FeatureCourseTutor)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Allowed {
		t.Error("expected deny at 1000/1000 tokens")
	}
}

func TestQuotaIsolatedPerUserAndFeature(t *testing.T) {
	limits := map[core.FeatureType]Limits{
		core.FeatureChat:          {MaxRequests: 1},
		core.FeatureQuizGenerator: {MaxRequests: 1},
	}
	m := newTestManager(t, limits)
	ctx := context.Background()

	if err := m.Record(ctx, "user-1", core.FeatureChat, 50); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Same feature, other user.
	result, err := m.Check(ctx, "user-2", core.FeatureChat)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Allowed {
		t.Error("user-2 should not share user-1's quota")
	}

	// Same user, other feature.
	result, err = m.Check(ctx, "user-1", core.FeatureQuizGenerator)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Allowed {
		t.Error("quiz_generator should not share chat's quota")
	}
}

func TestWindowRollover(t *testing.T) {
	limits := map[core.FeatureType]Limits{
		core.FeatureChat: {MaxRequests: 1},
	}
	m := NewManager(NewMemoryStore(), limits)
	defer m.Close()

	current := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	m.now = func() time.Time { return current }
	ctx := context.Background()

	if err := m.Record(ctx, "user-1", core.FeatureChat, 10); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	result, err := m.Check(ctx, "user-1", core.FeatureChat)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected deny before rollover")
	}
	wantReset := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if !result.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", result.ResetAt, wantReset)
	}

	// Cross midnight UTC: counters start fresh.
	current = time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
	result, err = m.Check(ctx, "user-1", core.FeatureChat)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allow after window rollover")
	}
	if result.RemainingRequests != 1 {
		t.Errorf("RemainingRequests = %d, want 1", result.RemainingRequests)
	}
}

func TestConcurrentRecordNoLostUpdates(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			st, err := storage.NewSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "quota.db")})
			if err != nil {
				t.Fatalf("failed to open sqlite: %v", err)
			}
			t.Cleanup(func() { st.Close() })
			qs, err := NewSQLiteStore(st.SQLiteDB())
			if err != nil {
				t.Fatalf("failed to create store: %v", err)
			}
			return qs
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			m := NewManager(store, map[core.FeatureType]Limits{
				core.FeatureChat: {MaxRequests: 1000},
			})
			defer m.Close()
			ctx := context.Background()

			const n = 50
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- m.Record(ctx, "user-1", core.FeatureChat, 10)
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("Record failed: %v", err)
				}
			}

			record, err := store.Get(ctx, "user-1", core.FeatureChat, time.Now().UTC().Truncate(24*time.Hour))
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if record == nil {
				t.Fatal("expected a record after increments")
			}
			if record.RequestCount != n {
				t.Errorf("RequestCount = %d, want %d", record.RequestCount, n)
			}
			if record.TokenCount != n*10 {
				t.Errorf("TokenCount = %d, want %d", record.TokenCount, n*10)
			}
		})
	}
}

func TestGetAbsentRecord(t *testing.T) {
	store := NewMemoryStore()
	record, err := store.Get(context.Background(), "nobody", core.FeatureChat, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record != nil {
		t.Errorf("expected nil record, got %+v", record)
	}
}
