package cache

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/driftcode/agentrunner/internal/agent"
)

func newTestCache(t *testing.T, threshold float64, maxEntries int) *Cache {
	t.Helper()
	cfg := Config{Path: ":memory:", Threshold: threshold, MaxEntries: maxEntries, Enabled: true}
	c, err := NewCache(cfg, NewDeterministicEmbedder(32), nil, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := newTestCache(t, DefaultThreshold, DefaultMaxEntries)

	chain, ok := c.Lookup(context.Background(), "do something")
	if ok || chain != nil {
		t.Fatalf("expected a miss on an empty cache, got %+v", chain)
	}
}

func TestStoreThenLookupExactTaskHits(t *testing.T) {
	c := newTestCache(t, DefaultThreshold, DefaultMaxEntries)
	ctx := context.Background()

	task := "add input validation to the signup form"
	chain := []agent.ToolInvocation{{Name: "read_file", Input: map[string]any{"path": "signup.go"}}}
	if err := c.Store(ctx, task, chain, []string{"signup.go"}, 0.05); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok := c.Lookup(ctx, task)
	if !ok || got == nil {
		t.Fatal("expected a hit for the exact stored task")
	}
	if got.TaskDescription != task {
		t.Errorf("unexpected matched task: %q", got.TaskDescription)
	}
	if got.HitCount != 1 {
		t.Errorf("expected hit_count 1 after first lookup, got %d", got.HitCount)
	}
	if got.CostUSD != 0.05 {
		t.Errorf("expected saved cost 0.05, got %f", got.CostUSD)
	}

	got2, ok := c.Lookup(ctx, task)
	if !ok {
		t.Fatal("expected a second hit")
	}
	if got2.HitCount != 2 {
		t.Errorf("expected hit_count 2 after second lookup, got %d", got2.HitCount)
	}
}

func TestLookupMissBelowThreshold(t *testing.T) {
	c := newTestCache(t, 1.01, DefaultMaxEntries)
	ctx := context.Background()

	if err := c.Store(ctx, "one task", nil, nil, 0); err != nil {
		t.Fatalf("Store: %v", err)
	}

	_, ok := c.Lookup(ctx, "a completely different task")
	if ok {
		t.Fatal("expected a miss when the best score cannot clear an unreachable threshold")
	}
}

func TestStoreEvictsLeastUsedAtCapacity(t *testing.T) {
	c := newTestCache(t, DefaultThreshold, 2)
	ctx := context.Background()

	if err := c.Store(ctx, "task one", nil, nil, 0); err != nil {
		t.Fatalf("Store task one: %v", err)
	}
	if err := c.Store(ctx, "task two", nil, nil, 0); err != nil {
		t.Fatalf("Store task two: %v", err)
	}

	// Give "task one" a hit so it outranks "task two" on hit_count.
	if _, ok := c.Lookup(ctx, "task one"); !ok {
		t.Fatal("expected task one to hit before eviction")
	}

	if err := c.Store(ctx, "task three", nil, nil, 0); err != nil {
		t.Fatalf("Store task three: %v", err)
	}

	if len(c.rows) != 2 {
		t.Fatalf("expected cache capped at 2 rows, got %d", len(c.rows))
	}
	for _, row := range c.rows {
		if row.taskDescription == "task two" {
			t.Error("expected the zero-hit row to be evicted, but task two survived")
		}
	}
}

func TestEncodeDecodeEmbeddingRoundTrips(t *testing.T) {
	vec := []float32{0.5, -0.25, 1.0, 0.0, -1.0}
	data := encodeEmbedding(vec)
	got := decodeEmbedding(data)

	if len(got) != len(vec) {
		t.Fatalf("expected %d components, got %d", len(vec), len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("component %d: got %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestDeterministicEmbedderIsStable(t *testing.T) {
	e := NewDeterministicEmbedder(16)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical embeddings for identical text, differed at %d: %v vs %v", i, a[i], b[i])
		}
	}

	if dotProduct(a, a) < 0.999 {
		t.Errorf("expected a normalised vector to have ~unit self dot product, got %f", dotProduct(a, a))
	}
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	cfg := Config{Enabled: false}
	c, err := NewCache(cfg, NewDeterministicEmbedder(8), nil, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	if err := c.Store(context.Background(), "task", nil, nil, 0); err != nil {
		t.Fatalf("Store on disabled cache should no-op, got error: %v", err)
	}
	if _, ok := c.Lookup(context.Background(), "task"); ok {
		t.Error("expected disabled cache to never hit")
	}
}

func TestCacheWithoutEmbedderIsDisabled(t *testing.T) {
	cfg := Config{Enabled: true}
	c, err := NewCache(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if c.enabled {
		t.Error("expected a nil embedder to force the cache disabled even when Enabled is true")
	}
}

func TestRetryOnLockedSucceedsAfterTransientLock(t *testing.T) {
	attempts := 0
	res, err := retryOnLocked(context.Background(), func() (sql.Result, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("database is locked")
		}
		return driver.RowsAffected(1), nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
	n, _ := res.RowsAffected()
	if n != 1 {
		t.Errorf("expected the successful result to be returned, got %d rows affected", n)
	}
}

func TestRetryOnLockedReturnsImmediatelyOnOtherErrors(t *testing.T) {
	attempts := 0
	_, err := retryOnLocked(context.Background(), func() (sql.Result, error) {
		attempts++
		return nil, errors.New("syntax error near SELECT")
	})
	if err == nil {
		t.Fatal("expected the non-lock error to surface")
	}
	if attempts != 1 {
		t.Errorf("expected no retries on a non-lock error, got %d attempts", attempts)
	}
}

func TestRetryOnLockedExhaustsAttemptsOnPersistentLock(t *testing.T) {
	attempts := 0
	_, err := retryOnLocked(context.Background(), func() (sql.Result, error) {
		attempts++
		return nil, errors.New("database is locked")
	})
	if err == nil {
		t.Fatal("expected a persistent lock to eventually return an error")
	}
	if attempts != maxWriteAttempts {
		t.Errorf("expected %d attempts, got %d", maxWriteAttempts, attempts)
	}
}
