// Package cache implements the Task Cache: a persistent, similarity-keyed
// store of previously successful tool chains, so a repeated or near-duplicate
// task can be matched to a known-good sequence of tool calls. The Agent Loop
// records a hit and still runs the task live; it does not replay the chain.
package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/driftcode/agentrunner/internal/agent"
)

// writeRetryInitial and writeRetryMax bound the exponential delay between
// SQLite write retries after losing a lock race against another process
// sharing the same cache database file. Three attempts at these settings top
// out under 500ms, well inside a single tool call.
const (
	writeRetryInitial = 50 * time.Millisecond
	writeRetryMax     = 200 * time.Millisecond
	maxWriteAttempts  = 3
)

// lockRetryDelay returns the delay before the given retry attempt (1-indexed),
// doubling each attempt up to writeRetryMax and adding up to 20% jitter so
// concurrent writers contending for the same lock don't retry in lockstep.
func lockRetryDelay(attempt int) time.Duration {
	delay := writeRetryInitial << uint(attempt-1)
	if delay > writeRetryMax {
		delay = writeRetryMax
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 5))
	return delay + jitter
}

// retryOnLocked retries fn up to maxWriteAttempts times when it fails with
// "database is locked", sleeping per lockRetryDelay between attempts. Any
// other error returns immediately: a bad query or constraint violation will
// never succeed on retry, so there is no reason to burn attempts on it the
// way a lock contention case would.
func retryOnLocked(ctx context.Context, fn func() (sql.Result, error)) (sql.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		if !isLockedError(err) {
			return nil, err
		}
		lastErr = err
		if attempt < maxWriteAttempts {
			timer := time.NewTimer(lockRetryDelay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil, lastErr
}

func isLockedError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "locked")
}

// DefaultThreshold is the minimum cosine similarity a candidate must clear
// to count as a cache hit.
const DefaultThreshold = 0.85

// DefaultMaxEntries bounds the number of rows the cache retains before
// evicting on store.
const DefaultMaxEntries = 1000

// Config configures a Cache.
type Config struct {
	Path       string
	Threshold  float64
	MaxEntries int
	Enabled    bool
}

// DefaultConfig returns the spec's default cache configuration, enabled.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, MaxEntries: DefaultMaxEntries, Enabled: true}
}

type cacheRow struct {
	id              int64
	taskDescription string
	toolChain       []agent.ToolInvocation
	filesModified   []string
	costUSD         float64
	hitCount        int
	embedding       []float32
}

// Cache is a singleton-per-process store. Exactly one writer runs at a time;
// readers may run concurrently with a writer provided the in-memory
// embedding matrix is read under the same lock (it is — the lock here is
// coarse, as the spec permits).
type Cache struct {
	mu        sync.Mutex
	db        *sql.DB
	embedder  Embedder
	trace     *agent.TraceRecorder
	logger    *slog.Logger
	threshold float64
	maxEntries int
	enabled   bool

	rows []*cacheRow
}

var _ agent.TaskCache = (*Cache)(nil)

// NewCache opens (or creates) the backing SQLite database at cfg.Path and
// rebuilds the in-memory index from its rows. embedder must be non-nil for
// an enabled cache; passing a nil embedder with cfg.Enabled is a disabled
// cache regardless of the flag, matching the spec's "disable, don't silently
// degrade" requirement for a missing embedder.
func NewCache(cfg Config, embedder Embedder, trace *agent.TraceRecorder, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}

	c := &Cache{
		embedder:   embedder,
		trace:      trace,
		logger:     logger,
		threshold:  cfg.Threshold,
		maxEntries: cfg.MaxEntries,
		enabled:    cfg.Enabled && embedder != nil,
	}

	if !cfg.Enabled {
		logger.Warn("task cache disabled by configuration")
		return c, nil
	}
	if embedder == nil {
		logger.Warn("task cache disabled: no embedder configured")
		return c, nil
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}
	c.db = db

	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := c.rebuildIndex(); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

func (c *Cache) init() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_chains (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_description TEXT NOT NULL,
			tool_chain TEXT NOT NULL,
			files_modified TEXT NOT NULL,
			cost_usd REAL NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 0,
			embedding BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("cache: create table: %w", err)
	}
	return nil
}

// rebuildIndex reloads every row from disk into the in-memory matrix. It is
// called once at startup so a crash between a write and the next lookup
// never leaves the index out of sync with the table.
func (c *Cache) rebuildIndex() error {
	rows, err := c.db.Query(`SELECT id, task_description, tool_chain, files_modified, cost_usd, hit_count, embedding FROM task_chains`)
	if err != nil {
		return fmt.Errorf("cache: rebuild index: %w", err)
	}
	defer rows.Close()

	var loaded []*cacheRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return err
		}
		loaded = append(loaded, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("cache: rebuild index: %w", err)
	}

	c.rows = loaded
	return nil
}

// Lookup embeds task and returns the single best-matching cached chain, if
// any entry clears the configured similarity threshold.
func (c *Cache) Lookup(ctx context.Context, task string) (*agent.CachedChain, bool) {
	if !c.enabled {
		return nil, false
	}

	queryVec, err := c.embedder.Embed(ctx, task)
	if err != nil {
		c.logger.Warn("cache: failed to embed lookup query", "error", err)
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.rows) == 0 {
		c.recordMiss(0, c.threshold)
		return nil, false
	}

	bestIdx := -1
	bestScore := float32(-1)
	for i, row := range c.rows {
		score := dotProduct(queryVec, row.embedding)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if float64(bestScore) < c.threshold {
		c.recordMiss(bestScore, c.threshold)
		return nil, false
	}

	row := c.rows[bestIdx]
	row.hitCount++
	if err := c.persistHitCount(ctx, row); err != nil {
		c.logger.Warn("cache: failed to persist hit count", "error", err)
	}

	if c.trace != nil {
		c.trace.Record(agent.EventCacheHit, map[string]any{
			"matched_task": row.taskDescription,
			"similarity":   bestScore,
			"hit_count":    row.hitCount,
			"saved_cost":   row.costUSD,
		})
	}

	return &agent.CachedChain{
		TaskDescription: row.taskDescription,
		ToolChain:       row.toolChain,
		FilesModified:   row.filesModified,
		CostUSD:         row.costUSD,
		HitCount:        row.hitCount,
	}, true
}

func (c *Cache) recordMiss(bestScore float32, threshold float64) {
	if c.trace != nil {
		c.trace.Record(agent.EventCacheMiss, map[string]any{
			"best_score": bestScore,
			"threshold":  threshold,
		})
	}
}

// Store embeds task and inserts a new row, evicting the least-used entry
// first if the cache is already at capacity. A disabled cache is a no-op.
func (c *Cache) Store(ctx context.Context, task string, chain []agent.ToolInvocation, filesModified []string, costUSD float64) error {
	if !c.enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.rows) >= c.maxEntries {
		if err := c.evictLeastUsedLocked(ctx); err != nil {
			return err
		}
	}

	vec, err := c.embedder.Embed(ctx, task)
	if err != nil {
		return fmt.Errorf("cache: embed task for store: %w", err)
	}

	toolChainJSON, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("cache: marshal tool chain: %w", err)
	}
	filesJSON, err := json.Marshal(filesModified)
	if err != nil {
		return fmt.Errorf("cache: marshal files modified: %w", err)
	}

	res, err := retryOnLocked(ctx, func() (sql.Result, error) {
		return c.db.ExecContext(ctx,
			`INSERT INTO task_chains (task_description, tool_chain, files_modified, cost_usd, hit_count, embedding) VALUES (?, ?, ?, ?, 0, ?)`,
			task, string(toolChainJSON), string(filesJSON), costUSD, encodeEmbedding(vec),
		)
	})
	if err != nil {
		return fmt.Errorf("cache: insert row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("cache: read inserted id: %w", err)
	}

	c.rows = append(c.rows, &cacheRow{
		id:              id,
		taskDescription: task,
		toolChain:       chain,
		filesModified:   filesModified,
		costUSD:         costUSD,
		embedding:       vec,
	})

	return nil
}

// evictLeastUsedLocked removes the row with the lowest hit_count, breaking
// ties by lowest id. Caller must hold c.mu.
func (c *Cache) evictLeastUsedLocked(ctx context.Context) error {
	if len(c.rows) == 0 {
		return nil
	}

	victimIdx := 0
	for i, row := range c.rows {
		v := c.rows[victimIdx]
		if row.hitCount < v.hitCount || (row.hitCount == v.hitCount && row.id < v.id) {
			victimIdx = i
		}
	}

	victim := c.rows[victimIdx]
	if _, err := retryOnLocked(ctx, func() (sql.Result, error) {
		return c.db.ExecContext(ctx, `DELETE FROM task_chains WHERE id = ?`, victim.id)
	}); err != nil {
		return fmt.Errorf("cache: evict row %d: %w", victim.id, err)
	}

	c.rows = append(c.rows[:victimIdx], c.rows[victimIdx+1:]...)
	return nil
}

func (c *Cache) persistHitCount(ctx context.Context, row *cacheRow) error {
	_, err := retryOnLocked(ctx, func() (sql.Result, error) {
		return c.db.ExecContext(ctx, `UPDATE task_chains SET hit_count = ? WHERE id = ?`, row.hitCount, row.id)
	})
	return err
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func scanRow(rows *sql.Rows) (*cacheRow, error) {
	var (
		id                                      int64
		taskDescription, toolChainJSON, filesJSON string
		costUSD                                 float64
		hitCount                                int
		embeddingBlob                           []byte
	)
	if err := rows.Scan(&id, &taskDescription, &toolChainJSON, &filesJSON, &costUSD, &hitCount, &embeddingBlob); err != nil {
		return nil, fmt.Errorf("cache: scan row: %w", err)
	}

	var toolChain []agent.ToolInvocation
	if err := json.Unmarshal([]byte(toolChainJSON), &toolChain); err != nil {
		return nil, fmt.Errorf("cache: unmarshal tool chain: %w", err)
	}
	var filesModified []string
	if err := json.Unmarshal([]byte(filesJSON), &filesModified); err != nil {
		return nil, fmt.Errorf("cache: unmarshal files modified: %w", err)
	}

	return &cacheRow{
		id:              id,
		taskDescription: taskDescription,
		toolChain:       toolChain,
		filesModified:   filesModified,
		costUSD:         costUSD,
		hitCount:        hitCount,
		embedding:       decodeEmbedding(embeddingBlob),
	}, nil
}

// dotProduct assumes both vectors are already L2-normalised, so the dot
// product is equal to cosine similarity.
func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return -1
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func encodeEmbedding(vec []float32) []byte {
	data := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		binary.LittleEndian.PutUint32(data[i*4:], bits)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
