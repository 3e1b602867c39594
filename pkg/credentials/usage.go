package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Usage is the durable part of an API key record.
type Usage struct {
	Key        string
	CreatedAt  time.Time
	LastUsedAt time.Time
	Count      int64
}

// usageQueueSize bounds pending usage increments. Increments beyond it are
// dropped and counted rather than blocking a request.
const usageQueueSize = 1024

// UsageRecorder stores per-key creation time and usage counts in SQLite.
// Increments are queued and written by a single goroutine so the request path
// never waits on the database.
type UsageRecorder struct {
	db     *sql.DB
	logger *slog.Logger

	registerStmt *sql.Stmt
	touchStmt    *sql.Stmt
	getStmt      *sql.Stmt
	listStmt     *sql.Stmt

	queue     chan usageOp
	done      chan struct{}
	mu        sync.RWMutex
	dropped   atomic.Int64
	closed    bool
	closeOnce sync.Once
}

type usageOp struct {
	key      string
	register bool
	at       time.Time
}

// OpenUsageRecorder opens or creates the usage database at path.
func OpenUsageRecorder(path string, logger *slog.Logger) (*UsageRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, 5000)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	r := &UsageRecorder{
		db:     db,
		logger: logger,
		queue:  make(chan usageOp, usageQueueSize),
		done:   make(chan struct{}),
	}

	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := r.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go r.writeLoop()

	return r, nil
}

func (r *UsageRecorder) initSchema() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS api_key_usage (
		api_key TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0
	);
	`)
	return err
}

func (r *UsageRecorder) prepareStatements() error {
	var err error

	r.registerStmt, err = r.db.Prepare(`
		INSERT INTO api_key_usage (api_key, created_at) VALUES (?, ?)
		ON CONFLICT (api_key) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare register statement: %w", err)
	}

	r.touchStmt, err = r.db.Prepare(`
		INSERT INTO api_key_usage (api_key, created_at, last_used_at, usage_count) VALUES (?, ?, ?, 1)
		ON CONFLICT (api_key) DO UPDATE SET
			usage_count = usage_count + 1,
			last_used_at = excluded.last_used_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare touch statement: %w", err)
	}

	r.getStmt, err = r.db.Prepare(`
		SELECT api_key, created_at, last_used_at, usage_count FROM api_key_usage WHERE api_key = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	r.listStmt, err = r.db.Prepare(`
		SELECT api_key, created_at, last_used_at, usage_count FROM api_key_usage
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	return nil
}

// Register records a creation time for keys not seen before.
func (r *UsageRecorder) Register(keys []string) {
	now := time.Now()
	for _, k := range keys {
		r.enqueue(usageOp{key: k, register: true, at: now})
	}
}

// Touch counts one use of key.
func (r *UsageRecorder) Touch(key string) {
	r.enqueue(usageOp{key: key, at: time.Now()})
}

func (r *UsageRecorder) enqueue(op usageOp) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- op:
	default:
		r.dropped.Add(1)
	}
}

func (r *UsageRecorder) writeLoop() {
	defer close(r.done)
	for op := range r.queue {
		var err error
		if op.register {
			_, err = r.registerStmt.Exec(op.key, op.at.Unix())
		} else {
			_, err = r.touchStmt.Exec(op.key, op.at.Unix(), op.at.Unix())
		}
		if err != nil {
			r.logger.Warn("failed to record key usage", "api_key", op.key, "error", err)
		}
	}
}

// Get returns usage for key, or nil if the key was never recorded.
func (r *UsageRecorder) Get(ctx context.Context, key string) (*Usage, error) {
	var (
		u                   Usage
		created, lastUsedAt int64
	)
	err := r.getStmt.QueryRowContext(ctx, key).Scan(&u.Key, &created, &lastUsedAt, &u.Count)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	u.CreatedAt = time.Unix(created, 0)
	if lastUsedAt > 0 {
		u.LastUsedAt = time.Unix(lastUsedAt, 0)
	}
	return &u, nil
}

// All returns usage for every recorded key.
func (r *UsageRecorder) All(ctx context.Context) (map[string]Usage, error) {
	rows, err := r.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Usage)
	for rows.Next() {
		var (
			u                   Usage
			created, lastUsedAt int64
		)
		if err := rows.Scan(&u.Key, &created, &lastUsedAt, &u.Count); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		u.CreatedAt = time.Unix(created, 0)
		if lastUsedAt > 0 {
			u.LastUsedAt = time.Unix(lastUsedAt, 0)
		}
		out[u.Key] = u
	}
	return out, rows.Err()
}

// Dropped returns how many increments were discarded because the queue was full.
func (r *UsageRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close flushes queued writes and closes the database.
func (r *UsageRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		<-r.done

		for _, stmt := range []*sql.Stmt{r.registerStmt, r.touchStmt, r.getStmt, r.listStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = r.db.Close()
	})
	return err
}
