package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Observer receives credential pool events. The metrics collector
// implements it.
type Observer interface {
	PoolRotated(stats PoolStats, invalid int)
	CookieInvalidated()
}

// Options configures a Store.
type Options struct {
	// InvalidFile is the JSON array of rejected cookies. Required.
	InvalidFile string

	// Source maps each API key to its configured cookies.
	Source map[string][]string

	// Watch reloads the invalid file when another process rewrites it.
	Watch bool

	// RotateSchedule is a cron expression for periodic reload and rotation.
	RotateSchedule string

	// UsageDB enables the SQLite usage recorder when non-empty.
	UsageDB string

	// Observer is notified of rotations and invalidations. Optional.
	Observer Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now is the clock used for pool timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Store owns the invalid-cookie set and the active pool.
//
// Mutations (Load, MarkInvalid, ClearInvalid, ClearAllInvalid, RotatePool)
// are serialized by writeMu so each read-modify-persist sequence completes
// before the next begins. Readers use mu or the atomic pool pointer and never
// wait on file I/O.
type Store struct {
	path     string
	source   map[string][]string
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	writeMu  sync.Mutex
	mu       sync.RWMutex
	invalid  map[string]struct{}
	lastHash [sha256.Size]byte

	pool atomic.Pointer[Pool]

	usage     *UsageRecorder
	watcher   *FileWatcher
	scheduler *Scheduler

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// Open creates a Store, loads the invalid file, builds the first pool, and
// starts the optional watcher, scheduler, and usage recorder.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.InvalidFile == "" {
		return nil, errors.New("invalid cookie file path cannot be empty")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	source := make(map[string][]string, len(opts.Source))
	for k, v := range opts.Source {
		source[k] = append([]string(nil), v...)
	}

	s := &Store{
		path:     opts.InvalidFile,
		source:   source,
		logger:   opts.Logger.With("component", "credentials.store"),
		observer: opts.Observer,
		now:      opts.Now,
		invalid:  make(map[string]struct{}),
	}

	if opts.UsageDB != "" {
		usage, err := OpenUsageRecorder(opts.UsageDB, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open usage database: %w", err)
		}
		s.usage = usage
	}

	if err := s.Load(ctx); err != nil {
		s.closeUsage()
		return nil, err
	}
	if _, err := s.RotatePool(); err != nil {
		s.closeUsage()
		return nil, err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if opts.Watch {
		watcher, err := NewFileWatcher(s.path, DefaultDebounceInterval, s.logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.watcher = watcher
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := watcher.Watch(bgCtx, func() error { return s.Reload(bgCtx) }); err != nil {
				s.logger.Error("invalid cookie watcher exited", "error", err)
			}
		}()
	}

	if opts.RotateSchedule != "" {
		s.scheduler = NewScheduler(s, opts.RotateSchedule, s.logger)
		if err := s.scheduler.Start(bgCtx); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close stops background work and closes the usage recorder. It is safe to
// call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		if s.scheduler != nil {
			s.scheduler.Stop()
		}
		if s.watcher != nil {
			if stopErr := s.watcher.Stop(); stopErr != nil {
				err = stopErr
			}
		}
		s.wg.Wait()
		if closeErr := s.closeUsage(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}

func (s *Store) closeUsage() error {
	if s.usage == nil {
		return nil
	}
	return s.usage.Close()
}

// Path returns the invalid cookie file path.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory invalid set with the file's content. A missing
// file or a malformed one yields an empty set; only other read errors are
// returned.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.loadLocked(ctx)
	return err
}

// loadLocked reads the file and reports whether the content differed from
// what this Store last read or wrote.
func (s *Store) loadLocked(ctx context.Context) (bool, error) {
	next, hash, err := s.readSet(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	changed := hash != s.lastHash
	s.invalid = next
	s.lastHash = hash
	s.mu.Unlock()

	return changed, nil
}

// readSet reads the invalid file into a fresh set. A missing or malformed
// file yields an empty set.
func (s *Store) readSet(ctx context.Context) (map[string]struct{}, [sha256.Size]byte, error) {
	cookies, raw, err := readInvalidFile(s.path)
	next := make(map[string]struct{}, len(cookies))

	switch {
	case err == nil:
		for _, c := range cookies {
			if c != "" {
				next[c] = struct{}{}
			}
		}
	case isNotExist(err):
		s.logger.DebugContext(ctx, "invalid cookie file not found, starting with empty set", "path", s.path)
	case isDecodeError(err):
		s.logger.WarnContext(ctx, "invalid cookie file is malformed, starting with empty set",
			"path", s.path,
			"error", err,
		)
	default:
		return nil, [sha256.Size]byte{}, fmt.Errorf("failed to read invalid cookie file %q: %w", s.path, err)
	}
	return next, contentHash(raw), nil
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// Reload re-reads the invalid file and rotates the pool when its content
// changed since this Store last read or wrote it.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	changed, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	stats := s.rotateLocked()
	s.logger.InfoContext(ctx, "invalid cookie file changed, pool rotated",
		"keys", stats.Keys,
		"cookies", stats.Cookies,
		"dropped", stats.Dropped,
	)
	return nil
}

// ListInvalid returns a sorted snapshot of the invalid set.
func (s *Store) ListInvalid() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.invalid))
	for c := range s.invalid {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// IsInvalid reports whether cookie, or its bearer part, is marked invalid.
func (s *Store) IsInvalid(cookie string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isInvalid(s.invalid, cookie)
}

// MarkInvalid adds cookie to the invalid set and persists it. It reports
// whether the cookie was newly added.
func (s *Store) MarkInvalid(cookie string) (bool, error) {
	return s.markInvalid(cookie, false)
}

// Quarantine marks cookie invalid and, when it was newly added, rotates the
// pool so the Resolver stops handing it out. The relay calls it for cookies
// the vendor rejected.
func (s *Store) Quarantine(cookie string) (bool, error) {
	return s.markInvalid(cookie, true)
}

func (s *Store) markInvalid(cookie string, rotate bool) (bool, error) {
	if cookie == "" {
		return false, errors.New("cookie cannot be empty")
	}

	added, count, err := s.mutate(func(set map[string]struct{}) bool {
		if _, exists := set[cookie]; exists {
			return false
		}
		set[cookie] = struct{}{}
		return true
	}, rotate)
	if err != nil || !added {
		return false, err
	}

	s.logger.Info("cookie marked invalid", "cookie", cookie, "invalid_count", count)
	if s.observer != nil {
		s.observer.CookieInvalidated()
	}
	return true, nil
}

// ClearInvalid removes cookie from the invalid set and persists the result.
// It reports whether the cookie was present; an absent cookie leaves both the
// set and the file untouched.
func (s *Store) ClearInvalid(cookie string) (bool, error) {
	removed, count, err := s.mutate(func(set map[string]struct{}) bool {
		if _, exists := set[cookie]; !exists {
			return false
		}
		delete(set, cookie)
		return true
	}, false)
	if err != nil || !removed {
		return false, err
	}

	s.logger.Info("cookie cleared from invalid set", "cookie", cookie, "invalid_count", count)
	return true, nil
}

// ClearAllInvalid empties the invalid set and persists an empty array.
func (s *Store) ClearAllInvalid() error {
	_, _, err := s.mutate(func(set map[string]struct{}) bool {
		clear(set)
		return true
	}, false)
	if err != nil {
		return err
	}

	s.logger.Info("invalid cookie set cleared")
	return nil
}

// mutate applies fn to the set currently on disk and writes the result back
// when fn reports a change. The file is re-read under writeMu and an
// advisory lock on a sibling ".lock" file, so changes made by another
// process sharing the file are kept rather than overwritten. The pool is
// rotated when rotate is set and fn changed the set, or when the file held
// changes this Store had not seen yet.
func (s *Store) mutate(fn func(set map[string]struct{}) bool, rotate bool) (bool, int, error) {
	if s.closed.Load() {
		return false, 0, ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	unlock, err := lockFile(s.path)
	if err != nil {
		return false, 0, err
	}
	defer unlock()

	set, hash, err := s.readSet(context.Background())
	if err != nil {
		return false, 0, err
	}

	s.mu.RLock()
	external := hash != s.lastHash
	s.mu.RUnlock()

	changed := fn(set)
	if changed {
		err = s.persistLocked(set)
	} else {
		s.mu.Lock()
		s.invalid = set
		s.lastHash = hash
		s.mu.Unlock()
	}
	if err != nil {
		return false, 0, err
	}

	if external || (rotate && changed) {
		s.rotateLocked()
	}
	return changed, len(set), nil
}

// RotatePool rebuilds the pool from the configured source, excluding every
// cookie in the invalid set, and publishes it atomically.
func (s *Store) RotatePool() (PoolStats, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.rotateLocked(), nil
}

func (s *Store) rotateLocked() PoolStats {
	s.mu.RLock()
	invalid := s.invalid
	invalidCount := len(invalid)
	pool, stats := newPool(s.source, invalid, s.now())
	s.mu.RUnlock()

	s.pool.Store(pool)

	if s.usage != nil {
		s.usage.Register(pool.Keys())
	}
	if s.observer != nil {
		s.observer.PoolRotated(stats, invalidCount)
	}

	s.logger.Debug("credential pool rotated",
		"keys", stats.Keys,
		"cookies", stats.Cookies,
		"dropped", stats.Dropped,
		"emptied", stats.Emptied,
	)
	return stats
}

// Snapshot returns the active pool.
func (s *Store) Snapshot() *Pool {
	return s.pool.Load()
}

// persistLocked writes next to disk and then installs it in memory. The
// caller holds writeMu. The in-memory set changes only after the file write
// succeeded.
func (s *Store) persistLocked(next map[string]struct{}) error {
	data, err := encodeInvalidSet(next)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.invalid = next
	s.lastHash = contentHash(data)
	s.mu.Unlock()
	return nil
}

// Record describes one pooled API key.
type Record struct {
	Key        string
	Cookie     string   // cookie the next Resolve will hand out
	Standby    []string // remaining cookies in rotation order
	CreatedAt  time.Time
	UsageCount int64
}

// Records returns the pool as records, enriched with usage data when the
// usage recorder is enabled.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	pool := s.Snapshot()
	keys := pool.Keys()

	var usage map[string]Usage
	if s.usage != nil {
		var err error
		usage, err = s.usage.All(ctx)
		if err != nil {
			return nil, err
		}
	}

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		e, _ := pool.lookup(key)
		start := int(e.next.Load() % uint64(len(e.cookies)))
		rec := Record{
			Key:       key,
			Cookie:    e.cookies[start],
			CreatedAt: pool.BuiltAt(),
		}
		for i := 1; i < len(e.cookies); i++ {
			rec.Standby = append(rec.Standby, e.cookies[(start+i)%len(e.cookies)])
		}
		if u, ok := usage[key]; ok {
			rec.CreatedAt = u.CreatedAt
			rec.UsageCount = u.Count
		}
		records = append(records, rec)
	}
	return records, nil
}

// recordUse counts a successful resolve for key.
func (s *Store) recordUse(key string) {
	if s.usage != nil {
		s.usage.Touch(key)
	}
}
