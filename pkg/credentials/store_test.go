package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T, source map[string][]string) *Store {
	t.Helper()

	store, err := Open(context.Background(), Options{
		InvalidFile: filepath.Join(t.TempDir(), "data", "invalid_cookies.json"),
		Source:      source,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func readFileSet(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("file is not a JSON array: %v (%q)", err, data)
	}
	return out
}

func TestOpen_MissingFileIsEmptySet(t *testing.T) {
	store := openTestStore(t, map[string][]string{"sk-1": {"c1"}})

	if got := store.ListInvalid(); len(got) != 0 {
		t.Errorf("ListInvalid() = %v, want empty", got)
	}
	if !store.Snapshot().Has("sk-1") {
		t.Error("expected sk-1 in pool")
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for empty invalid file path")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "valid array", content: `["b","a"]`, want: []string{"a", "b"}},
		{name: "empty array", content: `[]`, want: []string{}},
		{name: "malformed", content: `{not json`, want: []string{}},
		{name: "wrong type", content: `{"a":1}`, want: []string{}},
		{name: "empty strings skipped", content: `["", "x"]`, want: []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := openTestStore(t, nil)
			if _, err := store.MarkInvalid("stale"); err != nil {
				t.Fatalf("MarkInvalid() error = %v", err)
			}

			if err := os.WriteFile(store.Path(), []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}
			if err := store.Load(context.Background()); err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if got := store.ListInvalid(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ListInvalid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarkInvalid(t *testing.T) {
	store := openTestStore(t, nil)

	added, err := store.MarkInvalid("cookie-a")
	if err != nil {
		t.Fatalf("MarkInvalid() error = %v", err)
	}
	if !added {
		t.Error("MarkInvalid() = false on first insert, want true")
	}

	added, err = store.MarkInvalid("cookie-a")
	if err != nil {
		t.Fatalf("MarkInvalid() error = %v", err)
	}
	if added {
		t.Error("MarkInvalid() = true on repeat insert, want false")
	}

	if got := readFileSet(t, store.Path()); !reflect.DeepEqual(got, []string{"cookie-a"}) {
		t.Errorf("persisted set = %v, want [cookie-a]", got)
	}

	if _, err := store.MarkInvalid(""); err == nil {
		t.Error("expected error for empty cookie")
	}
}

func TestMarkInvalid_FileFormat(t *testing.T) {
	store := openTestStore(t, nil)
	store.MarkInvalid("b")
	store.MarkInvalid("a")

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "[\n  \"a\",\n  \"b\"\n]"
	if string(data) != want {
		t.Errorf("file content = %q, want %q", data, want)
	}
}

func TestClearInvalid(t *testing.T) {
	store := openTestStore(t, nil)
	store.MarkInvalid("cookie-a")
	store.MarkInvalid("cookie-b")

	removed, err := store.ClearInvalid("cookie-a")
	if err != nil {
		t.Fatalf("ClearInvalid() error = %v", err)
	}
	if !removed {
		t.Error("ClearInvalid() = false for present cookie, want true")
	}
	for _, c := range store.ListInvalid() {
		if c == "cookie-a" {
			t.Error("cookie-a still listed after ClearInvalid")
		}
	}

	before, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	removed, err = store.ClearInvalid("never-added")
	if err != nil {
		t.Fatalf("ClearInvalid() error = %v", err)
	}
	if removed {
		t.Error("ClearInvalid() = true for absent cookie, want false")
	}
	if got := store.ListInvalid(); !reflect.DeepEqual(got, []string{"cookie-b"}) {
		t.Errorf("ListInvalid() = %v, want [cookie-b]", got)
	}

	after, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("file rewritten for absent cookie")
	}
}

func TestClearAllInvalid(t *testing.T) {
	store := openTestStore(t, nil)
	store.MarkInvalid("a")
	store.MarkInvalid("b")

	if err := store.ClearAllInvalid(); err != nil {
		t.Fatalf("ClearAllInvalid() error = %v", err)
	}
	if got := store.ListInvalid(); len(got) != 0 {
		t.Errorf("ListInvalid() = %v, want empty", got)
	}
	if got := readFileSet(t, store.Path()); len(got) != 0 {
		t.Errorf("persisted set = %v, want empty", got)
	}
}

func TestRotatePool_ExcludesInvalidCookies(t *testing.T) {
	store := openTestStore(t, map[string][]string{
		"sk-1": {"prefix::tok-1"},
		"sk-2": {"tok-2a", "tok-2b"},
		"sk-3": {"user::tok-3"},
	})

	store.MarkInvalid("prefix::tok-1")
	store.MarkInvalid("tok-2a")
	// The bearer part alone also excludes its compound cookie.
	store.MarkInvalid("tok-3")

	stats, err := store.RotatePool()
	if err != nil {
		t.Fatalf("RotatePool() error = %v", err)
	}

	want := PoolStats{Keys: 1, Cookies: 1, Dropped: 3, Emptied: 2}
	if stats != want {
		t.Errorf("RotatePool() = %+v, want %+v", stats, want)
	}

	pool := store.Snapshot()
	if pool.Has("sk-1") || pool.Has("sk-3") {
		t.Error("keys with only invalid cookies remain in pool")
	}
	if got := pool.Cookies("sk-2"); !reflect.DeepEqual(got, []string{"tok-2b"}) {
		t.Errorf("Cookies(sk-2) = %v, want [tok-2b]", got)
	}
}

func TestRotatePool_NeverAssignsInvalidCookie(t *testing.T) {
	source := make(map[string][]string)
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("sk-%d", i)
		source[key] = []string{fmt.Sprintf("c-%d", i), fmt.Sprintf("c-%d", (i+1)%20)}
	}
	store := openTestStore(t, source)

	for _, c := range []string{"c-3", "c-7", "c-11"} {
		store.MarkInvalid(c)
		store.RotatePool()

		pool := store.Snapshot()
		for _, key := range pool.Keys() {
			for _, got := range pool.Cookies(key) {
				if store.IsInvalid(got) {
					t.Fatalf("key %s assigned invalid cookie %s", key, got)
				}
			}
		}
	}
}

func TestStore_ConcurrentMarkInvalid(t *testing.T) {
	store := openTestStore(t, nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.MarkInvalid(fmt.Sprintf("cookie-%02d", i)); err != nil {
				t.Errorf("MarkInvalid() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(store.ListInvalid()); got != n {
		t.Errorf("in-memory set has %d cookies, want %d", got, n)
	}
	if got := len(readFileSet(t, store.Path())); got != n {
		t.Errorf("persisted set has %d cookies, want %d", got, n)
	}
}

func TestStore_SharedFileBetweenStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.json")
	source := map[string][]string{"sk-1": {"c1"}}

	gateway, err := Open(context.Background(), Options{InvalidFile: path, Source: source})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer gateway.Close()

	console, err := Open(context.Background(), Options{InvalidFile: path, Source: source})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer console.Close()

	if _, err := console.MarkInvalid("c1"); err != nil {
		t.Fatalf("MarkInvalid() error = %v", err)
	}

	if err := gateway.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if gateway.Snapshot().Has("sk-1") {
		t.Error("gateway still serves sk-1 after the console invalidated its cookie")
	}
}

func TestStore_MutationsKeepOtherStoresChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.json")
	source := map[string][]string{"sk-1": {"c1", "c2"}}

	gateway, err := Open(context.Background(), Options{InvalidFile: path, Source: source})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer gateway.Close()

	console, err := Open(context.Background(), Options{InvalidFile: path, Source: source})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer console.Close()

	if _, err := console.MarkInvalid("from-console"); err != nil {
		t.Fatalf("console MarkInvalid() error = %v", err)
	}
	if _, err := gateway.MarkInvalid("from-gateway"); err != nil {
		t.Fatalf("gateway MarkInvalid() error = %v", err)
	}

	want := []string{"from-console", "from-gateway"}
	if got := readFileSet(t, path); !reflect.DeepEqual(got, want) {
		t.Fatalf("persisted set = %v, want %v", got, want)
	}
	if got := gateway.ListInvalid(); !reflect.DeepEqual(got, want) {
		t.Errorf("gateway ListInvalid() = %v, want %v", got, want)
	}

	if _, err := console.MarkInvalid("c1"); err != nil {
		t.Fatalf("console MarkInvalid() error = %v", err)
	}
	removed, err := gateway.ClearInvalid("from-console")
	if err != nil {
		t.Fatalf("gateway ClearInvalid() error = %v", err)
	}
	if !removed {
		t.Error("gateway ClearInvalid() = false for a cookie the console added")
	}

	want = []string{"c1", "from-gateway"}
	if got := readFileSet(t, path); !reflect.DeepEqual(got, want) {
		t.Errorf("persisted set = %v, want %v", got, want)
	}
	// The console's c1 reached the gateway through its own mutation, so the
	// pool was rebuilt without it.
	if got := gateway.Snapshot().Cookies("sk-1"); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Errorf("gateway Cookies(sk-1) = %v, want [c2]", got)
	}
}

func TestStore_ConcurrentMutationsAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.json")

	stores := make([]*Store, 3)
	for i := range stores {
		s, err := Open(context.Background(), Options{InvalidFile: path})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer s.Close()
		stores[i] = s
	}

	const perStore = 10
	var wg sync.WaitGroup
	for i, s := range stores {
		for j := 0; j < perStore; j++ {
			wg.Add(1)
			go func(s *Store, cookie string) {
				defer wg.Done()
				if _, err := s.MarkInvalid(cookie); err != nil {
					t.Errorf("MarkInvalid() error = %v", err)
				}
			}(s, fmt.Sprintf("s%d-c%02d", i, j))
		}
	}
	wg.Wait()

	if got := len(readFileSet(t, path)); got != len(stores)*perStore {
		t.Errorf("persisted set has %d cookies, want %d", got, len(stores)*perStore)
	}
}

func TestQuarantine(t *testing.T) {
	store := openTestStore(t, map[string][]string{"sk-1": {"c1", "c2"}})

	added, err := store.Quarantine("c1")
	if err != nil {
		t.Fatalf("Quarantine() error = %v", err)
	}
	if !added {
		t.Error("Quarantine() = false on first insert, want true")
	}
	if got := store.Snapshot().Cookies("sk-1"); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Errorf("Cookies(sk-1) = %v, want [c2] without an explicit RotatePool", got)
	}

	resolver := NewResolver(store)
	for i := 0; i < 4; i++ {
		cred, err := resolver.Resolve(context.Background(), "sk-1")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cred.Cookie == "c1" {
			t.Fatalf("Resolve() #%d returned quarantined cookie", i+1)
		}
	}

	added, err = store.Quarantine("c1")
	if err != nil || added {
		t.Errorf("repeat Quarantine() = %v, %v; want false, nil", added, err)
	}

	if _, err := store.Quarantine("c2"); err != nil {
		t.Fatalf("Quarantine() error = %v", err)
	}
	if store.Snapshot().Has("sk-1") {
		t.Error("sk-1 still pooled with every cookie quarantined")
	}
}

func TestStore_ClosedRejectsMutations(t *testing.T) {
	store := openTestStore(t, nil)
	store.Close()

	if _, err := store.MarkInvalid("x"); err != ErrClosed {
		t.Errorf("MarkInvalid() error = %v, want ErrClosed", err)
	}
	if err := store.ClearAllInvalid(); err != ErrClosed {
		t.Errorf("ClearAllInvalid() error = %v, want ErrClosed", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

type recordingObserver struct {
	mu          sync.Mutex
	rotations   []PoolStats
	invalidated int
}

func (o *recordingObserver) PoolRotated(stats PoolStats, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rotations = append(o.rotations, stats)
}

func (o *recordingObserver) CookieInvalidated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalidated++
}

func TestStore_Observer(t *testing.T) {
	obs := &recordingObserver{}
	store, err := Open(context.Background(), Options{
		InvalidFile: filepath.Join(t.TempDir(), "invalid.json"),
		Source:      map[string][]string{"sk-1": {"c1"}},
		Observer:    obs,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	store.MarkInvalid("c1")
	store.MarkInvalid("c1")
	store.RotatePool()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.invalidated != 1 {
		t.Errorf("CookieInvalidated called %d times, want 1", obs.invalidated)
	}
	if len(obs.rotations) != 2 {
		t.Fatalf("PoolRotated called %d times, want 2", len(obs.rotations))
	}
	if obs.rotations[1].Keys != 0 {
		t.Errorf("second rotation Keys = %d, want 0", obs.rotations[1].Keys)
	}
}

func TestRecords(t *testing.T) {
	store := openTestStore(t, map[string][]string{
		"sk-b": {"b1"},
		"sk-a": {"a1", "a2", "a3"},
	})

	records, err := store.Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Records() returned %d records, want 2", len(records))
	}
	if records[0].Key != "sk-a" || records[0].Cookie != "a1" {
		t.Errorf("records[0] = %+v, want sk-a/a1", records[0])
	}
	if !reflect.DeepEqual(records[0].Standby, []string{"a2", "a3"}) {
		t.Errorf("records[0].Standby = %v, want [a2 a3]", records[0].Standby)
	}
}
