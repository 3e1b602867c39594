package credentials

import (
	"context"
	"path/filepath"
	"testing"
)

func TestUsageRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	recorder, err := OpenUsageRecorder(path, nil)
	if err != nil {
		t.Fatalf("OpenUsageRecorder() error = %v", err)
	}

	recorder.Register([]string{"sk-1", "sk-2"})
	recorder.Touch("sk-1")
	recorder.Touch("sk-1")
	recorder.Touch("sk-3")

	// Close flushes the queue; reopen to read what was written.
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenUsageRecorder(path, nil)
	if err != nil {
		t.Fatalf("OpenUsageRecorder() reopen error = %v", err)
	}
	defer reopened.Close()

	ctx := context.Background()
	tests := []struct {
		key       string
		wantCount int64
		wantNil   bool
	}{
		{key: "sk-1", wantCount: 2},
		{key: "sk-2", wantCount: 0},
		{key: "sk-3", wantCount: 1},
		{key: "sk-4", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			u, err := reopened.Get(ctx, tt.key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if tt.wantNil {
				if u != nil {
					t.Errorf("Get() = %+v, want nil", u)
				}
				return
			}
			if u == nil {
				t.Fatal("Get() = nil, want usage")
			}
			if u.Count != tt.wantCount {
				t.Errorf("Count = %d, want %d", u.Count, tt.wantCount)
			}
			if u.CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}
		})
	}

	all, err := reopened.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("All() returned %d keys, want 3", len(all))
	}
}

func TestUsageRecorder_EmptyPath(t *testing.T) {
	if _, err := OpenUsageRecorder("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStore_RecordsUsage(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "usage.db")

	store, err := Open(context.Background(), Options{
		InvalidFile: filepath.Join(dir, "invalid.json"),
		Source:      map[string][]string{"sk-1": {"c1"}},
		UsageDB:     dbPath,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	resolver := NewResolver(store)
	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), "sk-1"); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(context.Background(), Options{
		InvalidFile: filepath.Join(dir, "invalid.json"),
		Source:      map[string][]string{"sk-1": {"c1"}},
		UsageDB:     dbPath,
	})
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	defer reopened.Close()

	records, err := reopened.Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 1 || records[0].UsageCount != 3 {
		t.Errorf("Records() = %+v, want sk-1 with 3 uses", records)
	}
}
