package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/cursorgate/pkg/cli"
	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/credentials"
)

type consoleHarness struct {
	*console
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newConsole(t *testing.T, stdin string) consoleHarness {
	t.Helper()

	cfg := config.MinimalConfig()
	cfg.Credentials.InvalidFile = filepath.Join(t.TempDir(), "invalid_cookies.json")
	cfg.Credentials.APIKeys = map[string]config.CookieList{
		"sk-console-key-0001": {"cookie-alpha-000001", "cookie-bravo-000002"},
		"sk-console-key-0002": {"cookie-charlie-00003"},
	}

	store, err := openConsoleStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openConsoleStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return consoleHarness{
		console: &console{
			store:  store,
			in:     strings.NewReader(stdin),
			out:    out,
			errOut: errOut,
			format: cli.FormatText,
		},
		out:    out,
		errOut: errOut,
	}
}

func TestConsole_ListEmpty(t *testing.T) {
	c := newConsole(t, "")
	if err := c.list(); err != nil {
		t.Fatalf("list() error = %v", err)
	}
	if got := c.out.String(); got != "No invalid cookies\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConsole_AddAndList(t *testing.T) {
	c := newConsole(t, "")

	if err := c.add([]string{"cookie-alpha-000001"}, ""); err != nil {
		t.Fatalf("add() error = %v", err)
	}
	if !c.store.IsInvalid("cookie-alpha-000001") {
		t.Fatal("cookie not marked invalid")
	}
	if c.errOut.Len() != 0 {
		t.Errorf("single add should not render progress, got %q", c.errOut.String())
	}

	c.out.Reset()
	if err := c.list(); err != nil {
		t.Fatalf("list() error = %v", err)
	}
	out := c.out.String()
	if strings.Contains(out, "cookie-alpha-000001") {
		t.Errorf("list leaked full cookie: %q", out)
	}
	if !strings.Contains(out, "cook****0001") {
		t.Errorf("list output %q missing redacted cookie", out)
	}

	c.out.Reset()
	c.reveal = true
	if err := c.list(); err != nil {
		t.Fatalf("list() error = %v", err)
	}
	if !strings.Contains(c.out.String(), "cookie-alpha-000001") {
		t.Errorf("--reveal output %q missing cookie", c.out.String())
	}
}

func TestConsole_AddFromStdin(t *testing.T) {
	c := newConsole(t, "# comment\ncookie-one-xxxxxxxx\n\ncookie-two-xxxxxxxx\ncookie-one-xxxxxxxx\n")

	if err := c.add(nil, "-"); err != nil {
		t.Fatalf("add() error = %v", err)
	}
	if got := c.store.ListInvalid(); len(got) != 2 {
		t.Errorf("ListInvalid() = %v, want 2 cookies", got)
	}
	if !strings.Contains(c.out.String(), "Marked 2 cookies invalid (1 already listed)") {
		t.Errorf("output = %q", c.out.String())
	}
	if !strings.Contains(c.errOut.String(), "Marking:") {
		t.Errorf("progress output = %q", c.errOut.String())
	}
}

func TestConsole_AddNothing(t *testing.T) {
	c := newConsole(t, "")
	err := c.add(nil, "")
	if cli.ExitCode(err) != cli.ExitUsage {
		t.Errorf("add() error = %v, want usage error", err)
	}
}

func TestConsole_Remove(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantErr  bool
		wantLeft int
	}{
		{"by index", "0", false, 1},
		{"by value", "cookie-zulu-00000099", false, 1},
		{"index out of range", "5", true, 2},
		{"unknown value", "cookie-not-listed", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newConsole(t, "")
			for _, cookie := range []string{"cookie-alpha-000001", "cookie-zulu-00000099"} {
				if _, err := c.store.MarkInvalid(cookie); err != nil {
					t.Fatalf("MarkInvalid() error = %v", err)
				}
			}

			err := c.remove(tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("remove(%q) error = %v, wantErr %v", tt.target, err, tt.wantErr)
			}
			if tt.wantErr && cli.ExitCode(err) != cli.ExitUsage {
				t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitUsage)
			}
			if got := len(c.store.ListInvalid()); got != tt.wantLeft {
				t.Errorf("invalid count = %d, want %d", got, tt.wantLeft)
			}
		})
	}
}

func TestConsole_Clear(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		yes      bool
		wantLeft int
	}{
		{"declined", "n\n", false, 1},
		{"confirmed", "y\n", false, 0},
		{"--yes", "", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newConsole(t, tt.stdin)
			if _, err := c.store.MarkInvalid("cookie-alpha-000001"); err != nil {
				t.Fatalf("MarkInvalid() error = %v", err)
			}

			if err := c.clear(tt.yes); err != nil {
				t.Fatalf("clear() error = %v", err)
			}
			if got := len(c.store.ListInvalid()); got != tt.wantLeft {
				t.Errorf("invalid count = %d, want %d", got, tt.wantLeft)
			}
		})
	}
}

func TestConsole_Rebuild(t *testing.T) {
	c := newConsole(t, "")
	c.format = cli.FormatCSV
	if _, err := c.store.MarkInvalid("cookie-charlie-00003"); err != nil {
		t.Fatalf("MarkInvalid() error = %v", err)
	}

	if err := c.rebuild(); err != nil {
		t.Fatalf("rebuild() error = %v", err)
	}
	want := "KEYS,COOKIES,DROPPED,EMPTIED\n1,2,1,1\n"
	if got := c.out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if c.store.Snapshot().Has("sk-console-key-0002") {
		t.Error("key with only invalid cookies still pooled")
	}
}

func TestConsole_Keys(t *testing.T) {
	c := newConsole(t, "")
	c.format = cli.FormatJSON

	if err := c.keys(context.Background()); err != nil {
		t.Fatalf("keys() error = %v", err)
	}
	out := c.out.String()
	if strings.Contains(out, "sk-console-key-0001") {
		t.Errorf("keys leaked full API key: %s", out)
	}
	if !strings.Contains(out, `"KEY": "sk-c****0001"`) || !strings.Contains(out, `"STANDBY": "1"`) {
		t.Errorf("keys output = %s", out)
	}
}

func TestPoolCheck(t *testing.T) {
	dir := t.TempDir()
	store, err := credentials.Open(context.Background(), credentials.Options{
		InvalidFile: filepath.Join(dir, "invalid.json"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	if err := poolCheck(store)(context.Background()); err == nil {
		t.Error("poolCheck() on empty pool = nil")
	}

	full, err := credentials.Open(context.Background(), credentials.Options{
		InvalidFile: filepath.Join(dir, "invalid2.json"),
		Source:      map[string][]string{"sk-1": {"cookie"}},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer full.Close()

	if err := poolCheck(full)(context.Background()); err != nil {
		t.Errorf("poolCheck() = %v", err)
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"run"},
		{"version"},
		{"cookies", "list"},
		{"cookies", "add"},
		{"cookies", "remove"},
		{"cookies", "clear"},
		{"cookies", "rebuild"},
		{"cookies", "keys"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = %v, %v", path, cmd, err)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(buf.String(), "cursorgate "+Version+"\n") {
		t.Errorf("output = %q", buf.String())
	}
	if info := versionInfo(); info.Version != Version || info.GoVersion == "" {
		t.Errorf("versionInfo() = %+v", info)
	}
}
