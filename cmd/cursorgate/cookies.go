package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"mercator-hq/cursorgate/pkg/cli"
	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/credentials"
	"mercator-hq/cursorgate/pkg/telemetry/logging"

	"github.com/spf13/cobra"
)

var cookiesFlags struct {
	output string
	reveal bool
	yes    bool
	file   string
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage the invalid cookie list and inspect the pool",
	Long: `Inspect and edit the invalid cookie file shared with a running gateway.

A running gateway watches the file and rebuilds its pool after every change,
so edits made here take effect without a restart.

Subcommands:
  list     - List invalid cookies
  add      - Mark cookies invalid
  remove   - Clear one invalid cookie by index or value
  clear    - Clear every invalid cookie
  rebuild  - Rebuild the pool and report what it contains
  keys     - List pooled API keys with their active cookie`,
}

var cookiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invalid cookies",
	Args:  cobra.NoArgs,
	RunE:  withConsole(func(_ context.Context, c *console, _ []string) error { return c.list() }),
}

var cookiesAddCmd = &cobra.Command{
	Use:   "add [cookie...]",
	Short: "Mark cookies invalid",
	Long: `Mark one or more cookies invalid. Cookies come from the arguments and,
with --file, from a file holding one cookie per line ("-" reads stdin).`,
	RunE: withConsole(func(_ context.Context, c *console, args []string) error { return c.add(args, cookiesFlags.file) }),
}

var cookiesRemoveCmd = &cobra.Command{
	Use:   "remove <index|cookie>",
	Short: "Clear one invalid cookie",
	Long: `Clear one cookie from the invalid list. The argument is either the
index shown by "cookies list" or the cookie itself.`,
	Args: cobra.ExactArgs(1),
	RunE: withConsole(func(_ context.Context, c *console, args []string) error { return c.remove(args[0]) }),
}

var cookiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear every invalid cookie",
	Args:  cobra.NoArgs,
	RunE:  withConsole(func(_ context.Context, c *console, _ []string) error { return c.clear(cookiesFlags.yes) }),
}

var cookiesRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the pool from config and the invalid list",
	Args:  cobra.NoArgs,
	RunE:  withConsole(func(_ context.Context, c *console, _ []string) error { return c.rebuild() }),
}

var cookiesKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List pooled API keys",
	Args:  cobra.NoArgs,
	RunE:  withConsole(func(ctx context.Context, c *console, _ []string) error { return c.keys(ctx) }),
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesListCmd, cookiesAddCmd, cookiesRemoveCmd, cookiesClearCmd, cookiesRebuildCmd, cookiesKeysCmd)

	cookiesCmd.PersistentFlags().StringVarP(&cookiesFlags.output, "output", "o", "text", "output format: text, json, csv")
	cookiesCmd.PersistentFlags().BoolVar(&cookiesFlags.reveal, "reveal", false, "print cookies and keys unredacted")
	cookiesAddCmd.Flags().StringVarP(&cookiesFlags.file, "file", "f", "", "read cookies from file, one per line")
	cookiesClearCmd.Flags().BoolVarP(&cookiesFlags.yes, "yes", "y", false, "skip the confirmation prompt")
}

// withConsole opens the store for one console command and closes it after.
func withConsole(fn func(ctx context.Context, c *console, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		format, err := cli.ParseOutputFormat(cookiesFlags.output)
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.Telemetry.Logging, cmd.ErrOrStderr())
		if err != nil {
			return cli.NewConfigError("telemetry.logging", err.Error())
		}

		ctx := cmd.Context()
		store, err := openConsoleStore(ctx, cfg, logger)
		if err != nil {
			return cli.NewCommandError(cmd.Name(), err)
		}
		defer store.Close()

		c := &console{
			store:  store,
			in:     cmd.InOrStdin(),
			out:    cmd.OutOrStdout(),
			errOut: cmd.ErrOrStderr(),
			format: format,
			reveal: cookiesFlags.reveal,
		}
		if err := fn(ctx, c, args); err != nil {
			return cli.NewCommandError("cookies "+cmd.Name(), err)
		}
		return nil
	}
}

// openConsoleStore opens the store without the watcher or the scheduler.
// The usage database is opened so keys can report usage counts.
func openConsoleStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*credentials.Store, error) {
	return credentials.Open(ctx, credentials.Options{
		InvalidFile: cfg.Credentials.InvalidFile,
		Source:      cfg.Credentials.Pool(),
		UsageDB:     cfg.Credentials.UsageDB,
		Logger:      logger,
	})
}

// console implements the cookies subcommands against one store.
type console struct {
	store  *credentials.Store
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	format cli.OutputFormat
	reveal bool
}

func (c *console) show(s string) string {
	if c.reveal {
		return s
	}
	return logging.Redact(s)
}

func (c *console) print(data any) error {
	return cli.NewFormatter(c.format).FormatTo(c.out, data)
}

func (c *console) list() error {
	invalid := c.store.ListInvalid()
	if len(invalid) == 0 && c.format == cli.FormatText {
		fmt.Fprintln(c.out, "No invalid cookies")
		return nil
	}

	table := cli.Table{Headers: []string{"INDEX", "COOKIE"}}
	for i, cookie := range invalid {
		table.AddRow(strconv.Itoa(i), c.show(cookie))
	}
	return c.print(table)
}

func (c *console) add(args []string, file string) error {
	cookies := append([]string(nil), args...)
	if file != "" {
		fromFile, err := c.readCookies(file)
		if err != nil {
			return err
		}
		cookies = append(cookies, fromFile...)
	}
	if len(cookies) == 0 {
		return cli.NewUsageError("no cookies given")
	}

	var progress cli.ProgressReporter
	if len(cookies) > 1 {
		progress = cli.NewProgressReporter(c.errOut, "Marking")
		progress.Start(int64(len(cookies)))
	}

	added, failed := 0, 0
	for i, cookie := range cookies {
		ok, err := c.store.MarkInvalid(cookie)
		switch {
		case err != nil:
			failed++
			if progress == nil {
				return err
			}
			progress.Error(err)
		case ok:
			added++
		}
		if progress != nil {
			progress.Update(int64(i + 1))
		}
	}
	if progress != nil {
		progress.Finish()
	}

	fmt.Fprintf(c.out, "✓ Marked %d cookies invalid (%d already listed)\n", added, len(cookies)-added-failed)
	if failed > 0 {
		return fmt.Errorf("%d cookies could not be marked invalid", failed)
	}
	return nil
}

func (c *console) readCookies(file string) ([]string, error) {
	var r io.Reader
	if file == "-" {
		r = c.in
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open cookie file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var cookies []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cookies = append(cookies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return cookies, nil
}

func (c *console) remove(target string) error {
	cookie := target
	if idx, err := strconv.Atoi(target); err == nil {
		invalid := c.store.ListInvalid()
		if idx < 0 || idx >= len(invalid) {
			return cli.NewUsageError("index %d out of range (%d invalid cookies)", idx, len(invalid))
		}
		cookie = invalid[idx]
	}

	removed, err := c.store.ClearInvalid(cookie)
	if err != nil {
		return err
	}
	if !removed {
		return cli.NewUsageError("cookie %s is not in the invalid list", c.show(cookie))
	}
	fmt.Fprintf(c.out, "✓ Cleared %s\n", c.show(cookie))
	return nil
}

func (c *console) clear(yes bool) error {
	n := len(c.store.ListInvalid())
	if n == 0 {
		fmt.Fprintln(c.out, "No invalid cookies")
		return nil
	}

	if !yes {
		ok, err := cli.Confirm(c.in, c.out, fmt.Sprintf("Clear all %d invalid cookies?", n))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.out, "Aborted")
			return nil
		}
	}

	if err := c.store.ClearAllInvalid(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Cleared %d invalid cookies\n", n)
	return nil
}

func (c *console) rebuild() error {
	stats, err := c.store.RotatePool()
	if err != nil {
		return err
	}

	table := cli.Table{Headers: []string{"KEYS", "COOKIES", "DROPPED", "EMPTIED"}}
	table.AddRow(
		strconv.Itoa(stats.Keys),
		strconv.Itoa(stats.Cookies),
		strconv.Itoa(stats.Dropped),
		strconv.Itoa(stats.Emptied),
	)
	return c.print(table)
}

func (c *console) keys(ctx context.Context) error {
	records, err := c.store.Records(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 && c.format == cli.FormatText {
		fmt.Fprintln(c.out, "No API keys in pool")
		return nil
	}

	table := cli.Table{Headers: []string{"KEY", "ACTIVE COOKIE", "STANDBY", "CREATED", "USES"}}
	for _, rec := range records {
		table.AddRow(
			c.show(rec.Key),
			c.show(rec.Cookie),
			strconv.Itoa(len(rec.Standby)),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(rec.UsageCount, 10),
		)
	}
	return c.print(table)
}
