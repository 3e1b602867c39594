/*
Package cli provides the helpers shared by the cursorgate commands.

Output formatting renders tables as aligned text, JSON or CSV:

	table := cli.Table{Headers: []string{"INDEX", "COOKIE"}}
	table.AddRow("0", logging.Redact(cookie))
	if err := cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Batch console operations report progress on stderr:

	progress := cli.NewProgressReporter(nil, "Marking")
	progress.Start(int64(len(cookies)))
	for i, c := range cookies {
		if _, err := store.MarkInvalid(c); err != nil {
			progress.Error(err)
		}
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Errors map to exit codes through ExitCode: configuration problems exit 2,
bad arguments 64, and everything else 1.
*/
package cli
