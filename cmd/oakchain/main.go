// Command oakchain loads a data-source configuration, wires one SQL
// transaction manager per data source into an oak container, and reports how
// the chained transaction manager was assembled.
//
//	oakchain inspect --config app.yaml
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the CLI with the provided args and output writers.
func execute(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	var logLevel string
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	currentLogger := func() *slog.Logger { return logger }

	root := &cobra.Command{
		Use:           "oakchain",
		Short:         "Inspect chained transaction manager wiring",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newInspectCmd(currentLogger))
	return root
}
