package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ARTM2000/oak/v2"
	"github.com/ARTM2000/oak/v2/config"
	"github.com/ARTM2000/oak/v2/txchain"
	"github.com/ARTM2000/oak/v2/txn"
	"github.com/ARTM2000/oak/v2/txn/sqltx"
)

const defaultDriver = "sqlite"

func newInspectCmd(logger func() *slog.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Build the container and print the transaction manager chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return inspect(cmd.Context(), cfg, cmd.OutOrStdout(), logger())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML data-source config")
	return cmd
}

// inspect registers a *sql.DB and a sqltx.Manager for every configured data
// source, builds the container with the chaining post-processor and prints
// what ended up under the primary transaction manager name.
func inspect(ctx context.Context, cfg config.Tree, out io.Writer, log *slog.Logger) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c := oak.New()
	sources := txchain.DataSources(cfg)
	suffixes := make([]string, 0, len(sources))
	for suffix := range sources {
		suffixes = append(suffixes, suffix)
	}
	slices.Sort(suffixes)

	for _, suffix := range suffixes {
		if err := registerDataSource(ctx, c, suffix, sources[suffix]); err != nil {
			return err
		}
	}

	if err := c.AddPostProcessor(txchain.New(cfg, txchain.WithLogger(log))); err != nil {
		return err
	}
	buildErr := c.Build()
	defer func() {
		err = errors.Join(err, c.Shutdown(context.WithoutCancel(ctx)))
	}()
	if buildErr != nil {
		return buildErr
	}

	primary, err := oak.ResolveNamed[txn.Manager](c, txchain.PrimaryName)
	if err != nil {
		return err
	}

	if chained, ok := primary.(*txn.ChainedManager); ok {
		members := chained.Managers()
		_, _ = fmt.Fprintf(out, "%s: chained (%d managers)\n", txchain.PrimaryName, len(members))
		for _, m := range members {
			_, _ = fmt.Fprintf(out, "  - %v\n", m)
		}
		return nil
	}

	_, _ = fmt.Fprintf(out, "%s: %v\n", txchain.PrimaryName, primary)
	return nil
}

func registerDataSource(ctx context.Context, c oak.Container, suffix string, ds config.Tree) error {
	dsName, tmName, label := "dataSource", txchain.PrimaryName, "default"
	if suffix != "" {
		dsName += "_" + suffix
		tmName += "_" + suffix
		label = suffix
	}

	url, ok := ds.String("url")
	if !ok || url == "" {
		return fmt.Errorf("%s: url is required", dsName)
	}
	driver, ok := ds.String("driver")
	if !ok {
		driver = defaultDriver
	}

	err := c.RegisterNamed(dsName, sqltx.Open,
		oak.WithArgs(oak.Value(ctx), oak.Value(driver), oak.Value(url)))
	if err != nil {
		return err
	}

	var opts oak.Arg = oak.Value(nil)
	if readOnly, _ := ds.Bool("readOnly"); readOnly {
		opts = oak.Value(&sql.TxOptions{ReadOnly: true})
	}
	return c.RegisterNamed(tmName, sqltx.New,
		oak.WithArgs(oak.Value(label), oak.Ref(dsName), opts))
}
