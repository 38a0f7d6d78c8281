package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gemstock/internal/application"
	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/store/postgres"
	"github.com/JonMunkholm/gemstock/internal/watch"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.validated()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate needs the postgres driver; sqlite applies its schema on open")
			}

			pool, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.Migrate(pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	var settle = config.Defaults().Watch.Settle

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Load files dropped into a directory until interrupted",
		Long: `Watch a directory and load each .csv or .xlsx file placed in it.

Loaded files move to Uploaded/ and failed rows are written beside them as
"<name> - failed.csv". The directory defaults to WATCH_DIR.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.validated()
			if err != nil {
				return err
			}
			dir := cfg.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if cmd.Flags().Changed("settle") || cfg.Watch.Settle == 0 {
				cfg.Watch.Settle = settle
			}

			ctx := core.ContextWithOrigin(cmd.Context(), core.OriginWatch)
			app, err := application.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeQuietly(app)

			out := cmd.OutOrStdout()
			w := watch.New(dir, cfg.Watch.Settle, app.Service,
				watch.WithLogger(slog.Default()),
				watch.WithOnProcessed(func(res watch.Result, err error) {
					if err != nil {
						fmt.Fprintln(out, styleError.Render(fmt.Sprintf("%s: %v", res.Source, err)))
						return
					}
					renderSummary(out, res.Source, 0, res.Summary, 0)
				}),
			)
			fmt.Fprintf(out, "watching %s (Ctrl-C to stop)\n", dir)
			return w.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", settle, "how long a file must stay unchanged before it is loaded")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.validated()
			if err != nil {
				return err
			}
			app, err := application.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeQuietly(app)

			logs, err := app.Store.RecentBatches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no batches recorded")
				return nil
			}
			renderHistory(cmd.OutOrStdout(), logs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of batches to show")
	return cmd
}
