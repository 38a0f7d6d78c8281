package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gemstock/internal/application"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
)

func (c *cli) ingestCmd() *cobra.Command {
	var (
		reportPath string
		noReport   bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Validate a file and save every valid row",
		Long: `Validate a CSV or Excel file and save each valid row to the store.

Rows that fail are listed and written to "<name> - failed.csv" next to the
input file, ready to be fixed and loaded again. The command exits non-zero
when any row fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.validated()
			if err != nil {
				return err
			}
			ctx := core.ContextWithOrigin(cmd.Context(), core.OriginCLI)

			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			app, err := application.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeQuietly(app)

			var onProgress ingest.ProgressFunc
			if !quiet {
				stderr := cmd.ErrOrStderr()
				onProgress = func(p ingest.Progress) {
					fmt.Fprintf(stderr, "\r%d/%d rows", p.Summary.Processed(), p.Summary.TotalRows)
					if p.Summary.Processed() == p.Summary.TotalRows {
						fmt.Fprintln(stderr)
					}
				}
			}

			start := time.Now()
			name := filepath.Base(path)
			batch, runErr := app.Service.IngestFile(ctx, name, f, onProgress)
			if batch == nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			renderRows(out, inventory.DisplayColumns, batch.Records())
			sum := batch.Summary()
			renderSummary(out, name, info.Size(), sum, time.Since(start))

			if sum.ErrorCount > 0 && !noReport {
				if reportPath == "" {
					reportPath = filepath.Join(filepath.Dir(path), core.FailedRowsFileName(name))
				}
				if err := writeFailedReport(reportPath, batch); err != nil {
					return err
				}
				fmt.Fprintf(out, "failed rows written to %s\n", reportPath)
			}

			if runErr != nil {
				return runErr
			}
			if sum.ErrorCount > 0 {
				return fmt.Errorf("%d of %d rows failed", sum.ErrorCount, sum.TotalRows)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportPath, "report", "r", "", `failed rows file (default "<name> - failed.csv" beside the input)`)
	cmd.Flags().BoolVar(&noReport, "no-report", false, "do not write the failed rows file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func writeFailedReport(path string, batch *ingest.Batch) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failed rows file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return core.WriteFailedRows(f, batch.Header(), core.FailedRowsOf(batch))
}
