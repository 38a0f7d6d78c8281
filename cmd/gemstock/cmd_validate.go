package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
)

func (c *cli) validateCmd() *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a file against the schema without saving anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := inventory.Resolve(c.cfg.Inventory)
			if err != nil {
				return err
			}

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

			start := time.Now()
			table, err := ingest.ParseFile(filepath.Base(path), f)
			if err != nil {
				return err
			}

			validator := ingest.NewValidator(inventory.Schema(opts))
			records := make([]ingest.IngestRecord, 0, len(table.Rows))
			sum := ingest.Summary{TotalRows: len(table.Rows)}
			for _, row := range table.Rows {
				rec := ingest.IngestRecord{Row: row, Status: ingest.StatusSuccess}
				if v := validator.ValidateRow(row); !v.Valid {
					rec.Status = ingest.StatusFailed
					rec.Source = ingest.SourceValidation
					rec.Reasons = v.Reasons
					rec.Error = strings.Join(v.Reasons, "; ")
					sum.ErrorCount++
				} else {
					sum.SuccessCount++
					if !showAll {
						continue
					}
				}
				records = append(records, rec)
			}

			out := cmd.OutOrStdout()
			if len(records) > 0 {
				renderRows(out, inventory.DisplayColumns, records)
			}
			renderSummary(out, filepath.Base(path), info.Size(), sum, time.Since(start))

			if sum.ErrorCount > 0 {
				return fmt.Errorf("%d of %d rows are invalid", sum.ErrorCount, sum.TotalRows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "list valid rows too")
	return cmd
}
