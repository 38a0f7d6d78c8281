package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
)

func (c *cli) templateCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an upload template with the header and one example row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := inventory.Resolve(c.cfg.Inventory)
			if err != nil {
				return err
			}
			schema := inventory.Schema(opts)
			example := inventory.ExampleRow(opts)

			var data []byte
			switch strings.ToLower(format) {
			case "csv":
				if data, err = ingest.Template(schema, example); err != nil {
					return err
				}
			case "xlsx":
				if output == "" {
					return fmt.Errorf("--output is required for xlsx")
				}
				if data, err = ingest.TemplateXLSX(schema, example); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: template format %q", ingest.ErrUnsupportedFormat, format)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: wrote %d bytes\n", output, len(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "template format: csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}
