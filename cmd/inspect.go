package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nutrilens-cli/internal/importer"
	"github.com/KaramelBytes/nutrilens-cli/internal/utils"
)

var (
	inspOutputPath string
	inspDelimiter  string
	inspSheetName  string
	inspDecimal    string
	inspMaxRows    int
	inspJSON       bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [dataset]",
	Short: "Check a dataset's columns before importing it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if cfg != nil {
			path = cfg.DatasetPath
		}
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no dataset given (pass a path or set dataset_path)")
		}
		delimName, decName, sheet := inspDelimiter, inspDecimal, inspSheetName
		if cfg != nil {
			if delimName == "" {
				delimName = cfg.Delimiter
			}
			if decName == "" {
				decName = cfg.DecimalSeparator
			}
			if sheet == "" {
				sheet = cfg.Sheet
			}
		}
		opts, err := readOptions(delimName, decName, sheet)
		if err != nil {
			return err
		}

		rep, err := importer.Inspect(cmd.Context(), path, opts, inspMaxRows)
		if err != nil {
			return err
		}
		var out string
		if inspJSON {
			b, err := utils.PrettyJSON(rep)
			if err != nil {
				return err
			}
			out = string(b)
		} else {
			out = rep.Markdown()
		}
		if inspOutputPath != "" {
			if err := os.WriteFile(inspOutputPath, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Report written to %s\n", inspOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspOutputPath, "output", "o", "", "write the report to a file")
	inspectCmd.Flags().StringVar(&inspDelimiter, "delimiter", "", "field delimiter: auto, comma, semicolon, tab or pipe")
	inspectCmd.Flags().StringVar(&inspSheetName, "sheet", "", "worksheet to read from an .xlsx workbook")
	inspectCmd.Flags().StringVar(&inspDecimal, "decimal", "", "decimal separator of numeric cells: auto, dot or comma")
	inspectCmd.Flags().IntVar(&inspMaxRows, "max-rows", 0, "stop after this many rows (0 = all)")
	inspectCmd.Flags().BoolVar(&inspJSON, "json", false, "print JSON instead of markdown")
}
