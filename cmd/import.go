package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/nutrilens-cli/internal/config"
)

var (
	importReset     bool
	importDelimiter string
	importSheet     string
	importDecimal   string
)

var importCmd = &cobra.Command{
	Use:   "import [dataset]",
	Short: "Import the survey dataset into the record store (runs once)",
	Example: `  nutrilens import ~/data/nhanes_hei.csv
  nutrilens import hei.xlsx --sheet Respondents
  nutrilens import us_export.csv --decimal dot
  nutrilens import --reset`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if c.StoreDriver == cfgpkg.DriverMemory {
			return fmt.Errorf("the memory store is filled from dataset_path on every run; import needs sqlite or postgres")
		}
		path := c.DatasetPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no dataset given (pass a path or set dataset_path)")
		}
		if cmd.Flags().Changed("delimiter") {
			c.Delimiter = importDelimiter
		}
		if cmd.Flags().Changed("sheet") {
			c.Sheet = importSheet
		}
		if cmd.Flags().Changed("decimal") {
			c.DecimalSeparator = importDecimal
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, c, log)
		if err != nil {
			return err
		}
		defer store.Close()

		gate := newGate(c)
		if importReset {
			if err := gate.Reset(); err != nil {
				return fmt.Errorf("reset import flag: %w", err)
			}
		}
		im, err := newImporter(c, store, gate, log)
		if err != nil {
			return err
		}
		sum, err := im.ImportOnce(ctx, path)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importReset, "reset", false, "clear the import flag first; existing respondents are kept")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", "", "field delimiter: auto, comma, semicolon, tab or pipe")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "worksheet to read from an .xlsx workbook")
	importCmd.Flags().StringVar(&importDecimal, "decimal", "", "decimal separator of numeric cells: auto, dot or comma")
}
