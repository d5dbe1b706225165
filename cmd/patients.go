package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/utils"
)

var patientsJSON bool

var patientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "List or show imported respondents",
}

var patientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List respondent ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), c, log)
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := store.IDs(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "(no respondents; run nutrilens import first)")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", id)
		}
		return nil
	},
}

var patientsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one respondent's record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), c, log)
		if err != nil {
			return err
		}
		defer store.Close()

		r, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, record.ErrNotFound) {
			return fmt.Errorf("respondent %s not found", args[0])
		}
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if patientsJSON {
			b, err := utils.PrettyJSON(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		for _, g := range []record.Group{record.GroupKey, record.GroupProfile, record.GroupScore, record.GroupComponent} {
			for _, f := range record.FieldsIn(g) {
				if f.Max > 0 {
					fmt.Fprintf(w, "%-32s %s / %.0f\n", f.Label+":", f.Text(r), f.Max)
					continue
				}
				fmt.Fprintf(w, "%-32s %s\n", f.Label+":", f.Text(r))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(patientsCmd)
	patientsCmd.AddCommand(patientsListCmd)
	patientsCmd.AddCommand(patientsShowCmd)
	patientsShowCmd.Flags().BoolVar(&patientsJSON, "json", false, "print the full record as JSON")
}
