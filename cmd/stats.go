package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/session"
	"github.com/KaramelBytes/nutrilens-cli/internal/stats"
	"github.com/KaramelBytes/nutrilens-cli/internal/utils"
)

var (
	statsPatient string
	statsJSON    bool
	statsSex     string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Rank a respondent's HEI score against the population",
	Example: `  nutrilens stats --patient 83732
  nutrilens stats --patient 83732 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsPatient == "" {
			return fmt.Errorf("--patient is required")
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), c, log)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := session.WithSession(cmd.Context(), session.Session{PatientID: statsPatient})
		st, err := stats.NewService(store).ForSession(ctx)
		switch {
		case errors.Is(err, record.ErrNotFound):
			return fmt.Errorf("respondent %s not found", statsPatient)
		case err != nil:
			return err
		}
		if statsJSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Respondent %s scored %.1f\n", statsPatient, st.Target)
		fmt.Fprintf(w, "  better than %.1f%% of %d respondents\n", st.PercentileRank, st.Population)
		fmt.Fprintf(w, "  population median %.1f (min %.1f, max %.1f)\n", st.Median, st.Minimum, st.Maximum)
		return nil
	},
}

var statsAverageCmd = &cobra.Command{
	Use:   "average",
	Short: "Average HEI score of everyone or one sex",
	RunE: func(cmd *cobra.Command, args []string) error {
		var pred record.Predicate = record.Everyone
		label := "all respondents"
		if statsSex != "" {
			sex := record.ParseSex(statsSex)
			if sex == record.SexUnknown {
				return fmt.Errorf("invalid --sex %q (use male or female)", statsSex)
			}
			pred = record.BySex(sex)
			label = string(sex) + " respondents"
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), c, log)
		if err != nil {
			return err
		}
		defer store.Close()

		avg, err := stats.NewService(store).AverageBy(cmd.Context(), pred)
		if err != nil {
			return err
		}
		if statsJSON {
			return printJSON(cmd.OutOrStdout(), map[string]any{"sex": statsSex, "average": avg})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Average HEI score of %s: %.2f\n", label, avg)
		return nil
	},
}

func printJSON(w io.Writer, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsAverageCmd)
	statsCmd.Flags().StringVarP(&statsPatient, "patient", "p", "", "respondent id (SEQN)")
	statsCmd.PersistentFlags().BoolVar(&statsJSON, "json", false, "print JSON")
	statsAverageCmd.Flags().StringVar(&statsSex, "sex", "", "male or female")
}
