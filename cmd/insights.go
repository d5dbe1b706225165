package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nutrilens-cli/internal/ai"
	"github.com/KaramelBytes/nutrilens-cli/internal/insight"
)

var (
	insightsProvider   string
	insightsModel      string
	insightsOllamaHost string
	insightsJSON       bool
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Generate AI insights about the whole population",
	Example: `  nutrilens insights
  nutrilens insights --provider ollama --model llama3:latest
  nutrilens insights --json`,
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

		gen, model, err := buildGenerator(c, runtimeOptions{
			ProviderFlag: insightsProvider,
			ModelFlag:    insightsModel,
			OllamaHost:   insightsOllamaHost,
		}, log)
		if err != nil {
			return err
		}
		orch := newOrchestrator(c, store, gen, model, log)

		w := cmd.OutOrStdout()
		if !insightsJSON {
			fmt.Fprintf(w, "Generating insights with %s...\n", model)
		}
		final := orch.Run(cmd.Context())
		if insightsJSON {
			return printJSON(w, insight.Describe(final))
		}
		switch st := final.(type) {
		case insight.Success:
			for _, in := range st.Insights {
				mark := "✓"
				if in.Failed {
					mark = "✗"
				}
				fmt.Fprintf(w, "\n%s %s\n%s\n", mark, in.Title, in.Text)
			}
			printUsage(w, model, st)
			return nil
		case insight.Failure:
			return fmt.Errorf("insight run failed: %s", st.Message)
		default:
			return fmt.Errorf("insight run ended in unexpected state %s", final.Status())
		}
	},
}

// printUsage reports the run's token totals and, for priced models, what
// they cost.
func printUsage(w io.Writer, model string, st insight.Success) {
	usage, estimated := st.Usage()
	if usage.TotalTokens == 0 {
		return
	}
	note := ""
	if estimated {
		note = " (est.)"
	}
	fmt.Fprintf(w, "\nTokens%s: %d prompt + %d completion = %d\n", note, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	mi, ok := ai.LookupModel(model)
	if !ok || mi.InputPerK+mi.OutputPerK == 0 {
		return
	}
	if cost, ok := ai.EstimateCostUSD(model, usage.PromptTokens, usage.CompletionTokens); ok {
		fmt.Fprintf(w, "Estimated cost: ~$%.4f (in %.4f/out %.4f per 1K tokens)\n", cost, mi.InputPerK, mi.OutputPerK)
	}
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	insightsCmd.Flags().StringVar(&insightsProvider, "provider", "", "openrouter or ollama (overrides default_provider)")
	insightsCmd.Flags().StringVar(&insightsModel, "model", "", "model name (overrides default_model)")
	insightsCmd.Flags().StringVar(&insightsOllamaHost, "ollama-host", "", "Ollama host URL (overrides ollama_host)")
	insightsCmd.Flags().BoolVar(&insightsJSON, "json", false, "print the final state as JSON")
}
