package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KaramelBytes/nutrilens-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/nutrilens-cli/internal/config"
	"github.com/KaramelBytes/nutrilens-cli/internal/importer"
	"github.com/KaramelBytes/nutrilens-cli/internal/insight"
	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/settings"
	"github.com/KaramelBytes/nutrilens-cli/internal/utils"
)

const systemPrompt = "You are a registered dietitian reviewing NHANES Healthy Eating Index 2015 results. " +
	"Answer in a few short paragraphs of plain text, grounded only in the numbers provided."

type runtimeOptions struct {
	ProviderFlag string
	ModelFlag    string
	OllamaHost   string
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := opts.ProviderFlag
	if strings.TrimSpace(providerName) == "" && cfg != nil {
		providerName = cfg.DefaultProvider
	}
	providerName = ai.NormalizeProvider(providerName)

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" && cfg != nil && cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      apiKey,
	}

	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil && cfg.OllamaHost != "" {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = ai.DefaultOllamaHost
		}
		rc.Host = host
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s (available: %s)", providerName, strings.Join(ai.Providers(), ", "))
	}
	return client, providerName, nil
}

func selectModel(cfg *cfgpkg.Global, provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" {
		return cfg.DefaultModel
	}
	return ai.DefaultModel(provider)
}

// buildGenerator wires the configured runtime behind a circuit breaker.
func buildGenerator(cfg *cfgpkg.Global, opts runtimeOptions, log logrus.FieldLogger) (ai.Generator, string, error) {
	rt, provider, err := buildRuntime(cfg, opts)
	if err != nil {
		return nil, "", err
	}
	model := selectModel(cfg, provider, opts.ModelFlag)
	gen := &ai.RuntimeGenerator{
		Runtime:     rt,
		Provider:    provider,
		Model:       model,
		System:      systemPrompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	breaker := ai.NewBreakerGenerator(provider, gen, ai.BreakerSettings{
		MaxFailures: uint32(cfg.BreakerMaxFailures),
		Cooldown:    time.Duration(cfg.BreakerCooldownSec) * time.Second,
	}, log)
	return breaker, model, nil
}

func newOrchestrator(cfg *cfgpkg.Global, src insight.Source, gen ai.Generator, model string, log logrus.FieldLogger) *insight.Orchestrator {
	return insight.New(src, gen,
		insight.WithLogger(log),
		insight.WithConcurrency(cfg.InsightConcurrency),
		insight.WithTaskTimeout(time.Duration(cfg.InsightTimeoutSec)*time.Second),
		insight.WithPromptLimit(ai.PromptBudget(model, cfg.MaxTokens, cfg.PromptLimit)),
	)
}

// importGate is the persisted import flag for the configured store target.
type importGate interface {
	importer.Gate
	Reset() error
}

func newGate(cfg *cfgpkg.Global) importGate {
	if cfg.StoreDriver == cfgpkg.DriverMemory {
		return &settings.Memory{}
	}
	return settings.NewFile(cfg.SettingsPath, cfg.StoreTarget())
}

func newImporter(cfg *cfgpkg.Global, store record.Writer, gate importer.Gate, log logrus.FieldLogger) (*importer.Importer, error) {
	opts, err := readOptions(cfg.Delimiter, cfg.DecimalSeparator, cfg.Sheet)
	if err != nil {
		return nil, err
	}
	return importer.New(store, gate, log, opts), nil
}

// readOptions turns the dataset settings into importer options.
func readOptions(delimiter, decimal, sheet string) (importer.Options, error) {
	delim, err := cfgpkg.DelimiterRune(delimiter)
	if err != nil {
		return importer.Options{}, err
	}
	dec, err := cfgpkg.DecimalRune(decimal)
	if err != nil {
		return importer.Options{}, err
	}
	return importer.Options{Delimiter: delim, Decimal: dec, Sheet: sheet}, nil
}

// openStore opens the configured record store. The memory store lives only
// for this process, so it is filled from dataset_path right away.
func openStore(ctx context.Context, cfg *cfgpkg.Global, log logrus.FieldLogger) (record.Store, error) {
	switch cfg.StoreDriver {
	case cfgpkg.DriverPostgres:
		return record.OpenPostgres(ctx, cfg.DatabaseURL)
	case cfgpkg.DriverMemory:
		store := record.NewMemoryStore()
		if cfg.DatasetPath == "" {
			return store, nil
		}
		im, err := newImporter(cfg, store, &settings.Memory{}, log)
		if err != nil {
			return nil, err
		}
		if _, err := im.ImportOnce(ctx, cfg.DatasetPath); err != nil {
			return nil, err
		}
		return store, nil
	default:
		if err := utils.EnsureDir(cfg.DataDir); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return record.OpenSQLite(ctx, cfg.SQLitePath)
	}
}

// printSummary reports an import the way the other commands report results.
func printSummary(w io.Writer, sum *importer.Summary) {
	if sum.Skipped {
		fmt.Fprintln(w, "✓ Dataset already imported; nothing to do (use --reset to import again)")
		return
	}
	fmt.Fprintf(w, "✓ Imported %d of %d rows from %s in %s\n", sum.Inserted, sum.Rows, sum.Source, sum.Duration.Round(time.Millisecond))
	if sum.Duplicates > 0 {
		fmt.Fprintf(w, "  %d duplicate ids kept their first row\n", sum.Duplicates)
	}
	if sum.SkippedRows > 0 {
		fmt.Fprintf(w, "⚠ %d rows without an id were skipped\n", sum.SkippedRows)
	}
	if sum.DefaultedCells > 0 {
		fmt.Fprintf(w, "⚠ %d unparsable numeric cells defaulted to 0\n", sum.DefaultedCells)
	}
	if len(sum.UnknownColumns) > 0 {
		fmt.Fprintf(w, "  ignored columns: %s\n", strings.Join(sum.UnknownColumns, ", "))
	}
}
