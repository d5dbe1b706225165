package ai

// ModelInfo describes what the insight prompts need to know about a model.
type ModelInfo struct {
	Name          string
	ContextTokens int
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

// Prices are illustrative; verify against OpenRouter before relying on them.
var models = map[string]ModelInfo{
	"openai/gpt-4o-mini":               {Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.0006, OutputPerK: 0.0024},
	"anthropic/claude-3-haiku":         {Name: "anthropic/claude-3-haiku", ContextTokens: 200000, InputPerK: 0.00025, OutputPerK: 0.00125},
	"google/gemini-1.5-flash":          {Name: "google/gemini-1.5-flash", ContextTokens: 1000000, InputPerK: 0.0002, OutputPerK: 0.0008},
	"meta-llama/llama-3.1-8b-instruct": {Name: "meta-llama/llama-3.1-8b-instruct", ContextTokens: 131072},
	"llama3:latest":                    {Name: "llama3:latest", ContextTokens: 8192},
	"llama3.1:8b-instruct":             {Name: "llama3.1:8b-instruct", ContextTokens: 8192},
	"mistral:7b-instruct":              {Name: "mistral:7b-instruct", ContextTokens: 8192},
	"phi3:mini-4k-instruct":            {Name: "phi3:mini-4k-instruct", ContextTokens: 4096},
}

// DefaultModel is used when no model is configured for a provider.
func DefaultModel(provider string) string {
	if NormalizeProvider(provider) == ProviderOllama {
		return "llama3:latest"
	}
	return "openai/gpt-4o-mini"
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// PromptBudget returns how many tokens a single prompt may use with model,
// leaving room for maxTokens of output. Unknown models get fallback.
func PromptBudget(model string, maxTokens, fallback int) int {
	mi, ok := LookupModel(model)
	if !ok || mi.ContextTokens <= 0 {
		return fallback
	}
	budget := mi.ContextTokens - maxTokens
	if budget <= 0 {
		return fallback
	}
	if fallback > 0 && fallback < budget {
		return fallback
	}
	return budget
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}
