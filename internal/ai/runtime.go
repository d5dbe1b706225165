package ai

import (
	"context"
	"strings"
)

// Runtime is implemented by chat backends such as OpenRouter and a local Ollama.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// NormalizeProvider maps user-facing aliases onto a registered provider name.
// OpenRouter fronts the hosted vendors, so their names resolve to it.
func NormalizeProvider(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "openrouter", "openai", "anthropic", "google", "gemini", "meta":
		return ProviderOpenRouter
	case "ollama", "local", "llama":
		return ProviderOllama
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}
