package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/nutrilens-cli/internal/utils"
)

// ErrEmptyCompletion is returned when a runtime answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Completion is generated text together with the tokens it took.
type Completion struct {
	Text  string
	Usage Usage
	// Estimated is set when the provider reported no usage and the counts
	// come from EstimateUsage.
	Estimated bool
}

// Completer is a Generator that also reports token usage.
type Completer interface {
	Generator
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// EstimateUsage approximates token usage from the prompt and output text.
func EstimateUsage(prompt, text string) Usage {
	in, out := utils.CountTokens(prompt), utils.CountTokens(text)
	return Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}

// GenerationError wraps any failure to produce text for a prompt.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// RuntimeGenerator sends each prompt as a single user message to a Runtime.
type RuntimeGenerator struct {
	Runtime     Runtime
	Provider    string
	Model       string
	System      string
	MaxTokens   int
	Temperature float64
}

func (g *RuntimeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	c, err := g.Complete(ctx, prompt)
	return c.Text, err
}

// Complete sends prompt and returns the text with the provider's usage
// report, or an estimate when the provider sent none.
func (g *RuntimeGenerator) Complete(ctx context.Context, prompt string) (Completion, error) {
	msgs := make([]Message, 0, 2)
	if g.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: g.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})
	resp, err := g.Runtime.Generate(ctx, GenerateRequest{
		Model:       g.Model,
		Messages:    msgs,
		MaxTokens:   g.MaxTokens,
		Temperature: g.Temperature,
	})
	if err != nil {
		return Completion{}, &GenerationError{Provider: g.Provider, Err: err}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Completion{}, &GenerationError{Provider: g.Provider, Err: ErrEmptyCompletion}
	}
	c := Completion{Text: text, Usage: resp.Usage}
	if c.Usage.TotalTokens == 0 {
		c.Usage = EstimateUsage(g.System+"\n"+prompt, text)
		c.Estimated = true
	}
	return c, nil
}
