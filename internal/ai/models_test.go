package ai

import "testing"

func TestPromptBudget(t *testing.T) {
	if got := PromptBudget("phi3:mini-4k-instruct", 1024, 6000); got != 3072 {
		t.Fatalf("expected context minus output, got %d", got)
	}
	if got := PromptBudget("openai/gpt-4o-mini", 1024, 6000); got != 6000 {
		t.Fatalf("configured limit should cap large windows, got %d", got)
	}
	if got := PromptBudget("unknown/model", 1024, 500); got != 500 {
		t.Fatalf("unknown models use the fallback, got %d", got)
	}
}

func TestDefaultModel(t *testing.T) {
	if DefaultModel("local") != "llama3:latest" {
		t.Fatalf("unexpected ollama default")
	}
	if _, ok := LookupModel(DefaultModel("")); !ok {
		t.Fatalf("hosted default should be in the catalog")
	}
}

func TestEstimateCost(t *testing.T) {
	c, ok := EstimateCostUSD("openai/gpt-4o-mini", 1000, 1000)
	if !ok || c <= 0 {
		t.Fatalf("expected a positive estimate, got %v %v", c, ok)
	}
	if _, ok := EstimateCostUSD("nope", 1, 1); ok {
		t.Fatalf("unknown model should not be priced")
	}
}
