package ai

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// AuthError indicates authentication/authorization failures (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// BadRequestError indicates a 4xx request problem (e.g., 400 validation).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// QuotaExceededError indicates billing/quota problems.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("provider error: %s", e.APIError.Error()) }

// UnreachableError indicates the target runtime is not reachable (e.g., local Ollama down).
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Hint suggests a fix for a generation failure, or "" when there is none.
func Hint(err error) string {
	var (
		auth    *AuthError
		rate    *RateLimitError
		model   *ModelNotFoundError
		quota   *QuotaExceededError
		unreach *UnreachableError
	)
	switch {
	case errors.As(err, &auth):
		return "check api_key (or OPENROUTER_API_KEY)"
	case errors.As(err, &rate):
		return "the provider is throttling requests; lower insight_concurrency or retry later"
	case errors.As(err, &model):
		return "set default_model to a model the provider serves (for Ollama, pull it first)"
	case errors.As(err, &quota):
		return "the provider account is out of credit"
	case errors.As(err, &unreach):
		return "start the runtime or point ollama_host at it"
	case errors.Is(err, gobreaker.ErrOpenState):
		return "too many consecutive failures; generation is paused for breaker_cooldown_sec"
	}
	return ""
}
