package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures BreakerGenerator.
type BreakerSettings struct {
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

// BreakerGenerator fails fast once the wrapped generator keeps failing, so
// a run against a dead provider does not wait out every timeout.
type BreakerGenerator struct {
	next Generator
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerGenerator wraps next. A nil logger disables state change logs.
func NewBreakerGenerator(name string, next Generator, s BreakerSettings, log logrus.FieldLogger) *BreakerGenerator {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// the caller giving up is not the provider's fault
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if log != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("generation circuit breaker changed state")
		}
	}
	return &BreakerGenerator{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	c, err := b.Complete(ctx, prompt)
	return c.Text, err
}

// Complete runs the wrapped generator through the breaker. Usage is passed
// on when the wrapped generator reports it and estimated otherwise.
func (b *BreakerGenerator) Complete(ctx context.Context, prompt string) (Completion, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		if c, ok := b.next.(Completer); ok {
			return c.Complete(ctx, prompt)
		}
		text, err := b.next.Generate(ctx, prompt)
		return Completion{Text: text, Usage: EstimateUsage(prompt, text), Estimated: true}, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Completion{}, &GenerationError{Provider: b.cb.Name(), Err: err}
		}
		return Completion{}, err
	}
	return out.(Completion), nil
}

// State reports the breaker state, mainly for diagnostics.
func (b *BreakerGenerator) State() gobreaker.State { return b.cb.State() }
