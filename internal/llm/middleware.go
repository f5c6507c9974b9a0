package llm

import (
	"context"
	"errors"
	"time"
)

// WithTimeout bounds every call with its own deadline. A zero or negative d
// returns g unchanged.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		out, err := g.Generate(callCtx, prompt)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			var te *TransportError
			if !errors.As(err, &te) {
				err = &TransportError{Provider: "timeout", Err: context.DeadlineExceeded}
			}
		}
		return out, err
	})
}

// RetryConfig controls WithRetry. Attempts counts the first call, so 1
// disables retrying.
type RetryConfig struct {
	Attempts  int           `mapstructure:"attempts" json:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay" json:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay" json:"max_delay"`
}

// WithRetry retries transport failures with exponential backoff. Any other
// error, and any failure after the caller's context is done, is returned
// immediately.
func WithRetry(g Generator, cfg RetryConfig) Generator {
	if cfg.Attempts <= 1 {
		return g
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}

	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		delay := cfg.BaseDelay
		var lastErr error
		for attempt := 1; attempt <= cfg.Attempts; attempt++ {
			out, err := g.Generate(ctx, prompt)
			if err == nil {
				return out, nil
			}
			lastErr = err

			var te *TransportError
			if !errors.As(err, &te) || ctx.Err() != nil || attempt == cfg.Attempts {
				break
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}

			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
		return "", lastErr
	})
}
