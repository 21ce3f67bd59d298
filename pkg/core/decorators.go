package core

import (
	"context"
	"math/rand"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// BaseDecorator provides common functionality for all LLM decorators.
type BaseDecorator struct {
	LLM
}

func (d *BaseDecorator) Unwrap() LLM {
	return d.LLM
}

// ModelContextDecorator adds model context tracking.
type ModelContextDecorator struct {
	BaseDecorator
}

func NewModelContextDecorator(base LLM) *ModelContextDecorator {
	return &ModelContextDecorator{
		BaseDecorator: BaseDecorator{LLM: base},
	}
}

func (d *ModelContextDecorator) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*LLMResponse, error) {
	if state := GetExecutionState(ctx); state != nil {
		state.WithModelID(d.ModelID())
	}
	return d.LLM.Generate(ctx, prompt, options...)
}

// RetryConfig controls how transient provider failures are retried.
type RetryConfig struct {
	MaxAttempts    int           // Total attempts, including the first (default 3)
	InitialBackoff time.Duration // Backoff before the second attempt (default 500ms)
	MaxBackoff     time.Duration // Backoff ceiling (default 8s)
	Multiplier     float64       // Backoff growth factor (default 2.0)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2.0,
	}
}

// RetryLLM retries transient provider failures with jittered exponential
// backoff. Non-transient errors and malformed-output errors pass through
// untouched so callers keep their own bounded parse loops.
type RetryLLM struct {
	BaseDecorator
	config RetryConfig
}

func NewRetryLLM(base LLM, config RetryConfig) *RetryLLM {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 500 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 8 * time.Second
	}
	if config.Multiplier < 1 {
		config.Multiplier = 2.0
	}
	return &RetryLLM{
		BaseDecorator: BaseDecorator{LLM: base},
		config:        config,
	}
}

func (r *RetryLLM) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*LLMResponse, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, jitter(backoff)); err != nil {
				return nil, err
			}
			backoff = nextBackoff(backoff, r.config)
		}

		resp, err := r.LLM.Generate(ctx, prompt, options...)
		if err == nil {
			return resp, nil
		}
		if !errors.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.WithFields(
		errors.Wrap(lastErr, errors.ProviderError, "provider failed after retries"),
		errors.Fields{"attempts": r.config.MaxAttempts, "model": r.ModelID()})
}

func (r *RetryLLM) GenerateWithJSON(ctx context.Context, prompt string, options ...GenerateOption) (map[string]interface{}, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, jitter(backoff)); err != nil {
				return nil, err
			}
			backoff = nextBackoff(backoff, r.config)
		}

		resp, err := r.LLM.GenerateWithJSON(ctx, prompt, options...)
		if err == nil {
			return resp, nil
		}
		if !errors.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.WithFields(
		errors.Wrap(lastErr, errors.ProviderError, "provider failed after retries"),
		errors.Fields{"attempts": r.config.MaxAttempts, "model": r.ModelID()})
}

// jitter spreads retries out to avoid synchronized storms: half the backoff
// fixed, half random.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func nextBackoff(current time.Duration, config RetryConfig) time.Duration {
	next := time.Duration(float64(current) * config.Multiplier)
	if next > config.MaxBackoff {
		return config.MaxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.CheckContext(ctx, "retry backoff")
	case <-timer.C:
		return nil
	}
}

// Chain composes multiple decorators around a base LLM.
func Chain(base LLM, decorators ...func(LLM) LLM) LLM {
	result := base
	for _, d := range decorators {
		result = d(result)
	}
	return result
}
