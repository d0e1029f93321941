// Package retry executes operations with exponential backoff and jitter.
// Retry decisions are delegated to the error classifier so transient faults
// (locks, interrupted syscalls) are retried and permanent ones fail fast.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/model"
)

// Policy configures one retry loop.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	JitterFraction float64
}

// DefaultPolicy matches the general-purpose profile: up to 5 attempts with
// backoff growing from 1s toward 60s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// DatabasePolicy is the tighter profile for database operations, where lock
// contention clears quickly or not at all.
func DatabasePolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = time.Second
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

// Result describes a completed retry loop.
type Result struct {
	Attempts  int
	Elapsed   time.Duration
	LastError error
	// LastAnalysis is the classification of the final error; zero-valued on
	// success.
	LastAnalysis model.ErrorAnalysis
}

// Executor runs operations under a retry policy.
type Executor struct {
	policy     Policy
	classifier *errclass.Classifier
	log        zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(policy Policy, classifier *errclass.Classifier, log zerolog.Logger) *Executor {
	return &Executor{
		policy:     policy.normalized(),
		classifier: classifier,
		log:        log,
	}
}

// Do runs op until it succeeds, fails permanently, exhausts the attempt
// budget, or ctx is cancelled. The returned Result is populated in every
// case.
func (e *Executor) Do(ctx context.Context, name string, op func(ctx context.Context) error) (*Result, error) {
	start := time.Now()
	result := &Result{}
	backoff := e.policy.InitialBackoff

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := op(ctx)
		if err == nil {
			result.Elapsed = time.Since(start)
			if attempt > 1 {
				e.log.Info().Str("operation", name).Int("attempt", attempt).
					Msg("operation succeeded after retries")
			}
			return result, nil
		}

		result.LastError = err
		result.LastAnalysis = e.classifier.Classify(err, map[string]string{"operation": name})

		if ctx.Err() != nil {
			result.Elapsed = time.Since(start)
			return result, ctx.Err()
		}

		if !result.LastAnalysis.Retryable {
			result.Elapsed = time.Since(start)
			e.log.Debug().Str("operation", name).Str("kind", string(result.LastAnalysis.Kind)).
				Err(err).Msg("permanent failure, not retrying")
			return result, err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		wait := e.jittered(backoff)
		e.log.Debug().Str("operation", name).Int("attempt", attempt).
			Dur("backoff", wait).Err(err).Msg("retrying after backoff")

		select {
		case <-ctx.Done():
			result.Elapsed = time.Since(start)
			return result, ctx.Err()
		case <-time.After(wait):
		}

		backoff = e.nextBackoff(backoff)
	}

	result.Elapsed = time.Since(start)
	return result, fmt.Errorf("operation %s failed after %d attempts: %w",
		name, result.Attempts, result.LastError)
}

func (e *Executor) nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * e.policy.Multiplier)
	if next > e.policy.MaxBackoff {
		next = e.policy.MaxBackoff
	}
	return next
}

// jittered spreads the wait by +/- JitterFraction so concurrent retriers
// do not stampede.
func (e *Executor) jittered(d time.Duration) time.Duration {
	if e.policy.JitterFraction == 0 {
		return d
	}
	delta := float64(d) * e.policy.JitterFraction
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
