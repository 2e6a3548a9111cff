package extract

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds how long and how often an extraction is attempted.
type RetryPolicy struct {
	Timeout           time.Duration // per attempt; zero disables the deadline
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:           60 * time.Second,
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retrying wraps an Extractor with a per-attempt timeout, exponential
// backoff, an optional request rate limit and a cap on concurrent calls.
type Retrying struct {
	next    Extractor
	policy  RetryPolicy
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	logger  *slog.Logger
	after   func(time.Duration) <-chan time.Time
}

type RetryOption func(*Retrying)

// WithRequestsPerMinute throttles attempts. Zero or negative leaves them
// unthrottled.
func WithRequestsPerMinute(n int) RetryOption {
	return func(r *Retrying) {
		if n > 0 {
			r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// WithMaxConcurrent limits how many extractions run at once through this
// wrapper.
func WithMaxConcurrent(n int) RetryOption {
	return func(r *Retrying) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithLogger(logger *slog.Logger) RetryOption {
	return func(r *Retrying) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRetrying(next Extractor, policy RetryPolicy, opts ...RetryOption) *Retrying {
	if policy.BackoffMultiplier < 1 {
		policy.BackoffMultiplier = 2.0
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	r := &Retrying{
		next:   next,
		policy: policy,
		logger: slog.Default(),
		after:  time.After,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrying) Extract(ctx context.Context, storyID, text string) (*Batch, error) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, &Error{Cause: err}
		}
		defer r.sem.Release(1)
	}

	var lastErr error
	attempts := 0
	backoff := r.policy.InitialBackoff

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, &Error{Cause: err, Attempts: attempts}
			}
		}

		attempts++
		batch, err := r.attempt(ctx, storyID, text)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("extraction succeeded after retry", "story", storyID, "attempt", attempts)
			}
			return batch, nil
		}
		lastErr = err

		if IsPermanent(err) {
			r.logger.Warn("extraction failed with non-retriable error", "story", storyID, "error", err)
			break
		}
		if ctx.Err() != nil || attempt == r.policy.MaxRetries {
			break
		}

		r.logger.Warn("extraction failed, retrying",
			"story", storyID,
			"attempt", attempts,
			"max_attempts", r.policy.MaxRetries+1,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-r.after(backoff):
		case <-ctx.Done():
			return nil, &Error{Cause: ctx.Err(), Attempts: attempts}
		}
		backoff = time.Duration(float64(backoff) * r.policy.BackoffMultiplier)
		if r.policy.MaxBackoff > 0 && backoff > r.policy.MaxBackoff {
			backoff = r.policy.MaxBackoff
		}
	}

	return nil, &Error{Cause: lastErr, Attempts: attempts}
}

func (r *Retrying) attempt(ctx context.Context, storyID, text string) (*Batch, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}
	batch, err := r.next.Extract(ctx, storyID, text)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		batch = &Batch{}
	}
	return batch, nil
}
