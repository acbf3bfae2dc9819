package llm

import (
	"context"
	"errors"
	"time"

	"github.com/jonathan/unit-planner/internal/metrics"
	"go.uber.org/zap"
)

// RetryingClient retries rate-limited (429) and overloaded (503) calls with backoff.
// Other failures are returned immediately.
type RetryingClient struct {
	inner    Client
	policy   Policy
	logger   *zap.Logger
	recorder metrics.Recorder
	sleep    func(context.Context, time.Duration) error
}

// RetryOption configures a RetryingClient
type RetryOption func(*RetryingClient)

// WithRetryLogger sets the logger used for retry warnings
func WithRetryLogger(l *zap.Logger) RetryOption {
	return func(c *RetryingClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryRecorder sets the metrics recorder
func WithRetryRecorder(r metrics.Recorder) RetryOption {
	return func(c *RetryingClient) { c.recorder = metrics.OrNoop(r) }
}

// WithSleep replaces the backoff wait (tests)
func WithSleep(sleep func(context.Context, time.Duration) error) RetryOption {
	return func(c *RetryingClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewRetryingClient wraps inner with transport-level backoff
func NewRetryingClient(inner Client, policy Policy, opts ...RetryOption) *RetryingClient {
	c := &RetryingClient{
		inner:    inner,
		policy:   policy,
		logger:   zap.NewNop(),
		recorder: metrics.NoopRecorder{},
		sleep:    SleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete calls the wrapped client, retrying transient failures
func (c *RetryingClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	for retry := 0; ; retry++ {
		text, err := c.inner.Complete(ctx, prompt, opts)
		if err == nil {
			return text, nil
		}
		if !IsTransient(err) || retry >= c.policy.MaxRetries {
			return "", err
		}

		var genErr *GenerationError
		errors.As(err, &genErr)
		delay := c.policy.Delay(retry + 1)
		c.logger.Warn("generation service busy, retrying",
			zap.Int("status", genErr.StatusCode),
			zap.Duration("backoff", delay),
			zap.Int("retries_left", c.policy.MaxRetries-retry),
			zap.Error(err))
		c.recorder.IncTransportRetry(genErr.StatusCode)

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return "", &GenerationError{Message: "retry interrupted", Cause: errors.Join(err, sleepErr)}
		}
	}
}

// Close closes the wrapped client
func (c *RetryingClient) Close() error {
	return c.inner.Close()
}
