package llm

import (
	"context"
	"sync"
	"time"

	"github.com/jonathan/unit-planner/internal/metrics"
	"go.uber.org/zap"
)

// DefaultMonthlyLimit is the default number of generation calls allowed per calendar month
const DefaultMonthlyLimit int64 = 500000

// UsageStore persists generation call counts per period ("2006-01")
type UsageStore interface {
	// AddUsage adds delta to the period's count and returns the new count
	AddUsage(ctx context.Context, period string, delta int64) (int64, error)
}

// MemoryUsageStore is a process-local UsageStore
type MemoryUsageStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryUsageStore creates an empty in-memory usage store
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{counts: make(map[string]int64)}
}

// AddUsage implements UsageStore
func (s *MemoryUsageStore) AddUsage(_ context.Context, period string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[period] += delta
	return s.counts[period], nil
}

// QuotaGuard counts calls against a monthly limit before forwarding them.
// A call that fails transiently is refunded, since the retry will be counted again.
type QuotaGuard struct {
	inner    Client
	store    UsageStore
	limit    int64
	now      func() time.Time
	logger   *zap.Logger
	recorder metrics.Recorder
}

// NewQuotaGuard wraps inner with a monthly usage limit; limit <= 0 uses DefaultMonthlyLimit
func NewQuotaGuard(inner Client, store UsageStore, limit int64, logger *zap.Logger, recorder metrics.Recorder) *QuotaGuard {
	if limit <= 0 {
		limit = DefaultMonthlyLimit
	}
	if store == nil {
		store = NewMemoryUsageStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaGuard{
		inner:    inner,
		store:    store,
		limit:    limit,
		now:      time.Now,
		logger:   logger,
		recorder: metrics.OrNoop(recorder),
	}
}

// Period returns the usage period for t
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Complete reserves one call, forwards the request and refunds transient failures
func (g *QuotaGuard) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	period := Period(g.now())
	count, err := g.store.AddUsage(ctx, period, 1)
	if err != nil {
		return "", &GenerationError{Message: "usage tracking unavailable", Cause: err}
	}
	if count > g.limit {
		g.refund(ctx, period)
		g.recorder.IncQuotaRejected()
		g.logger.Warn("monthly generation limit reached", zap.String("period", period), zap.Int64("limit", g.limit))
		return "", &GenerationError{
			Message: "monthly usage limit reached",
			Cause:   &QuotaExceededError{Period: period, Limit: g.limit},
		}
	}

	text, err := g.inner.Complete(ctx, prompt, opts)
	if err != nil && IsTransient(err) {
		g.refund(ctx, period)
	}
	return text, err
}

func (g *QuotaGuard) refund(ctx context.Context, period string) {
	if _, err := g.store.AddUsage(context.WithoutCancel(ctx), period, -1); err != nil {
		g.logger.Warn("failed to refund usage", zap.String("period", period), zap.Error(err))
	}
}

// Close closes the wrapped client
func (g *QuotaGuard) Close() error {
	return g.inner.Close()
}
