package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jonathan/unit-planner/internal/llm"
	"github.com/jonathan/unit-planner/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaGuard_RejectsOverLimit(t *testing.T) {
	inner := llmtest.New(llmtest.Texts("a", "b", "c")...)
	store := llm.NewMemoryUsageStore()
	guard := llm.NewQuotaGuard(inner, store, 2, nil, nil)
	ctx := context.Background()

	_, err := guard.Complete(ctx, "1", llm.Options{})
	require.NoError(t, err)
	_, err = guard.Complete(ctx, "2", llm.Options{})
	require.NoError(t, err)

	_, err = guard.Complete(ctx, "3", llm.Options{})
	var quotaErr *llm.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(2), quotaErr.Limit)
	var genErr *llm.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.False(t, llm.IsTransient(err))
	assert.Len(t, inner.Calls(), 2)

	period := quotaErr.Period
	count, err := store.AddUsage(ctx, period, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestQuotaGuard_RefundsTransientFailures(t *testing.T) {
	inner := llmtest.New(
		llmtest.Reply{Err: &llm.GenerationError{Message: "busy", StatusCode: 429}},
		llmtest.Reply{Err: &llm.GenerationError{Message: "bad", StatusCode: 400}},
	)
	store := llm.NewMemoryUsageStore()
	guard := llm.NewQuotaGuard(inner, store, 10, nil, nil)
	ctx := context.Background()

	_, err := guard.Complete(ctx, "p", llm.Options{})
	require.Error(t, err)
	_, err = guard.Complete(ctx, "p", llm.Options{})
	require.Error(t, err)

	calls := inner.Calls()
	require.Len(t, calls, 2)
	count, err := store.AddUsage(ctx, llm.Period(timeNow()), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "only the permanent failure is counted")
}

type failingStore struct{}

func (failingStore) AddUsage(context.Context, string, int64) (int64, error) {
	return 0, errors.New("store down")
}

func TestQuotaGuard_StoreFailure(t *testing.T) {
	inner := llmtest.New(llmtest.Texts("a")...)
	guard := llm.NewQuotaGuard(inner, failingStore{}, 10, nil, nil)
	_, err := guard.Complete(context.Background(), "p", llm.Options{})
	var genErr *llm.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "usage tracking unavailable", genErr.Message)
	assert.Empty(t, inner.Calls())
}

func TestQuotaGuard_BehindRetryingClient(t *testing.T) {
	inner := llmtest.New(
		llmtest.Reply{Err: &llm.GenerationError{Message: "busy", StatusCode: 503}},
		llmtest.Reply{Text: "ok"},
	)
	store := llm.NewMemoryUsageStore()
	client := llm.NewRetryingClient(llm.NewQuotaGuard(inner, store, 10, nil, nil), llm.DefaultPolicy(), noSleep())

	text, err := client.Complete(context.Background(), "p", llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	count, _ := store.AddUsage(context.Background(), llm.Period(timeNow()), 0)
	assert.Equal(t, int64(1), count)
}
