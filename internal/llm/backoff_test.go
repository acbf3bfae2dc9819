package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Delay(t *testing.T) {
	exp := DefaultPolicy()
	assert.Equal(t, time.Duration(0), exp.Delay(0))
	assert.Equal(t, 3*time.Second, exp.Delay(1))
	assert.Equal(t, 6*time.Second, exp.Delay(2))
	assert.Equal(t, 12*time.Second, exp.Delay(3))
	assert.Equal(t, 48*time.Second, exp.Delay(10))
	assert.Equal(t, 48*time.Second, exp.Delay(100))

	linear := NewPolicy(BackoffLinear, time.Second, 10*time.Second, 5)
	assert.Equal(t, 3*time.Second, linear.Delay(3))
	assert.Equal(t, 10*time.Second, linear.Delay(20))

	fixed := NewPolicy(BackoffFixed, 2*time.Second, 0, 1)
	assert.Equal(t, 2*time.Second, fixed.Delay(4))
}

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy("bogus", 0, 0, -1)
	assert.Equal(t, DefaultPolicy(), p)
	require.NoError(t, p.Validate())

	capped := NewPolicy(BackoffFixed, time.Minute, time.Second, 0)
	assert.Equal(t, time.Second, capped.Initial)
	assert.Equal(t, 0, capped.MaxRetries)
}

func TestPolicy_Validate(t *testing.T) {
	assert.Error(t, Policy{Initial: 0, Max: time.Second}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: 0}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
}
