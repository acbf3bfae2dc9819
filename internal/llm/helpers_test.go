package llm_test

import (
	"context"
	"time"

	"github.com/jonathan/unit-planner/internal/llm"
)

func timeNow() time.Time { return time.Now() }

func noSleep() llm.RetryOption {
	return llm.WithSleep(func(context.Context, time.Duration) error { return nil })
}
