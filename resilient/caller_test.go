package resilient

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestCaller(maxAttempts int) (*Caller, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &Caller{
		MaxAttempts: maxAttempts,
		Backoff:     func(int) time.Duration { return time.Millisecond },
		Logger:      logger,
	}, &buf
}

func countWarnings(buf *bytes.Buffer) int {
	return strings.Count(buf.String(), `"level":"WARN"`)
}

func TestDo_SucceedsAfterTwoFailures(t *testing.T) {
	caller, logs := newTestCaller(3)

	calls := 0
	result, err := Do(context.Background(), caller, Call{Op: "places.search", Target: "textsearch"}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, countWarnings(logs))
	assert.Contains(t, logs.String(), `"op":"places.search"`)
	assert.Contains(t, logs.String(), `"target":"textsearch"`)
	assert.Contains(t, logs.String(), `"attempt":2`)
}

func TestDo_PropagatesFinalError(t *testing.T) {
	caller, logs := newTestCaller(3)
	boom := errors.New("service unavailable")

	calls := 0
	_, err := Do(context.Background(), caller, Call{Op: "geocode"}, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, countWarnings(logs))
	assert.Contains(t, err.Error(), "geocode failed after 3 attempts")
}

func TestDo_PermanentErrorStopsRetrying(t *testing.T) {
	caller, _ := newTestCaller(5)
	denied := errors.New("REQUEST_DENIED")

	calls := 0
	_, err := Do(context.Background(), caller, Call{Op: "places.search"}, func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(denied)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	caller, _ := newTestCaller(3)
	caller.Backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Do(ctx, caller, Call{Op: "weather"}, func(ctx context.Context) (int, error) {
		return 0, errors.New("timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestDo_LimiterWaitCutShortByContext(t *testing.T) {
	caller, _ := newTestCaller(3)
	caller.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, caller.Limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	_, err := Do(ctx, caller, Call{Op: "places.search"}, func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "places.search: rate limiter")
	assert.Zero(t, calls)
}

func TestDo_LimiterPacesAttempts(t *testing.T) {
	caller, _ := newTestCaller(3)
	caller.Limiter = rate.NewLimiter(rate.Inf, 1)

	calls := 0
	_, err := Do(context.Background(), caller, Call{Op: "geocode"}, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("connection reset")
		}
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_NilCallerUsesDefaults(t *testing.T) {
	result, err := Do(context.Background(), nil, Call{Op: "noop"}, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(time.Second)
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 8*time.Second, backoff(3))
}
