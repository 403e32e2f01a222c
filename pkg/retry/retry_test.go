package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type flakyError struct{ retryable bool }

func (e flakyError) Error() string     { return "flaky" }
func (e flakyError) IsRetryable() bool { return e.retryable }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Equal(t, 5, cfg.MaxSameErrorType)
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first time", 0, 1, false},
		{"succeeds after retries", 2, 3, false},
		{"exhausts retries", 10, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastConfig(), func() error {
				calls++
				if calls <= tt.failFirst {
					return fmt.Errorf("attempt %d failed", calls)
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.EqualError(t, err, "attempt 4 failed")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func() error {
			calls++
			return errors.New("down")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestBackoff_RespectsMaxDelay(t *testing.T) {
	b := &backoff{cfg: &Config{Multiplier: 10, MaxDelay: 3 * time.Millisecond}, delay: time.Millisecond}

	require.NoError(t, b.wait(context.Background()))
	assert.Equal(t, 3*time.Millisecond, b.delay)
	require.NoError(t, b.wait(context.Background()))
	assert.Equal(t, 3*time.Millisecond, b.delay)
}

func TestApplyJitter(t *testing.T) {
	assert.Equal(t, time.Second, applyJitter(time.Second, 0))
	for i := 0; i < 50; i++ {
		d := applyJitter(time.Second, 0.1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("connection refused")
		}
		return "pool", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "pool", got)
	assert.Equal(t, 2, calls)
}

func TestDoWithResult_NilConfigUsesDefaults(t *testing.T) {
	got, err := DoWithResult(context.Background(), nil, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{"postgres starting", errors.New("FATAL: the database system is starting up"), true},
		{"too many connections", errors.New("Error 1040: Too many connections"), true},
		{"wrapped timeout", fmt.Errorf("connect: %w", errors.New("i/o timeout")), true},
		{"auth failure", errors.New("password authentication failed for user"), false},
		{"unknown database", errors.New(`database "nope" does not exist`), false},
		{"context cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), false},
		{"explicit retryable", flakyError{retryable: true}, true},
		{"explicit permanent", fmt.Errorf("wrapped: %w", flakyError{retryable: false}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestDoIfRetryable(t *testing.T) {
	t.Run("permanent error returns immediately", func(t *testing.T) {
		calls := 0
		err := DoIfRetryable(context.Background(), fastConfig(), func() error {
			calls++
			return errors.New("password authentication failed")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("transient error is retried", func(t *testing.T) {
		calls := 0
		err := DoIfRetryable(context.Background(), fastConfig(), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted retries return last error", func(t *testing.T) {
		calls := 0
		err := DoIfRetryable(context.Background(), fastConfig(), func() error {
			calls++
			return errors.New("no such host")
		})
		assert.EqualError(t, err, "no such host")
		assert.Equal(t, 4, calls)
	})

	t.Run("repeated error type escalates", func(t *testing.T) {
		cfg := fastConfig()
		cfg.MaxRetries = 10
		cfg.MaxSameErrorType = 2

		calls := 0
		err := DoIfRetryable(context.Background(), cfg, func() error {
			calls++
			return errors.New("connection refused")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repeated error (2 times, type=connection)")
		assert.Equal(t, 2, calls)
	})
}

func TestClassifyErrorType(t *testing.T) {
	assert.Equal(t, "connection", classifyErrorType(errors.New("connection refused")))
	assert.Equal(t, "timeout", classifyErrorType(errors.New("i/o timeout")))
	assert.Equal(t, "dns", classifyErrorType(errors.New("lookup db: no such host")))
	assert.Equal(t, "capacity", classifyErrorType(errors.New("too many connections")))
	assert.Equal(t, "unknown", classifyErrorType(errors.New("boom")))
}
