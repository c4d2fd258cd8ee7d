package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffStrategy_Success(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(3, 10*time.Millisecond, 100*time.Millisecond)

	err := strategy.Execute(context.Background(), "noop", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestExponentialBackoffStrategy_SuccessAfterRetries(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(5, time.Millisecond, 10*time.Millisecond)

	attempts := 0
	err := strategy.Execute(context.Background(), "connect", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestExponentialBackoffStrategy_NonRecoverableError(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(5, time.Millisecond, 10*time.Millisecond)

	attempts := 0
	err := strategy.Execute(context.Background(), "connect", func(ctx context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestExponentialBackoffStrategy_MaxRetriesExceeded(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(3, time.Millisecond, 10*time.Millisecond)

	attempts := 0
	refused := errors.New("connection refused")
	err := strategy.Execute(context.Background(), "connect", func(ctx context.Context) error {
		attempts++
		return refused
	})
	require.ErrorIs(t, err, refused)
	require.Equal(t, 4, attempts, "1 initial + 3 retries")
}

func TestExponentialBackoffStrategy_ContextCancellation(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(10, 100*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := strategy.Execute(ctx, "connect", func(ctx context.Context) error {
		attempts++
		return errors.New("i/o timeout")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, attempts, 1)
}

func TestNoRetryStrategy(t *testing.T) {
	attempts := 0
	err := NewStrategy(Config{Enabled: false}).Execute(context.Background(), "connect", func(ctx context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"wrapped refused", fmt.Errorf("failed to connect: %w", errors.New("connection refused")), true},
		{"server starting up", &pgconn.PgError{Code: "57P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"invalid data", errors.New("invalid data format"), false},
		{"permission denied", errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, IsRecoverable(tt.err))
		})
	}
}
