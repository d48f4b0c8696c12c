package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsRetryable(errors.New("boom")))
}

func TestWithRetryRetriesSerializationFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), nil, 3, func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetrySurfacesConflictWhenExhausted(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), nil, 2, func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 3, calls)
}

func TestWithRetryStopsOnDomainErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), nil, 3, func(context.Context) error {
		calls++
		return shared.ErrInsufficientStock
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, 1, calls)
}

func TestSourceURL(t *testing.T) {
	require.Equal(t, "file://migrations", sourceURL("migrations"))
	require.Equal(t, "file:///srv/migrations", sourceURL("file:///srv/migrations"))
}
