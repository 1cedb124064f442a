//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxRunner_CommitsReviewBatchWithTransition(t *testing.T) {
	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)
	requests := NewSearchRequestRepository(pool)
	req := createRequest(ctx, t, requests, domain.RequestStatusSampling)

	item, err := domain.NewHitlReviewItem(uuid.NewString(), req.ID, domain.Candidate{URL: "https://github.com/a/one", FullName: "a/one"}, testNow())
	require.NoError(t, err)

	err = NewTxRunner(pool).WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.ReviewItems().CreateBatch(ctx, []*domain.HitlReviewItem{item}); err != nil {
			return err
		}
		return repos.Requests().TransitionStatus(ctx, req.ID, domain.RequestStatusSampling, domain.RequestStatusHITL)
	})
	require.NoError(t, err)

	got, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusHITL, got.Status)

	pending, err := NewReviewItemRepository(pool).CountPending(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestTxRunner_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)
	requests := NewSearchRequestRepository(pool)
	req := createRequest(ctx, t, requests, domain.RequestStatusSampling)

	item, err := domain.NewHitlReviewItem(uuid.NewString(), req.ID, domain.Candidate{URL: "https://github.com/a/one"}, testNow())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = NewTxRunner(pool).WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.ReviewItems().CreateBatch(ctx, []*domain.HitlReviewItem{item}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	pending, err := NewReviewItemRepository(pool).CountPending(ctx, req.ID)
	require.NoError(t, err)
	assert.Zero(t, pending)

	got, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusSampling, got.Status)
}

func TestTxRunner_RerunsSerializationFailures(t *testing.T) {
	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)

	calls := 0
	err := NewTxRunner(pool).WithTx(ctx, func(repos service.TxRepositories) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: serializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = NewTxRunner(pool).WithTx(ctx, func(repos service.TxRepositories) error {
		calls++
		return &pgconn.PgError{Code: deadlockDetected}
	})
	require.Error(t, err)
	assert.Equal(t, defaultTxAttempts, calls)
}
