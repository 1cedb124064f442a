package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	defaultTxAttempts = 3
)

// TxRunner runs a unit of work against repositories bound to one
// transaction. Units that lose a serialization or deadlock race are rerun
// from the start, so fn must not have side effects outside the database.
type TxRunner struct {
	pool     *pgxpool.Pool
	attempts int
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool, attempts: defaultTxAttempts}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = r.once(ctx, fn)
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
		log.Printf("repository: transaction conflict (attempt %d/%d): %v", attempt, r.attempts, err)
	}
	return err
}

func (r *TxRunner) once(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txRepos{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}

// txRepos hands out repositories sharing the transaction.
type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Requests() service.SearchRequestRepositoryInterface {
	return NewSearchRequestRepositoryWithTx(r.tx)
}

func (r txRepos) ReviewItems() service.ReviewItemRepositoryInterface {
	return NewReviewItemRepositoryWithTx(r.tx)
}

func (r txRepos) Results() service.AnalysisResultRepositoryInterface {
	return NewAnalysisResultRepositoryWithTx(r.tx)
}

func (r txRepos) Configurations() service.ConfigurationRepositoryInterface {
	return NewConfigurationRepositoryWithTx(r.tx)
}

func (r txRepos) Enrichments() service.EnrichmentRepositoryInterface {
	return NewEnrichmentRepositoryWithTx(r.tx)
}
