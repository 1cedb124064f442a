package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const enrichmentColumns = `id, request_id, result_id, repo_url, reasoning, instruction, status, retries, error,
	enriched_summary, enriched_ranking, created_at, processed_at`

type EnrichmentRepository struct {
	db dbtx
}

func NewEnrichmentRepository(pool *pgxpool.Pool) *EnrichmentRepository {
	return &EnrichmentRepository{db: pool}
}

func NewEnrichmentRepositoryWithTx(tx pgx.Tx) *EnrichmentRepository {
	return &EnrichmentRepository{db: tx}
}

// Create records an enrichment. A second enrichment for the same result is ignored.
func (r *EnrichmentRepository) Create(ctx context.Context, e *domain.Enrichment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO enrichments (id, request_id, result_id, repo_url, reasoning, instruction, status, retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (result_id) DO NOTHING`,
		e.ID, e.RequestID, e.ResultID, e.RepoURL, e.Reasoning, e.Instruction, e.Status, e.Retries, e.CreatedAt,
	)
	return err
}

func (r *EnrichmentRepository) GetByID(ctx context.Context, id string) (*domain.Enrichment, error) {
	e, err := scanEnrichment(r.db.QueryRow(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichments WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEnrichmentNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *EnrichmentRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.Enrichment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichments WHERE request_id = $1 ORDER BY created_at ASC, id ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEnrichmentRows(rows)
}

// ClaimPending moves up to limit pending enrichments to processing and returns them.
func (r *EnrichmentRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.Enrichment, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM enrichments
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE enrichments
		 SET status = $3,
		     processed_at = NULL
		 FROM cte
		 WHERE enrichments.id = cte.id
		 RETURNING enrichments.id, enrichments.request_id, enrichments.result_id, enrichments.repo_url,
		           enrichments.reasoning, enrichments.instruction, enrichments.status, enrichments.retries,
		           enrichments.error, enrichments.enriched_summary, enrichments.enriched_ranking,
		           enrichments.created_at, enrichments.processed_at`,
		domain.EnrichmentStatusPending, limit, domain.EnrichmentStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEnrichmentRows(rows)
}

func (r *EnrichmentRepository) GetPendingEnrichments(ctx context.Context) ([]*domain.Enrichment, error) {
	return r.ClaimPending(ctx, 20)
}

func (r *EnrichmentRepository) UpdateEnrichmentStatus(ctx context.Context, id string, status domain.EnrichmentStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.EnrichmentStatusCompleted || status == domain.EnrichmentStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE enrichments SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEnrichmentNotFound
	}
	return nil
}

func (r *EnrichmentRepository) CompleteEnrichment(ctx context.Context, id string, outcome domain.EnrichmentOutcome) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE enrichments
		 SET status = $1, error = NULL, enriched_summary = $2, enriched_ranking = $3, processed_at = $4
		 WHERE id = $5`,
		domain.EnrichmentStatusCompleted, outcome.Summary, nullableInt(outcome.Ranking), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEnrichmentNotFound
	}
	return nil
}

func (r *EnrichmentRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE enrichments SET retries = retries + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEnrichmentNotFound
	}
	return nil
}

func scanEnrichmentRows(rows pgx.Rows) ([]*domain.Enrichment, error) {
	out := make([]*domain.Enrichment, 0)
	for rows.Next() {
		e, err := scanEnrichment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEnrichment(row pgx.Row) (*domain.Enrichment, error) {
	var e domain.Enrichment
	var errMsg, summary pgtype.Text
	var ranking pgtype.Int4
	if err := row.Scan(&e.ID, &e.RequestID, &e.ResultID, &e.RepoURL, &e.Reasoning, &e.Instruction, &e.Status,
		&e.Retries, &errMsg, &summary, &ranking, &e.CreatedAt, &e.ProcessedAt); err != nil {
		return nil, err
	}
	e.Error = errMsg.String
	e.EnrichedSummary = summary.String
	if ranking.Valid {
		e.EnrichedRanking = int(ranking.Int32)
	}
	return &e, nil
}
