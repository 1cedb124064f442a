package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reviewItemColumns = `id, request_id, repo_snapshot, verdict, rationale, status, created_at, reviewed_at`

type ReviewItemRepository struct {
	db dbtx
}

func NewReviewItemRepository(pool *pgxpool.Pool) *ReviewItemRepository {
	return &ReviewItemRepository{db: pool}
}

func NewReviewItemRepositoryWithTx(tx pgx.Tx) *ReviewItemRepository {
	return &ReviewItemRepository{db: tx}
}

// CreateBatch inserts the review items for one request. Call within a transaction
// so the batch lands together with the status change.
func (r *ReviewItemRepository) CreateBatch(ctx context.Context, items []*domain.HitlReviewItem) error {
	for _, item := range items {
		_, err := r.db.Exec(ctx,
			`INSERT INTO hitl_review_items (id, request_id, repo_snapshot, verdict, rationale, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.RequestID, []byte(item.RepoSnapshot), item.Verdict, item.Rationale, item.Status, item.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *ReviewItemRepository) GetByID(ctx context.Context, id string) (*domain.HitlReviewItem, error) {
	item, err := scanReviewItem(r.db.QueryRow(ctx,
		`SELECT `+reviewItemColumns+` FROM hitl_review_items WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReviewItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *ReviewItemRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error) {
	return r.list(ctx,
		`SELECT `+reviewItemColumns+` FROM hitl_review_items WHERE request_id = $1 ORDER BY created_at ASC, id ASC`,
		requestID,
	)
}

func (r *ReviewItemRepository) ListPendingByRequest(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error) {
	return r.list(ctx,
		`SELECT `+reviewItemColumns+` FROM hitl_review_items
		 WHERE request_id = $1 AND status = $2
		 ORDER BY created_at ASC, id ASC`,
		requestID, domain.ReviewStatusPending,
	)
}

// SubmitVerdict records the verdict on a pending item. An item is reviewed at most once.
func (r *ReviewItemRepository) SubmitVerdict(ctx context.Context, id string, verdict domain.Verdict, rationale string) (*domain.HitlReviewItem, error) {
	item, err := scanReviewItem(r.db.QueryRow(ctx,
		`UPDATE hitl_review_items
		 SET verdict = $1, rationale = $2, status = $3, reviewed_at = $4
		 WHERE id = $5 AND status = $6
		 RETURNING `+reviewItemColumns,
		verdict, rationale, domain.ReviewStatusReviewed, time.Now().UTC(), id, domain.ReviewStatusPending,
	))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrReviewAlreadySubmitted
}

func (r *ReviewItemRepository) CountPending(ctx context.Context, requestID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM hitl_review_items WHERE request_id = $1 AND status = $2`,
		requestID, domain.ReviewStatusPending,
	).Scan(&n)
	return n, err
}

func (r *ReviewItemRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.HitlReviewItem, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*domain.HitlReviewItem, 0)
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanReviewItem(row pgx.Row) (*domain.HitlReviewItem, error) {
	var item domain.HitlReviewItem
	var snapshot []byte
	if err := row.Scan(&item.ID, &item.RequestID, &snapshot, &item.Verdict, &item.Rationale, &item.Status, &item.CreatedAt, &item.ReviewedAt); err != nil {
		return nil, err
	}
	item.RepoSnapshot = snapshot
	return &item, nil
}
