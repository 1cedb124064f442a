package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/pagination"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const searchRequestColumns = `id, query, config, status, failure_message, created_at, updated_at`

type SearchRequestRepository struct {
	db dbtx
}

func NewSearchRequestRepository(pool *pgxpool.Pool) *SearchRequestRepository {
	return &SearchRequestRepository{db: pool}
}

func NewSearchRequestRepositoryWithTx(tx pgx.Tx) *SearchRequestRepository {
	return &SearchRequestRepository{db: tx}
}

func (r *SearchRequestRepository) Create(ctx context.Context, req *domain.SearchRequest) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO search_requests (id, query, config, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.Query, req.Config, req.Status, req.CreatedAt, req.UpdatedAt,
	)
	return err
}

func (r *SearchRequestRepository) GetByID(ctx context.Context, id string) (*domain.SearchRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+searchRequestColumns+` FROM search_requests WHERE id = $1`,
		id,
	)
	req, err := scanSearchRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// ListWithCursor pages newest first. An empty status lists every request.
func (r *SearchRequestRepository) ListWithCursor(ctx context.Context, status domain.RequestStatus, cursor *pagination.Cursor, limit int) (*service.RequestPageResult, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var (
		where []string
		args  []any
	)
	if status != "" {
		args = append(args, string(status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if cursor != nil {
		args = append(args, cursor.Timestamp, cursor.LastID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	query := `SELECT ` + searchRequestColumns + ` FROM search_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.SearchRequest
	for rows.Next() {
		req, err := scanSearchRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, hasMore := pagination.Trim(items, limit)
	page := &service.RequestPageResult{Items: items, HasMore: hasMore}
	if hasMore {
		last := items[len(items)-1]
		page.NextCursor = pagination.Cursor{LastID: last.ID, Timestamp: last.CreatedAt, Filter: string(status)}.Encode()
	}
	return page, nil
}

// TransitionStatus moves a request from one phase to the next only if it is still in from.
func (r *SearchRequestRepository) TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) error {
	if !from.CanTransitionTo(to) {
		return domain.ErrInvalidTransition
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE search_requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.explainMiss(ctx, id, domain.ErrInvalidTransition)
	}
	return nil
}

// ClaimContinue moves a request from hitl to expansion when none of its review
// items are pending. Readiness check and claim are one statement, so concurrent
// callers cannot both succeed.
func (r *SearchRequestRepository) ClaimContinue(ctx context.Context, id string) (*domain.SearchRequest, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE search_requests
		 SET status = $1, updated_at = $2
		 WHERE id = $3
		   AND status = $4
		   AND NOT EXISTS (
		       SELECT 1 FROM hitl_review_items
		       WHERE request_id = $3 AND status = $5
		   )
		 RETURNING `+searchRequestColumns,
		domain.RequestStatusExpansion, time.Now().UTC(), id, domain.RequestStatusHITL, domain.ReviewStatusPending,
	)
	req, err := scanSearchRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.RequestStatusHITL {
		return nil, domain.ErrContinueNotReady
	}
	return nil, domain.ErrInvalidTransition
}

// MarkFailed moves any non-terminal request to error with the given message.
func (r *SearchRequestRepository) MarkFailed(ctx context.Context, id string, message string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE search_requests
		 SET status = $1, failure_message = $2, updated_at = $3
		 WHERE id = $4 AND status NOT IN ($5, $6)`,
		domain.RequestStatusError, message, time.Now().UTC(), id,
		domain.RequestStatusCompleted, domain.RequestStatusError,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.explainMiss(ctx, id, domain.ErrInvalidTransition)
	}
	return nil
}

// ListResumable returns hitl requests with no pending review items, oldest first.
func (r *SearchRequestRepository) ListResumable(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT r.id
		 FROM search_requests r
		 WHERE r.status = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM hitl_review_items i
		       WHERE i.request_id = r.id AND i.status = $2
		   )
		 ORDER BY r.updated_at ASC
		 LIMIT $3`,
		domain.RequestStatusHITL, domain.ReviewStatusPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SearchRequestRepository) explainMiss(ctx context.Context, id string, otherwise error) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM search_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrRequestNotFound
	}
	return otherwise
}

func scanSearchRequest(row pgx.Row) (*domain.SearchRequest, error) {
	var req domain.SearchRequest
	var failure pgtype.Text
	if err := row.Scan(&req.ID, &req.Query, &req.Config, &req.Status, &failure, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	if failure.Valid {
		req.FailureMessage = failure.String
	}
	return &req, nil
}
