package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const analysisResultColumns = `id, request_id, repo_url, analyst_key, status, ranking, summary, pros, cons, stars,
	tech_stack, manifest_found, error, judge_verdict, judge_reasoning, created_at, updated_at`

type AnalysisResultRepository struct {
	db dbtx
}

func NewAnalysisResultRepository(pool *pgxpool.Pool) *AnalysisResultRepository {
	return &AnalysisResultRepository{db: pool}
}

func NewAnalysisResultRepositoryWithTx(tx pgx.Tx) *AnalysisResultRepository {
	return &AnalysisResultRepository{db: tx}
}

// InsertAnalyzing claims the (request, repo) pair. It returns false when a row
// for the pair already exists, in which case nothing is written.
func (r *AnalysisResultRepository) InsertAnalyzing(ctx context.Context, res *domain.RepoAnalysisResult) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO repo_analysis_results (id, request_id, repo_url, analyst_key, status, stars, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (request_id, repo_url) DO NOTHING`,
		res.ID, res.RequestID, res.RepoURL, res.AnalystKey, res.Status, res.Stars, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

// Complete stores a finished analysis on a row still in analyzing.
func (r *AnalysisResultRepository) Complete(ctx context.Context, res *domain.RepoAnalysisResult) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE repo_analysis_results
		 SET status = $1, ranking = $2, summary = $3, pros = $4, cons = $5, stars = $6,
		     tech_stack = $7, manifest_found = $8, error = NULL, updated_at = $9
		 WHERE id = $10 AND status = $11`,
		domain.AnalysisStatusComplete, res.Ranking, res.Summary, nonNilStrings(res.Pros), nonNilStrings(res.Cons), res.Stars,
		nonNilStrings(res.TechStack), res.ManifestFound, time.Now().UTC(), res.ID, domain.AnalysisStatusAnalyzing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAnalysisNotFound
	}
	return nil
}

// MarkError records a per-analyst failure on a row still in analyzing.
func (r *AnalysisResultRepository) MarkError(ctx context.Context, id string, message string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE repo_analysis_results SET status = $1, error = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		domain.AnalysisStatusError, message, time.Now().UTC(), id, domain.AnalysisStatusAnalyzing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAnalysisNotFound
	}
	return nil
}

func (r *AnalysisResultRepository) GetByID(ctx context.Context, id string) (*domain.RepoAnalysisResult, error) {
	res, err := scanAnalysisResult(r.db.QueryRow(ctx,
		`SELECT `+analysisResultColumns+` FROM repo_analysis_results WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, err
	}
	return res, nil
}

func (r *AnalysisResultRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.RepoAnalysisResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+analysisResultColumns+` FROM repo_analysis_results
		 WHERE request_id = $1
		 ORDER BY created_at ASC, repo_url ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnalysisResultRows(rows)
}

// ListJudged returns the results the judge approved for a request, best first.
func (r *AnalysisResultRepository) ListJudged(ctx context.Context, requestID string) ([]*domain.RepoAnalysisResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+analysisResultColumns+` FROM repo_analysis_results
		 WHERE request_id = $1 AND judge_verdict = $2
		 ORDER BY ranking DESC, stars DESC, repo_url ASC`,
		requestID, domain.JudgeVerdictApproved,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnalysisResultRows(rows)
}

func (r *AnalysisResultRepository) SetJudgeVerdict(ctx context.Context, id string, verdict domain.JudgeVerdict, reasoning string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE repo_analysis_results SET judge_verdict = $1, judge_reasoning = $2, updated_at = $3 WHERE id = $4`,
		verdict, nullableString(reasoning), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAnalysisNotFound
	}
	return nil
}

func (r *AnalysisResultRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE repo_analysis_results SET embedding = $1, updated_at = $2 WHERE id = $3`,
		pgvector.NewVector(embedding), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAnalysisNotFound
	}
	return nil
}

// SearchByEmbedding ranks a request's complete results by cosine similarity.
func (r *AnalysisResultRepository) SearchByEmbedding(ctx context.Context, requestID string, embedding []float32, limit int) ([]*service.ScoredResult, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+analysisResultColumns+`, 1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM repo_analysis_results
		 WHERE request_id = $2 AND status = $3 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(embedding), requestID, domain.AnalysisStatusComplete, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*service.ScoredResult, 0)
	for rows.Next() {
		var score float64
		res, err := scanAnalysisResultWith(rows, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, &service.ScoredResult{Result: res, Score: score})
	}
	return results, rows.Err()
}

func scanAnalysisResultRows(rows pgx.Rows) ([]*domain.RepoAnalysisResult, error) {
	results := make([]*domain.RepoAnalysisResult, 0)
	for rows.Next() {
		res, err := scanAnalysisResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func scanAnalysisResult(row pgx.Row) (*domain.RepoAnalysisResult, error) {
	return scanAnalysisResultWith(row)
}

func scanAnalysisResultWith(row pgx.Row, extra ...any) (*domain.RepoAnalysisResult, error) {
	var res domain.RepoAnalysisResult
	var ranking pgtype.Int4
	var summary, errMsg, reasoning pgtype.Text
	dest := []any{
		&res.ID, &res.RequestID, &res.RepoURL, &res.AnalystKey, &res.Status, &ranking, &summary,
		&res.Pros, &res.Cons, &res.Stars, &res.TechStack, &res.ManifestFound, &errMsg,
		&res.JudgeVerdict, &reasoning, &res.CreatedAt, &res.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if ranking.Valid {
		res.Ranking = int(ranking.Int32)
	}
	res.Summary = summary.String
	res.Error = errMsg.String
	res.JudgeReasoning = reasoning.String
	return &res, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
