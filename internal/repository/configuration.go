package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const configurationColumns = `id, name, version, target_analysis_count, is_default, created_at, updated_at`

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type ConfigurationRepository struct {
	db dbtx
}

func NewConfigurationRepository(pool *pgxpool.Pool) *ConfigurationRepository {
	return &ConfigurationRepository{db: pool}
}

func NewConfigurationRepositoryWithTx(tx pgx.Tx) *ConfigurationRepository {
	return &ConfigurationRepository{db: tx}
}

func (r *ConfigurationRepository) Create(ctx context.Context, c *domain.SearchConfiguration) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO search_configurations (id, name, version, target_analysis_count, is_default, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Version, c.TargetAnalysisCount, c.IsDefault, c.CreatedAt, c.UpdatedAt,
	)
	return mapConfigurationErr(err)
}

func (r *ConfigurationRepository) GetByID(ctx context.Context, id string) (*domain.SearchConfiguration, error) {
	c, err := scanConfiguration(r.db.QueryRow(ctx,
		`SELECT `+configurationColumns+` FROM search_configurations WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConfigurationNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ConfigurationRepository) GetDefault(ctx context.Context) (*domain.SearchConfiguration, error) {
	c, err := scanConfiguration(r.db.QueryRow(ctx,
		`SELECT `+configurationColumns+` FROM search_configurations WHERE is_default LIMIT 1`,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConfigurationNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ConfigurationRepository) List(ctx context.Context) ([]*domain.SearchConfiguration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+configurationColumns+` FROM search_configurations ORDER BY name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]*domain.SearchConfiguration, 0)
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// Update writes the mutable fields and bumps the version. The new version is
// written back into c.
func (r *ConfigurationRepository) Update(ctx context.Context, c *domain.SearchConfiguration) error {
	err := r.db.QueryRow(ctx,
		`UPDATE search_configurations
		 SET name = $1, target_analysis_count = $2, is_default = $3, version = version + 1, updated_at = $4
		 WHERE id = $5
		 RETURNING version`,
		c.Name, c.TargetAnalysisCount, c.IsDefault, c.UpdatedAt, c.ID,
	).Scan(&c.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrConfigurationNotFound
		}
		return mapConfigurationErr(err)
	}
	return nil
}

// ClearDefault unsets the default flag on every configuration except keepID.
func (r *ConfigurationRepository) ClearDefault(ctx context.Context, keepID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE search_configurations SET is_default = FALSE, version = version + 1, updated_at = NOW()
		 WHERE is_default AND id <> $1`,
		keepID,
	)
	return err
}

func (r *ConfigurationRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM search_configurations WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConfigurationNotFound
	}
	return nil
}

func scanConfiguration(row pgx.Row) (*domain.SearchConfiguration, error) {
	var c domain.SearchConfiguration
	if err := row.Scan(&c.ID, &c.Name, &c.Version, &c.TargetAnalysisCount, &c.IsDefault, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func mapConfigurationErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrConfigurationAlreadyExists
	}
	return err
}
