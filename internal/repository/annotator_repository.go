package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liftlabs/liftapp-backend/internal/model"
)

// AnnotatorRepository handles annotator data access.
type AnnotatorRepository struct {
	pool *pgxpool.Pool
}

// NewAnnotatorRepository creates a new AnnotatorRepository.
func NewAnnotatorRepository(pool *pgxpool.Pool) *AnnotatorRepository {
	return &AnnotatorRepository{pool: pool}
}

// GetOrCreateByExternalID returns the annotator for the given external
// identifier, creating the record on first login. The single-statement
// upsert makes concurrent first logins with the same identifier converge
// on one row instead of racing a lookup-then-insert.
func (r *AnnotatorRepository) GetOrCreateByExternalID(ctx context.Context, externalID string) (*model.Annotator, error) {
	a := &model.Annotator{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO annotators (external_id)
		 VALUES ($1)
		 ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		 RETURNING id, external_id, created_at, overall_completed_at`,
		externalID,
	).Scan(&a.ID, &a.ExternalID, &a.CreatedAt, &a.OverallCompletedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an annotator by database ID.
func (r *AnnotatorRepository) GetByID(ctx context.Context, id int) (*model.Annotator, error) {
	a := &model.Annotator{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, external_id, created_at, overall_completed_at
		 FROM annotators WHERE id = $1`, id,
	).Scan(&a.ID, &a.ExternalID, &a.CreatedAt, &a.OverallCompletedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAll retrieves every annotator, oldest first. The roster service
// joins these with bulk-fetched completion records.
func (r *AnnotatorRepository) ListAll(ctx context.Context) ([]model.Annotator, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, external_id, created_at, overall_completed_at
		 FROM annotators ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var annotators []model.Annotator
	for rows.Next() {
		var a model.Annotator
		if err := rows.Scan(&a.ID, &a.ExternalID, &a.CreatedAt, &a.OverallCompletedAt); err != nil {
			return nil, err
		}
		annotators = append(annotators, a)
	}
	return annotators, rows.Err()
}

// SetOverallCompleted stamps the annotator's overall completion date if
// not already set.
func (r *AnnotatorRepository) SetOverallCompleted(ctx context.Context, id int, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE annotators SET overall_completed_at = $1
		 WHERE id = $2 AND overall_completed_at IS NULL`,
		at, id)
	return err
}
