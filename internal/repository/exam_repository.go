package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository resolves catalog exam codes to their database keys.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetIDByCode resolves the numeric key for a catalog exam code.
func (r *ExamRepository) GetIDByCode(ctx context.Context, code string) (int, error) {
	var id int
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM exams WHERE code = $1`, code,
	).Scan(&id)
	return id, err
}

// ListCodes returns the code for every exam row, keyed by ID.
func (r *ExamRepository) ListCodes(ctx context.Context) (map[int]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code FROM exams`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make(map[int]string)
	for rows.Next() {
		var id int
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		codes[id] = code
	}
	return codes, rows.Err()
}
