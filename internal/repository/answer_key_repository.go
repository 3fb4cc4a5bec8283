package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liftlabs/liftapp-backend/internal/model"
)

// AnswerKeyRepository handles administrator-authored answer rows.
type AnswerKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerKeyRepository creates a new AnswerKeyRepository.
func NewAnswerKeyRepository(pool *pgxpool.Pool) *AnswerKeyRepository {
	return &AnswerKeyRepository{pool: pool}
}

// ReplaceForImage swaps the full answer-row set for an image in one
// transaction: delete everything, insert the new rows. A full replace,
// not a diff.
func (r *AnswerKeyRepository) ReplaceForImage(ctx context.Context, imageID int, rowCells []map[string]string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM answer_rows WHERE image_id = $1`, imageID); err != nil {
		return fmt.Errorf("delete prior rows: %w", err)
	}

	for i, cells := range rowCells {
		raw, err := json.Marshal(cells)
		if err != nil {
			return fmt.Errorf("marshal row %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO answer_rows (image_id, row_no, cells) VALUES ($1, $2, $3)`,
			imageID, i+1, raw); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteForImage removes every answer row for an image. Idempotent.
func (r *AnswerKeyRepository) DeleteForImage(ctx context.Context, imageID int) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM answer_rows WHERE image_id = $1`, imageID)
	return err
}

// GetByImage returns the answer rows for an image in authored order.
func (r *AnswerKeyRepository) GetByImage(ctx context.Context, imageID int) ([]model.AnswerRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, image_id, row_no, cells
		 FROM answer_rows WHERE image_id = $1 ORDER BY row_no ASC`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AnswerRow
	for rows.Next() {
		var row model.AnswerRow
		var cells []byte
		if err := rows.Scan(&row.ID, &row.ImageID, &row.RowNo, &cells); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(cells, &row.Cells); err != nil {
			return nil, fmt.Errorf("unmarshal answer row %d: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListSummaries returns every image that carries an answer key, with its
// row count. Images whose answer rows were deleted no longer appear.
func (r *AnswerKeyRepository) ListSummaries(ctx context.Context) ([]model.AnswerKeySummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT i.id, i.exam_id, e.code, i.storage_path, i.original_filename,
		        COUNT(a.id), MAX(a.updated_at)
		 FROM images i
		 JOIN exams e ON e.id = i.exam_id
		 JOIN answer_rows a ON a.image_id = i.id
		 GROUP BY i.id, i.exam_id, e.code, i.storage_path, i.original_filename
		 ORDER BY i.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AnswerKeySummary
	for rows.Next() {
		var s model.AnswerKeySummary
		if err := rows.Scan(&s.ImageID, &s.ExamID, &s.ExamCode, &s.StoragePath,
			&s.OriginalFilename, &s.RowCount, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
