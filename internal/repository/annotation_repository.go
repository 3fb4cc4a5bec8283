package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liftlabs/liftapp-backend/internal/model"
)

// AnnotationRepository handles submitted annotation row data access.
// (annotator_id, image_id, client_row_id) is the conflict key: repeated
// submissions overwrite rather than duplicate.
type AnnotationRepository struct {
	pool *pgxpool.Pool
}

// NewAnnotationRepository creates a new AnnotationRepository.
func NewAnnotationRepository(pool *pgxpool.Pool) *AnnotationRepository {
	return &AnnotationRepository{pool: pool}
}

// UpsertRows writes all rows in one transaction. Either every row lands or
// none does, so a failed submission leaves nothing half-written.
func (r *AnnotationRepository) UpsertRows(ctx context.Context, annotatorID, imageID int, rows []model.AnnotationRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		cells, err := json.Marshal(row.Cells)
		if err != nil {
			return fmt.Errorf("marshal cells: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO annotation_rows (annotator_id, image_id, client_row_id, cells)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (annotator_id, image_id, client_row_id) DO UPDATE
			 SET cells = EXCLUDED.cells, submitted_at = NOW()`,
			annotatorID, imageID, row.ClientRowID, cells,
		)
		if err != nil {
			return fmt.Errorf("upsert row %s: %w", row.ClientRowID, err)
		}
	}

	return tx.Commit(ctx)
}

// ListByAnnotatorAndImage returns previously-submitted rows, oldest first.
func (r *AnnotationRepository) ListByAnnotatorAndImage(ctx context.Context, annotatorID, imageID int) ([]model.AnnotationRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT client_row_id, cells
		 FROM annotation_rows
		 WHERE annotator_id = $1 AND image_id = $2
		 ORDER BY submitted_at ASC, client_row_id ASC`,
		annotatorID, imageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AnnotationRow
	for rows.Next() {
		var row model.AnnotationRow
		var cells []byte
		if err := rows.Scan(&row.ClientRowID, &cells); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(cells, &row.Cells); err != nil {
			return nil, fmt.Errorf("unmarshal cells for %s: %w", row.ClientRowID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
