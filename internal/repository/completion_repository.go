package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liftlabs/liftapp-backend/internal/model"
)

// CompletionRepository handles completion record data access. One record
// exists per (annotator, exam); a retake overwrites it.
type CompletionRepository struct {
	pool *pgxpool.Pool
}

// NewCompletionRepository creates a new CompletionRepository.
func NewCompletionRepository(pool *pgxpool.Pool) *CompletionRepository {
	return &CompletionRepository{pool: pool}
}

// Upsert writes the completion record, last writer wins.
func (r *CompletionRepository) Upsert(ctx context.Context, rec *model.CompletionRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO completions
		   (annotator_id, exam_id, image_id, duration_seconds, status, completed_at, keystrokes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (annotator_id, exam_id) DO UPDATE
		 SET image_id = EXCLUDED.image_id,
		     duration_seconds = EXCLUDED.duration_seconds,
		     status = EXCLUDED.status,
		     completed_at = EXCLUDED.completed_at,
		     keystrokes = EXCLUDED.keystrokes,
		     score = NULL,
		     cells_correct = NULL,
		     cells_total = NULL`,
		rec.AnnotatorID, rec.ExamID, rec.ImageID,
		rec.DurationSeconds, rec.Status, rec.CompletedAt, rec.Keystrokes,
	)
	return err
}

// UpdateScore attaches scoring metrics to an existing completion record.
func (r *CompletionRepository) UpdateScore(ctx context.Context, annotatorID, examID int, score float64, cellsCorrect, cellsTotal int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE completions
		 SET score = $1, cells_correct = $2, cells_total = $3
		 WHERE annotator_id = $4 AND exam_id = $5`,
		score, cellsCorrect, cellsTotal, annotatorID, examID)
	return err
}

// ListByAnnotator retrieves all completion records for one annotator.
func (r *CompletionRepository) ListByAnnotator(ctx context.Context, annotatorID int) ([]model.CompletionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT annotator_id, exam_id, image_id, duration_seconds, status,
		        completed_at, keystrokes, score, cells_correct, cells_total
		 FROM completions
		 WHERE annotator_id = $1
		 ORDER BY completed_at ASC`, annotatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompletions(rows)
}

// ListPage fetches completion records in stable ID order, one page at a
// time. The roster service loops pages until a short read, sidestepping
// any single-query row cap when computing client-side aggregates.
func (r *CompletionRepository) ListPage(ctx context.Context, afterAnnotatorID, afterExamID, limit int) ([]model.CompletionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT annotator_id, exam_id, image_id, duration_seconds, status,
		        completed_at, keystrokes, score, cells_correct, cells_total
		 FROM completions
		 WHERE (annotator_id, exam_id) > ($1, $2)
		 ORDER BY annotator_id ASC, exam_id ASC
		 LIMIT $3`,
		afterAnnotatorID, afterExamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCompletions(rows)
}

// CountByAnnotator returns the number of completed exams for an annotator.
func (r *CompletionRepository) CountByAnnotator(ctx context.Context, annotatorID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM completions WHERE annotator_id = $1`, annotatorID,
	).Scan(&n)
	return n, err
}

func scanCompletions(rows pgx.Rows) ([]model.CompletionRecord, error) {
	var out []model.CompletionRecord
	for rows.Next() {
		var rec model.CompletionRecord
		if err := rows.Scan(&rec.AnnotatorID, &rec.ExamID, &rec.ImageID,
			&rec.DurationSeconds, &rec.Status, &rec.CompletedAt, &rec.Keystrokes,
			&rec.Score, &rec.CellsCorrect, &rec.CellsTotal); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
