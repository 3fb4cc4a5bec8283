package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liftlabs/liftapp-backend/internal/model"
)

// ErrNoImageAvailable is returned when every image for an exam has already
// been annotated by the requesting annotator.
var ErrNoImageAvailable = errors.New("no image available for assignment")

// ImageRepository handles document image data access, including the atomic
// assignment query.
type ImageRepository struct {
	pool *pgxpool.Pool
}

// NewImageRepository creates a new ImageRepository.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// AssignImage atomically picks an image for (exam, annotator). Exclusion
// policy: an image the annotator has ever submitted rows for is never
// reassigned to them; among the rest, the least-annotated image wins, with
// ties broken randomly. FOR UPDATE SKIP LOCKED keeps two concurrent
// assignments from landing on the same row.
func (r *ImageRepository) AssignImage(ctx context.Context, examID, annotatorID int) (*model.ImageTask, error) {
	task := &model.ImageTask{}
	err := r.pool.QueryRow(ctx,
		`SELECT i.id, i.exam_id, i.storage_path, i.original_filename
		 FROM images i
		 WHERE i.exam_id = $1
		   AND NOT EXISTS (
		     SELECT 1 FROM annotation_rows ar
		     WHERE ar.image_id = i.id AND ar.annotator_id = $2
		   )
		 ORDER BY (
		     SELECT COUNT(DISTINCT ar2.annotator_id)
		     FROM annotation_rows ar2 WHERE ar2.image_id = i.id
		 ) ASC, random()
		 LIMIT 1
		 FOR UPDATE OF i SKIP LOCKED`,
		examID, annotatorID,
	).Scan(&task.ImageID, &task.ExamID, &task.StoragePath, &task.OriginalFilename)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoImageAvailable
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Create inserts a new image record and returns its ID.
func (r *ImageRepository) Create(ctx context.Context, examID int, storagePath string, originalFilename *string) (int, error) {
	var id int
	err := r.pool.QueryRow(ctx,
		`INSERT INTO images (exam_id, storage_path, original_filename)
		 VALUES ($1, $2, $3) RETURNING id`,
		examID, storagePath, originalFilename,
	).Scan(&id)
	return id, err
}

// GetByID retrieves an image record.
func (r *ImageRepository) GetByID(ctx context.Context, id int) (*model.Image, error) {
	img := &model.Image{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, storage_path, original_filename, created_at
		 FROM images WHERE id = $1`, id,
	).Scan(&img.ID, &img.ExamID, &img.StoragePath, &img.OriginalFilename, &img.CreatedAt)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// UpdateStorage points an existing image record at a newly uploaded file.
func (r *ImageRepository) UpdateStorage(ctx context.Context, id int, storagePath string, originalFilename *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE images SET storage_path = $1, original_filename = $2 WHERE id = $3`,
		storagePath, originalFilename, id)
	return err
}
