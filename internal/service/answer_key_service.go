package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/rs/zerolog"
)

// ErrAnswerKeyImage is returned when a save request neither names an
// existing image nor carries an uploaded file.
var ErrAnswerKeyImage = errors.New("an image id or an uploaded file is required")

// AnswerKeyImages is the image-record slice the answer-key flow needs.
type AnswerKeyImages interface {
	Create(ctx context.Context, examID int, storagePath string, originalFilename *string) (int, error)
	UpdateStorage(ctx context.Context, id int, storagePath string, originalFilename *string) error
	GetByID(ctx context.Context, id int) (*model.Image, error)
}

// AnswerKeyRows persists the authored answer rows.
type AnswerKeyRows interface {
	ReplaceForImage(ctx context.Context, imageID int, rowCells []map[string]string) error
	DeleteForImage(ctx context.Context, imageID int) error
	GetByImage(ctx context.Context, imageID int) ([]model.AnswerRow, error)
	ListSummaries(ctx context.Context) ([]model.AnswerKeySummary, error)
}

// AnswerKeyService implements the admin answer-key flow. A save is a full
// replace: optional new image, image record create-or-update, then delete
// all prior answer rows and insert the new set.
type AnswerKeyService struct {
	exams  *ExamService
	images AnswerKeyImages
	rows   AnswerKeyRows
	log    zerolog.Logger
}

// NewAnswerKeyService creates a new AnswerKeyService.
func NewAnswerKeyService(exams *ExamService, images AnswerKeyImages, rows AnswerKeyRows, log zerolog.Logger) *AnswerKeyService {
	return &AnswerKeyService{
		exams:  exams,
		images: images,
		rows:   rows,
		log:    log.With().Str("component", "answer_key_service").Logger(),
	}
}

// Save stores the answer key. Returns the image ID the rows now belong to.
func (s *AnswerKeyService) Save(ctx context.Context, req model.SaveAnswerKeyRequest) (int, error) {
	exam, err := s.exams.ByCode(req.ExamCode)
	if err != nil {
		return 0, err
	}

	for i, cells := range req.Rows {
		for columnID := range cells {
			if !exam.HasColumn(columnID) {
				return 0, fmt.Errorf("row %d: %w: %s", i+1, ErrUnknownColumn, columnID)
			}
		}
	}

	examID, err := s.exams.ResolveID(ctx, req.ExamCode)
	if err != nil {
		return 0, err
	}

	var original *string
	if req.OriginalFilename != "" {
		original = &req.OriginalFilename
	}

	imageID := req.ImageID
	switch {
	case imageID == 0 && req.StoragePath == "":
		return 0, ErrAnswerKeyImage
	case imageID == 0:
		imageID, err = s.images.Create(ctx, examID, req.StoragePath, original)
		if err != nil {
			return 0, fmt.Errorf("create image record: %w", err)
		}
	case req.StoragePath != "":
		// Re-upload against an existing record.
		if err := s.images.UpdateStorage(ctx, imageID, req.StoragePath, original); err != nil {
			return 0, fmt.Errorf("update image record: %w", err)
		}
	}

	if err := s.rows.ReplaceForImage(ctx, imageID, req.Rows); err != nil {
		return 0, fmt.Errorf("replace answer rows: %w", err)
	}
	return imageID, nil
}

// Delete removes the answer key for an image. The image record itself is
// kept; assignments may already reference it.
func (s *AnswerKeyService) Delete(ctx context.Context, imageID int) error {
	return s.rows.DeleteForImage(ctx, imageID)
}

// Get returns the image record with its answer rows.
func (s *AnswerKeyService) Get(ctx context.Context, imageID int) (*model.Image, []model.AnswerRow, error) {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, nil, fmt.Errorf("get image: %w", err)
	}
	rows, err := s.rows.GetByImage(ctx, imageID)
	if err != nil {
		return nil, nil, fmt.Errorf("get answer rows: %w", err)
	}
	return img, rows, nil
}

// Summaries lists every image carrying an answer key.
func (s *AnswerKeyService) Summaries(ctx context.Context) ([]model.AnswerKeySummary, error) {
	return s.rows.ListSummaries(ctx)
}
