package service

import (
	"context"
	"errors"
	"testing"

	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/rs/zerolog"
)

type fakeAnswerImages struct {
	nextID    int
	created   []string
	updated   []int
	updateErr error
}

func (f *fakeAnswerImages) Create(_ context.Context, _ int, storagePath string, _ *string) (int, error) {
	f.nextID++
	f.created = append(f.created, storagePath)
	return f.nextID, nil
}

func (f *fakeAnswerImages) UpdateStorage(_ context.Context, id int, _ string, _ *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, id)
	return nil
}

func (f *fakeAnswerImages) GetByID(_ context.Context, id int) (*model.Image, error) {
	return &model.Image{ID: id, ExamID: 1, StoragePath: "baptism/x.jpg"}, nil
}

type fakeAnswerRows struct {
	replaced map[int][]map[string]string
	deleted  []int
}

func newFakeAnswerRows() *fakeAnswerRows {
	return &fakeAnswerRows{replaced: make(map[int][]map[string]string)}
}

func (f *fakeAnswerRows) ReplaceForImage(_ context.Context, imageID int, rowCells []map[string]string) error {
	f.replaced[imageID] = rowCells
	return nil
}

func (f *fakeAnswerRows) DeleteForImage(_ context.Context, imageID int) error {
	f.deleted = append(f.deleted, imageID)
	return nil
}

func (f *fakeAnswerRows) GetByImage(_ context.Context, imageID int) ([]model.AnswerRow, error) {
	var out []model.AnswerRow
	for i, cells := range f.replaced[imageID] {
		out = append(out, model.AnswerRow{ID: i + 1, ImageID: imageID, RowNo: i + 1, Cells: cells})
	}
	return out, nil
}

func (f *fakeAnswerRows) ListSummaries(_ context.Context) ([]model.AnswerKeySummary, error) {
	var out []model.AnswerKeySummary
	for imageID, rows := range f.replaced {
		out = append(out, model.AnswerKeySummary{ImageID: imageID, RowCount: len(rows)})
	}
	return out, nil
}

func newAnswerKeyService() (*AnswerKeyService, *fakeAnswerImages, *fakeAnswerRows) {
	images := &fakeAnswerImages{}
	rows := newFakeAnswerRows()
	exams := NewExamService(&fakeResolver{ids: map[string]int{
		"baptism": 1, "marriage": 2, "confirmation": 3, "burial": 4,
	}})
	return NewAnswerKeyService(exams, images, rows, zerolog.Nop()), images, rows
}

func TestAnswerKeySaveCreatesImageAndReplacesRows(t *testing.T) {
	svc, images, rows := newAnswerKeyService()
	ctx := context.Background()

	req := model.SaveAnswerKeyRequest{
		ExamCode:    "baptism",
		StoragePath: "baptism/u1.jpg",
		Rows: []map[string]string{
			{"given": "Ana", "surname": "Silva"},
			{"given": "Bento"},
		},
	}

	imageID, err := svc.Save(ctx, req)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(images.created) != 1 {
		t.Fatalf("created %d image records, want 1", len(images.created))
	}
	if len(rows.replaced[imageID]) != 2 {
		t.Fatalf("stored %d rows, want 2", len(rows.replaced[imageID]))
	}

	// Saving again for the same image is a full replace, not a merge.
	req.ImageID = imageID
	req.StoragePath = ""
	req.Rows = []map[string]string{{"given": "Clara"}}
	if _, err := svc.Save(ctx, req); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if got := rows.replaced[imageID]; len(got) != 1 || got[0]["given"] != "Clara" {
		t.Fatalf("replace left %v", got)
	}
	if len(images.updated) != 0 {
		t.Error("image record touched without a new upload")
	}
}

func TestAnswerKeySaveUpdatesImageOnReupload(t *testing.T) {
	svc, images, _ := newAnswerKeyService()

	_, err := svc.Save(context.Background(), model.SaveAnswerKeyRequest{
		ExamCode:    "baptism",
		ImageID:     9,
		StoragePath: "baptism/v2.jpg",
		Rows:        []map[string]string{{"given": "Ana"}},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(images.updated) != 1 || images.updated[0] != 9 {
		t.Fatalf("updated = %v, want [9]", images.updated)
	}
}

func TestAnswerKeySaveValidation(t *testing.T) {
	svc, _, _ := newAnswerKeyService()
	ctx := context.Background()

	_, err := svc.Save(ctx, model.SaveAnswerKeyRequest{
		ExamCode: "census",
		Rows:     []map[string]string{{"given": "Ana"}},
	})
	if !errors.Is(err, ErrUnknownExam) {
		t.Errorf("unknown exam: err = %v", err)
	}

	_, err = svc.Save(ctx, model.SaveAnswerKeyRequest{
		ExamCode:    "baptism",
		StoragePath: "baptism/u1.jpg",
		Rows:        []map[string]string{{"groom_given": "x"}},
	})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("foreign column: err = %v", err)
	}

	_, err = svc.Save(ctx, model.SaveAnswerKeyRequest{
		ExamCode: "baptism",
		Rows:     []map[string]string{{"given": "Ana"}},
	})
	if !errors.Is(err, ErrAnswerKeyImage) {
		t.Errorf("no image reference: err = %v", err)
	}
}

func TestAnswerKeyDelete(t *testing.T) {
	svc, _, rows := newAnswerKeyService()

	if err := svc.Delete(context.Background(), 7); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(rows.deleted) != 1 || rows.deleted[0] != 7 {
		t.Fatalf("deleted = %v, want [7]", rows.deleted)
	}
}
