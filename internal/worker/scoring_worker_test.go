package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/rs/zerolog"
)

func answerRow(no int, cells map[string]string) model.AnswerRow {
	return model.AnswerRow{ID: no, ImageID: 1, RowNo: no, Cells: cells}
}

func submittedRow(cells map[string]string) model.AnnotationRow {
	return model.AnnotationRow{ClientRowID: "r", Cells: cells}
}

func TestCompareToKey(t *testing.T) {
	answers := []model.AnswerRow{
		answerRow(1, map[string]string{
			"image_ref": "reg_014.jpg", // never scored
			"given":     "Ana",
			"surname":   "Silva",
		}),
		answerRow(2, map[string]string{
			"given":   "Bento",
			"surname": "Costa",
		}),
	}

	submitted := []model.AnnotationRow{
		submittedRow(map[string]string{
			"image_ref": "forged.jpg",
			"given":     "  ana ", // trim + case fold
			"surname":   "Sousa",  // wrong
		}),
		submittedRow(map[string]string{
			"given": "Bento",
			// surname missing
		}),
	}

	correct, total := CompareToKey(answers, submitted)
	if total != 4 {
		t.Fatalf("total = %d, want 4 (image_ref excluded)", total)
	}
	if correct != 2 {
		t.Fatalf("correct = %d, want 2", correct)
	}
}

func TestCompareToKeyMissingSubmittedRows(t *testing.T) {
	answers := []model.AnswerRow{
		answerRow(1, map[string]string{"given": "Ana"}),
		answerRow(2, map[string]string{"given": "Bento"}),
	}

	correct, total := CompareToKey(answers, []model.AnnotationRow{
		submittedRow(map[string]string{"given": "Ana"}),
	})
	if total != 2 || correct != 1 {
		t.Fatalf("got %d/%d, want 1/2", correct, total)
	}

	// Extra submitted rows beyond the key add nothing either way.
	correct, total = CompareToKey(answers[:1], []model.AnnotationRow{
		submittedRow(map[string]string{"given": "Ana"}),
		submittedRow(map[string]string{"given": "Clara"}),
	})
	if total != 1 || correct != 1 {
		t.Fatalf("got %d/%d, want 1/1", correct, total)
	}
}

type countingSweeper struct {
	sweeps atomic.Int32
}

func (c *countingSweeper) SweepExpired(_ context.Context) int {
	c.sweeps.Add(1)
	return 0
}

func TestTimeoutWorkerTicksUntilCancelled(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewTimeoutWorker(sweeper, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancellation")
	}

	if sweeper.sweeps.Load() == 0 {
		t.Fatal("worker never swept")
	}
}
