package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/config"
	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ScorePollTimeout = 1 * time.Second
	ScoreMaxAttempts = 5
)

// ScoreAnnotations reads the rows an annotator submitted for an image.
type ScoreAnnotations interface {
	ListByAnnotatorAndImage(ctx context.Context, annotatorID, imageID int) ([]model.AnnotationRow, error)
}

// ScoreAnswerRows reads the authored answer key for an image.
type ScoreAnswerRows interface {
	GetByImage(ctx context.Context, imageID int) ([]model.AnswerRow, error)
}

// ScoreUpdater attaches scoring metrics to a completion record.
type ScoreUpdater interface {
	UpdateScore(ctx context.Context, annotatorID, examID int, score float64, cellsCorrect, cellsTotal int) error
}

// ScoringWorker consumes the score queue: for each closed session it
// compares the submitted rows against the image's answer key and writes
// the score back onto the completion record. Images without an answer key
// are left unscored, not failed.
type ScoringWorker struct {
	rdb         *redis.Client
	annotations ScoreAnnotations
	answers     ScoreAnswerRows
	completions ScoreUpdater
	log         zerolog.Logger
}

// NewScoringWorker creates a ScoringWorker.
func NewScoringWorker(rdb *redis.Client, annotations ScoreAnnotations, answers ScoreAnswerRows, completions ScoreUpdater, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		rdb:         rdb,
		annotations: annotations,
		answers:     answers,
		completions: completions,
		log:         log.With().Str("component", "scoring_worker").Logger(),
	}
}

type scoreJob struct {
	AnnotatorID int    `json:"annotator_id"`
	ExamID      int    `json:"exam_id"`
	ExamCode    string `json:"exam_code"`
	ImageID     int    `json:"image_id"`
	Attempts    int    `json:"attempts,omitempty"`
}

// Start runs the consume loop until the context is cancelled, then drains
// whatever is still queued before returning.
func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ScoringWorker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("ScoringWorker stopped")
			return
		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.ScoreCompletionsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var job scoreJob
			if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			if err := w.score(ctx, &job); err != nil {
				w.requeue(ctx, &job, err)
			}
		}
	}
}

func (w *ScoringWorker) score(ctx context.Context, job *scoreJob) error {
	answers, err := w.answers.GetByImage(ctx, job.ImageID)
	if err != nil {
		return err
	}
	if len(answers) == 0 {
		w.log.Debug().Int("image_id", job.ImageID).Msg("no answer key, leaving completion unscored")
		return nil
	}

	submitted, err := w.annotations.ListByAnnotatorAndImage(ctx, job.AnnotatorID, job.ImageID)
	if err != nil {
		return err
	}

	correct, total := CompareToKey(answers, submitted)
	score := 0.0
	if total > 0 {
		score = float64(correct) / float64(total)
	}

	if err := w.completions.UpdateScore(ctx, job.AnnotatorID, job.ExamID, score, correct, total); err != nil {
		return err
	}

	w.log.Info().
		Int("annotator_id", job.AnnotatorID).
		Str("exam", job.ExamCode).
		Float64("score", score).
		Int("cells_correct", correct).
		Int("cells_total", total).
		Msg("completion scored")
	return nil
}

// drain empties the queue without blocking. Each remaining job is scored
// once; the first failure is pushed back and the drain stops there, the
// rest stays durable in Redis for the next run.
func (w *ScoringWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.ScoreCompletionsQueue).Result()
		if err != nil {
			break
		}

		var job scoreJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.score(ctx, &job); err != nil {
			w.log.Error().Err(err).Msg("Drain score error")
			w.rdb.RPush(ctx, config.WorkerKey.ScoreCompletionsQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining score jobs")
	}
}

// requeue pushes a failed job back onto the queue up to ScoreMaxAttempts.
func (w *ScoringWorker) requeue(ctx context.Context, job *scoreJob, cause error) {
	job.Attempts++
	if job.Attempts >= ScoreMaxAttempts {
		w.log.Error().Err(cause).
			Int("annotator_id", job.AnnotatorID).
			Int("image_id", job.ImageID).
			Msg("scoring abandoned after max attempts")
		return
	}

	w.log.Warn().Err(cause).Int("attempts", job.Attempts).Msg("scoring failed, requeueing")
	raw, _ := json.Marshal(job)
	if err := w.rdb.RPush(ctx, config.WorkerKey.ScoreCompletionsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Msg("requeue failed, job lost")
	}
}

// CompareToKey scores submitted rows against the answer key. Rows are
// matched by position (answer row order vs. submitted order); each
// non-image_ref cell of the key counts toward the total and is correct
// when the submitted value matches after trimming and case folding.
func CompareToKey(answers []model.AnswerRow, submitted []model.AnnotationRow) (correct, total int) {
	for i, answer := range answers {
		var got map[string]string
		if i < len(submitted) {
			got = submitted[i].Cells
		}
		for columnID, want := range answer.Cells {
			if columnID == model.ImageRefColumn {
				continue
			}
			total++
			if normalizeCell(got[columnID]) == normalizeCell(want) {
				correct++
			}
		}
	}
	return correct, total
}

func normalizeCell(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
