package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/config"
	"github.com/liftlabs/liftapp-backend/internal/draft"
	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/rs/zerolog"
)

// Session lifecycle errors.
var (
	ErrExamCompleted   = errors.New("exam already completed by this annotator")
	ErrSessionActive   = errors.New("another exam session is already active")
	ErrNoActiveSession = errors.New("no active exam session")
	ErrSessionClosing  = errors.New("session closure already in progress")
	ErrSubmitRequired  = errors.New("a successful submission is required before a submitted close")
	// ErrCompletionWrite flags that the annotation rows are durably stored
	// but the completion record write failed. The session still ends.
	ErrCompletionWrite = errors.New("completion record write failed")
)

// ImageAssigner is the atomic image assignment operation.
type ImageAssigner interface {
	AssignImage(ctx context.Context, examID, annotatorID int) (*model.ImageTask, error)
}

// AnnotationStore persists submitted annotation rows.
type AnnotationStore interface {
	UpsertRows(ctx context.Context, annotatorID, imageID int, rows []model.AnnotationRow) error
	ListByAnnotatorAndImage(ctx context.Context, annotatorID, imageID int) ([]model.AnnotationRow, error)
}

// CompletionStore persists completion records.
type CompletionStore interface {
	Upsert(ctx context.Context, rec *model.CompletionRecord) error
	ListByAnnotator(ctx context.Context, annotatorID int) ([]model.CompletionRecord, error)
	CountByAnnotator(ctx context.Context, annotatorID int) (int, error)
}

// AnnotatorBackfill stamps the overall completion date once every exam is
// done.
type AnnotatorBackfill interface {
	SetOverallCompleted(ctx context.Context, id int, at time.Time) error
}

// SessionService owns the timed-exam session lifecycle: assignment, the
// fixed deadline, draft reconciliation, idempotent submission and closure.
// State machine: idle → assigning → active → closing → idle; the closing
// phase is latched so it runs at most once per session.
type SessionService struct {
	cfg         *config.Config
	exams       *ExamService
	drafts      *draft.Store
	images      ImageAssigner
	annotations AnnotationStore
	completions CompletionStore
	annotators  AnnotatorBackfill
	bus         EventBus
	log         zerolog.Logger

	// now is injectable for deterministic deadline tests.
	now func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	cfg *config.Config,
	exams *ExamService,
	drafts *draft.Store,
	images ImageAssigner,
	annotations AnnotationStore,
	completions CompletionStore,
	annotators AnnotatorBackfill,
	bus EventBus,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		cfg:         cfg,
		exams:       exams,
		drafts:      drafts,
		images:      images,
		annotations: annotations,
		completions: completions,
		annotators:  annotators,
		bus:         bus,
		log:         log.With().Str("component", "session_service").Logger(),
		now:         time.Now,
	}
}

// Start opens (or resumes) the exam session for an annotator. The deadline
// is fixed at creation and never extended; resuming returns the original
// snapshot untouched.
func (s *SessionService) Start(ctx context.Context, annotatorID int, externalID, examCode string) (*model.SessionSnapshot, error) {
	exam, err := s.exams.ByCode(examCode)
	if err != nil {
		return nil, err
	}

	if s.drafts.Completed(ctx, annotatorID, examCode) {
		return nil, ErrExamCompleted
	}

	existing, err := s.drafts.LoadSession(ctx, annotatorID)
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	if existing != nil {
		if !existing.Expired(s.now()) {
			if existing.ExamCode == examCode {
				return existing, nil // resume
			}
			return nil, ErrSessionActive
		}
		// Stale snapshot: finish it before opening a new session.
		if _, err := s.Close(ctx, annotatorID, model.CompletionTimedOut, nil, 0); err != nil &&
			!errors.Is(err, ErrSessionClosing) && !errors.Is(err, ErrCompletionWrite) {
			return nil, fmt.Errorf("close expired session: %w", err)
		}
	}

	state := model.SessionStateIdle
	if state, err = state.Transition(model.SessionStateAssigning); err != nil {
		return nil, err
	}

	examID, err := s.exams.ResolveID(ctx, examCode)
	if err != nil {
		return nil, err
	}

	task, err := s.images.AssignImage(ctx, examID, annotatorID)
	if err != nil {
		return nil, fmt.Errorf("assign image: %w", err)
	}

	if state, err = state.Transition(model.SessionStateActive); err != nil {
		return nil, err
	}

	started := s.now()
	duration := time.Duration(exam.DurationMinutes) * time.Minute
	snap := &model.SessionSnapshot{
		AnnotatorID: annotatorID,
		ExternalID:  externalID,
		ExamCode:    examCode,
		ExamID:      examID,
		Task:        *task,
		StartedAt:   started,
		EndsAt:      started.Add(duration),
		State:       state,
	}

	if err := s.drafts.SaveSession(ctx, snap, duration+s.cfg.SessionGrace); err != nil {
		return nil, fmt.Errorf("save session snapshot: %w", err)
	}
	s.drafts.ClearSubmitted(ctx, annotatorID)

	s.publish(ctx, MonitorEvent{
		Kind:        "session_started",
		AnnotatorID: annotatorID,
		ExternalID:  externalID,
		ExamCode:    examCode,
		ImageID:     task.ImageID,
		At:          started,
	})

	return snap, nil
}

// LoadRows resolves the row set for a session. Exactly one path executes:
// local draft, previously-submitted rows, or a single fresh row with
// image_ref pre-filled. Read failures on the submitted path degrade to the
// fresh row rather than blocking the session.
func (s *SessionService) LoadRows(ctx context.Context, snap *model.SessionSnapshot) ([]model.AnnotationRow, model.RowSource) {
	if rows, ok := s.drafts.LoadDraft(ctx, snap.AnnotatorID, snap.ExamCode, snap.Task.ImageID); ok {
		return rows, model.RowSourceDraft
	}

	submitted, err := s.annotations.ListByAnnotatorAndImage(ctx, snap.AnnotatorID, snap.Task.ImageID)
	if err != nil {
		s.log.Warn().Err(err).
			Int("annotator_id", snap.AnnotatorID).
			Int("image_id", snap.Task.ImageID).
			Msg("submitted rows unavailable, starting from an empty row")
	} else if len(submitted) > 0 {
		return submitted, model.RowSourceSubmitted
	}

	return []model.AnnotationRow{NewRow(snap.Task)}, model.RowSourceFresh
}

// ExamState is the resumable view of the active session.
type ExamState struct {
	Session          *model.SessionSnapshot `json:"session"`
	Rows             []model.AnnotationRow  `json:"rows"`
	Source           model.RowSource        `json:"source"`
	RemainingSeconds int                    `json:"remaining_seconds"`
}

// State returns the active session with its rows and remaining time, for
// page reloads.
func (s *SessionService) State(ctx context.Context, annotatorID int) (*ExamState, error) {
	snap, err := s.requireSession(ctx, annotatorID)
	if err != nil {
		return nil, err
	}
	rows, source := s.LoadRows(ctx, snap)
	return &ExamState{
		Session:          snap,
		Rows:             rows,
		Source:           source,
		RemainingSeconds: int(snap.Remaining(s.now()).Seconds()),
	}, nil
}

// PersistDraft overwrites the draft for the active session. Idempotent;
// storage failures are non-fatal by contract.
func (s *SessionService) PersistDraft(ctx context.Context, annotatorID int, rows []model.AnnotationRow) error {
	snap, err := s.requireSession(ctx, annotatorID)
	if err != nil {
		return err
	}
	rows = sanitizeRows(snap.Task, rows)
	s.drafts.SaveDraft(ctx, annotatorID, snap.ExamCode, snap.Task.ImageID, rows)
	return nil
}

// EditCell applies one cell edit to the working rows and persists the
// result as the new draft. The working rows come from LoadRows, so an
// edit after a reload picks up from the latest saved state.
func (s *SessionService) EditCell(ctx context.Context, annotatorID, idx int, columnID, value string) ([]model.AnnotationRow, error) {
	snap, err := s.requireSession(ctx, annotatorID)
	if err != nil {
		return nil, err
	}
	exam, err := s.exams.ByCode(snap.ExamCode)
	if err != nil {
		return nil, err
	}
	rows, _ := s.LoadRows(ctx, snap)
	if err := ApplyCellEdit(exam, rows, idx, columnID, value); err != nil {
		return nil, err
	}
	s.drafts.SaveDraft(ctx, annotatorID, snap.ExamCode, snap.Task.ImageID, rows)
	return rows, nil
}

// AppendRow adds one empty row to the working set and persists the draft.
func (s *SessionService) AppendRow(ctx context.Context, annotatorID int) ([]model.AnnotationRow, error) {
	snap, err := s.requireSession(ctx, annotatorID)
	if err != nil {
		return nil, err
	}
	rows, _ := s.LoadRows(ctx, snap)
	rows = AddRow(rows, snap.Task)
	s.drafts.SaveDraft(ctx, annotatorID, snap.ExamCode, snap.Task.ImageID, rows)
	return rows, nil
}

// RemoveRow deletes the row at idx and persists the draft. The last
// remaining row is kept; callers get ErrLastRow instead.
func (s *SessionService) RemoveRow(ctx context.Context, annotatorID, idx int) ([]model.AnnotationRow, error) {
	snap, err := s.requireSession(ctx, annotatorID)
	if err != nil {
		return nil, err
	}
	rows, _ := s.LoadRows(ctx, snap)
	rows, err = DeleteRow(rows, idx)
	if err != nil {
		return nil, err
	}
	s.drafts.SaveDraft(ctx, annotatorID, snap.ExamCode, snap.Task.ImageID, rows)
	return rows, nil
}

// Submit upserts every row carrying content, keyed by (annotator, image,
// client row id) so retries overwrite instead of duplicating. On success
// the draft is cleared and the submitted latch set; on failure nothing is
// touched and the caller may retry.
func (s *SessionService) Submit(ctx context.Context, annotatorID int, rows []model.AnnotationRow) (int, error) {
	snap, err := s.requireSession(ctx, annotatorID)
	if err != nil {
		return 0, err
	}
	return s.submitRows(ctx, snap, rows)
}

func (s *SessionService) submitRows(ctx context.Context, snap *model.SessionSnapshot, rows []model.AnnotationRow) (int, error) {
	rows = sanitizeRows(snap.Task, rows)

	payload := make([]model.AnnotationRow, 0, len(rows))
	for _, row := range rows {
		if row.HasContent() {
			payload = append(payload, row)
		}
	}

	if len(payload) > 0 {
		if err := s.annotations.UpsertRows(ctx, snap.AnnotatorID, snap.Task.ImageID, payload); err != nil {
			return 0, fmt.Errorf("upsert annotation rows: %w", err)
		}
	}

	s.drafts.RemoveDraft(ctx, snap.AnnotatorID, snap.ExamCode, snap.Task.ImageID)
	s.drafts.MarkSubmitted(ctx, snap.AnnotatorID, snap.Remaining(s.now())+s.cfg.SessionGrace)
	return len(payload), nil
}

// Close ends the session. 'timed_out' forces a final submission of the
// latest rows first — the clock never discards work; 'submitted' requires
// a prior successful Submit and never re-submits. The closing latch makes
// the whole transition run at most once per session; it is released again
// on every exit, so a failed forced submission can be retried and the
// annotator's next exam is never blocked by a finished one.
func (s *SessionService) Close(ctx context.Context, annotatorID int, reason model.CompletionStatus, rows []model.AnnotationRow, keystrokes int) (*model.CompletionRecord, error) {
	snap, err := s.drafts.LoadSession(ctx, annotatorID)
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	if snap == nil {
		return nil, ErrNoActiveSession
	}

	if _, err := snap.State.Transition(model.SessionStateClosing); err != nil {
		return nil, err
	}

	ok, err := s.drafts.AcquireClosing(ctx, annotatorID, s.cfg.SessionGrace)
	if err != nil {
		return nil, fmt.Errorf("acquire closing latch: %w", err)
	}
	if !ok {
		return nil, ErrSessionClosing
	}

	switch reason {
	case model.CompletionTimedOut:
		// Last-second edits beat the clock: prefer the rows handed in at
		// closure, fall back to the stored draft.
		if len(rows) == 0 {
			rows, _ = s.drafts.LoadDraft(ctx, annotatorID, snap.ExamCode, snap.Task.ImageID)
		}
		if _, err := s.submitRows(ctx, snap, rows); err != nil {
			s.drafts.ReleaseClosing(ctx, annotatorID)
			return nil, err
		}
	case model.CompletionSubmitted:
		if !s.drafts.WasSubmitted(ctx, annotatorID) {
			s.drafts.ReleaseClosing(ctx, annotatorID)
			return nil, ErrSubmitRequired
		}
	default:
		s.drafts.ReleaseClosing(ctx, annotatorID)
		return nil, fmt.Errorf("unknown close reason %q", reason)
	}

	now := s.now()
	exam, err := s.exams.ByCode(snap.ExamCode)
	if err != nil {
		s.drafts.ReleaseClosing(ctx, annotatorID)
		return nil, err
	}
	configured := time.Duration(exam.DurationMinutes) * time.Minute
	elapsed := configured - snap.Remaining(now)

	rec := &model.CompletionRecord{
		AnnotatorID:     annotatorID,
		ExamID:          snap.ExamID,
		ExamCode:        snap.ExamCode,
		ImageID:         snap.Task.ImageID,
		DurationSeconds: int(elapsed.Seconds()),
		Status:          reason,
		CompletedAt:     now,
		Keystrokes:      keystrokes,
	}

	completionErr := s.completions.Upsert(ctx, rec)
	if completionErr != nil {
		// The rows are already durable; the session still ends, but the
		// caller is told bookkeeping may be incomplete.
		s.log.Error().Err(completionErr).
			Int("annotator_id", annotatorID).
			Str("exam", snap.ExamCode).
			Msg("completion record write failed")
	}

	s.drafts.MarkCompleted(ctx, annotatorID, snap.ExamCode)
	s.drafts.ClearSubmitted(ctx, annotatorID)
	s.drafts.ClearSession(ctx, annotatorID)
	// The snapshot is gone, so a late duplicate close resolves to
	// ErrNoActiveSession; the latch must not outlive the session or it
	// would block the annotator's next exam.
	s.drafts.ReleaseClosing(ctx, annotatorID)

	if completionErr == nil {
		if err := s.bus.Enqueue(ctx, config.WorkerKey.ScoreCompletionsQueue, ScorePayload{
			AnnotatorID: annotatorID,
			ExamID:      snap.ExamID,
			ExamCode:    snap.ExamCode,
			ImageID:     snap.Task.ImageID,
		}); err != nil {
			s.log.Warn().Err(err).Msg("scoring enqueue failed")
		}
	}

	s.publish(ctx, MonitorEvent{
		Kind:        "session_closed",
		AnnotatorID: annotatorID,
		ExternalID:  snap.ExternalID,
		ExamCode:    snap.ExamCode,
		ImageID:     snap.Task.ImageID,
		Status:      string(reason),
		At:          now,
	})

	s.backfillOverallCompletion(ctx, annotatorID, now)

	if completionErr != nil {
		return rec, fmt.Errorf("%w: %v", ErrCompletionWrite, completionErr)
	}
	return rec, nil
}

// ResolveShell decides which screen an authenticated annotator sees. An
// expired snapshot is closed out (timed_out) and falls back to the
// dashboard; a live one resumes the exam with its remaining time.
func (s *SessionService) ResolveShell(ctx context.Context, annotatorID int) (*model.Shell, error) {
	snap, err := s.drafts.LoadSession(ctx, annotatorID)
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	if snap == nil {
		return &model.Shell{Screen: model.ScreenDashboard}, nil
	}

	if snap.Expired(s.now()) {
		if _, err := s.Close(ctx, annotatorID, model.CompletionTimedOut, nil, 0); err != nil &&
			!errors.Is(err, ErrSessionClosing) && !errors.Is(err, ErrCompletionWrite) {
			s.log.Warn().Err(err).Int("annotator_id", annotatorID).Msg("expired session close failed during shell resolution")
		}
		return &model.Shell{Screen: model.ScreenDashboard}, nil
	}

	return &model.Shell{
		Screen:           model.ScreenExam,
		Session:          snap,
		RemainingSeconds: int(snap.Remaining(s.now()).Seconds()),
	}, nil
}

// DashboardExam is one catalog entry overlaid with the annotator's
// completion state.
type DashboardExam struct {
	Code            string                  `json:"code"`
	DisplayName     string                  `json:"display_name"`
	DurationMinutes int                     `json:"duration_minutes"`
	Completed       bool                    `json:"completed"`
	Completion      *model.CompletionRecord `json:"completion,omitempty"`
}

// DashboardStatus lists every catalog exam with the annotator's completion
// overlay, fetched in one query. Remote read failures degrade to the
// marker-only view.
func (s *SessionService) DashboardStatus(ctx context.Context, annotatorID int) []DashboardExam {
	byExamID := make(map[int]*model.CompletionRecord)
	recs, err := s.completions.ListByAnnotator(ctx, annotatorID)
	if err != nil {
		s.log.Warn().Err(err).Int("annotator_id", annotatorID).Msg("completion lookup failed")
	}
	for i := range recs {
		byExamID[recs[i].ExamID] = &recs[i]
	}

	out := make([]DashboardExam, 0, len(s.exams.Catalog()))
	for _, exam := range s.exams.Catalog() {
		entry := DashboardExam{
			Code:            exam.Code,
			DisplayName:     exam.DisplayName,
			DurationMinutes: exam.DurationMinutes,
			Completed:       s.drafts.Completed(ctx, annotatorID, exam.Code),
		}

		if examID, err := s.exams.ResolveID(ctx, exam.Code); err == nil {
			if rec, ok := byExamID[examID]; ok {
				rec.ExamCode = exam.Code
				entry.Completion = rec
				entry.Completed = true
			}
		}

		out = append(out, entry)
	}
	return out
}

// SweepExpired force-closes every active session whose deadline has
// passed. Returns the number of sessions closed. Called by the timeout
// worker on every tick.
func (s *SessionService) SweepExpired(ctx context.Context) int {
	ids, err := s.drafts.ActiveAnnotators(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("sweep index read failed")
		return 0
	}

	closed := 0
	for _, id := range ids {
		snap, err := s.drafts.LoadSession(ctx, id)
		if err != nil || snap == nil {
			if snap == nil && err == nil {
				// Snapshot expired out of Redis without a closure; drop the
				// index entry so the sweeper stops revisiting it.
				s.drafts.ClearSession(ctx, id)
			}
			continue
		}
		if !snap.Expired(s.now()) {
			continue
		}
		if _, err := s.Close(ctx, id, model.CompletionTimedOut, nil, 0); err != nil {
			if !errors.Is(err, ErrSessionClosing) && !errors.Is(err, ErrCompletionWrite) {
				s.log.Warn().Err(err).Int("annotator_id", id).Msg("sweep close failed")
			}
			continue
		}
		closed++
	}
	return closed
}

func (s *SessionService) requireSession(ctx context.Context, annotatorID int) (*model.SessionSnapshot, error) {
	snap, err := s.drafts.LoadSession(ctx, annotatorID)
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	if snap == nil {
		return nil, ErrNoActiveSession
	}
	return snap, nil
}

// backfillOverallCompletion stamps the annotator's overall completion date
// once every catalog exam has a completion record. Best-effort with its
// own error channel: failures are logged, never folded into the closure
// result.
func (s *SessionService) backfillOverallCompletion(ctx context.Context, annotatorID int, at time.Time) {
	count, err := s.completions.CountByAnnotator(ctx, annotatorID)
	if err != nil {
		s.log.Warn().Err(err).Int("annotator_id", annotatorID).Msg("overall completion count failed")
		return
	}
	if count < len(s.exams.Catalog()) {
		return
	}
	if err := s.annotators.SetOverallCompleted(ctx, annotatorID, at); err != nil {
		s.log.Warn().Err(err).Int("annotator_id", annotatorID).Msg("overall completion backfill failed")
	}
}

func (s *SessionService) publish(ctx context.Context, ev MonitorEvent) {
	if err := s.bus.Publish(ctx, config.CacheKey.MonitorChannel(), ev); err != nil {
		s.log.Debug().Err(err).Str("kind", ev.Kind).Msg("monitor publish failed")
	}
}
