package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/config"
	"github.com/liftlabs/liftapp-backend/internal/draft"
	"github.com/liftlabs/liftapp-backend/internal/draft/drafttest"
	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/rs/zerolog"
)

// ─── Fakes ───────────────────────────────────────────────────────────

type fakeResolver struct {
	ids map[string]int
}

func (f *fakeResolver) GetIDByCode(_ context.Context, code string) (int, error) {
	id, ok := f.ids[code]
	if !ok {
		return 0, errors.New("exam not found")
	}
	return id, nil
}

type fakeAssigner struct {
	task  model.ImageTask
	err   error
	calls int
}

func (f *fakeAssigner) AssignImage(_ context.Context, _, _ int) (*model.ImageTask, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	t := f.task
	return &t, nil
}

type fakeAnnotations struct {
	// rows keyed by client row ID, mimicking the upsert uniqueness.
	rows      map[string]model.AnnotationRow
	upsertErr error
	listErr   error
	upserts   int
}

func newFakeAnnotations() *fakeAnnotations {
	return &fakeAnnotations{rows: make(map[string]model.AnnotationRow)}
}

func (f *fakeAnnotations) UpsertRows(_ context.Context, _, _ int, rows []model.AnnotationRow) error {
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range rows {
		f.rows[r.ClientRowID] = r
	}
	return nil
}

func (f *fakeAnnotations) ListByAnnotatorAndImage(_ context.Context, _, _ int) ([]model.AnnotationRow, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.AnnotationRow, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

type fakeCompletions struct {
	records   map[int]*model.CompletionRecord // keyed by exam ID
	upsertErr error
}

func newFakeCompletions() *fakeCompletions {
	return &fakeCompletions{records: make(map[int]*model.CompletionRecord)}
}

func (f *fakeCompletions) Upsert(_ context.Context, rec *model.CompletionRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *rec
	f.records[rec.ExamID] = &cp
	return nil
}

func (f *fakeCompletions) ListByAnnotator(_ context.Context, _ int) ([]model.CompletionRecord, error) {
	out := make([]model.CompletionRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeCompletions) CountByAnnotator(_ context.Context, _ int) (int, error) {
	return len(f.records), nil
}

type fakeBackfill struct {
	stamped map[int]time.Time
}

func (f *fakeBackfill) SetOverallCompleted(_ context.Context, id int, at time.Time) error {
	if f.stamped == nil {
		f.stamped = make(map[int]time.Time)
	}
	f.stamped[id] = at
	return nil
}

type busCall struct {
	target  string
	payload interface{}
}

type fakeBus struct {
	enqueued  []busCall
	published []busCall
}

func (f *fakeBus) Enqueue(_ context.Context, queue string, payload interface{}) error {
	f.enqueued = append(f.enqueued, busCall{queue, payload})
	return nil
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload interface{}) error {
	f.published = append(f.published, busCall{channel, payload})
	return nil
}

// ─── Harness ─────────────────────────────────────────────────────────

type sessionHarness struct {
	svc         *SessionService
	kv          *drafttest.FakeKV
	drafts      *draft.Store
	assigner    *fakeAssigner
	annotations *fakeAnnotations
	completions *fakeCompletions
	backfill    *fakeBackfill
	bus         *fakeBus
	now         time.Time
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		kv: drafttest.NewFakeKV(),
		assigner: &fakeAssigner{
			task: model.ImageTask{ImageID: 77, ExamID: 1, StoragePath: "uploads/baptism/reg_014.jpg"},
		},
		annotations: newFakeAnnotations(),
		completions: newFakeCompletions(),
		backfill:    &fakeBackfill{},
		bus:         &fakeBus{},
		now:         time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC),
	}
	h.drafts = draft.NewStore(h.kv, zerolog.Nop())

	exams := NewExamService(&fakeResolver{ids: map[string]int{
		"baptism": 1, "marriage": 2, "confirmation": 3, "burial": 4,
	}})
	cfg := &config.Config{SessionGrace: 30 * time.Minute}

	h.svc = NewSessionService(cfg, exams, h.drafts, h.assigner, h.annotations, h.completions, h.backfill, h.bus, zerolog.Nop())
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *sessionHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

const testAnnotator = 42

func (h *sessionHarness) start(t *testing.T, examCode string) *model.SessionSnapshot {
	t.Helper()
	snap, err := h.svc.Start(context.Background(), testAnnotator, "reader-042", examCode)
	if err != nil {
		t.Fatalf("Start(%s): %v", examCode, err)
	}
	return snap
}

func rowWith(id string, cells map[string]string) model.AnnotationRow {
	return model.AnnotationRow{ClientRowID: id, Cells: cells}
}

// ─── Start ───────────────────────────────────────────────────────────

func TestStartFixesDeadlineAtCreation(t *testing.T) {
	h := newSessionHarness(t)

	snap := h.start(t, "baptism")

	if snap.State != model.SessionStateActive {
		t.Fatalf("state = %s, want active", snap.State)
	}
	if snap.Task.ImageID != 77 {
		t.Errorf("assigned image = %d, want 77", snap.Task.ImageID)
	}
	want := h.now.Add(40 * time.Minute)
	if !snap.EndsAt.Equal(want) {
		t.Errorf("EndsAt = %v, want %v", snap.EndsAt, want)
	}
	if len(h.bus.published) != 1 {
		t.Fatalf("published %d monitor events, want 1", len(h.bus.published))
	}
	if ev := h.bus.published[0].payload.(MonitorEvent); ev.Kind != "session_started" {
		t.Errorf("event kind = %s, want session_started", ev.Kind)
	}
}

func TestStartResumesWithoutExtendingDeadline(t *testing.T) {
	h := newSessionHarness(t)

	first := h.start(t, "baptism")
	h.advance(10 * time.Minute)
	second := h.start(t, "baptism")

	if h.assigner.calls != 1 {
		t.Fatalf("assigner called %d times, want 1 (resume must not reassign)", h.assigner.calls)
	}
	if !second.EndsAt.Equal(first.EndsAt) {
		t.Errorf("resume moved the deadline: %v → %v", first.EndsAt, second.EndsAt)
	}
}

func TestStartRejectsSecondExamWhileActive(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")

	_, err := h.svc.Start(context.Background(), testAnnotator, "reader-042", "marriage")
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("err = %v, want ErrSessionActive", err)
	}
}

func TestStartRejectsUnknownExam(t *testing.T) {
	h := newSessionHarness(t)

	_, err := h.svc.Start(context.Background(), testAnnotator, "reader-042", "census")
	if !errors.Is(err, ErrUnknownExam) {
		t.Fatalf("err = %v, want ErrUnknownExam", err)
	}
}

func TestStartRejectsCompletedExam(t *testing.T) {
	h := newSessionHarness(t)
	h.drafts.MarkCompleted(context.Background(), testAnnotator, "baptism")

	_, err := h.svc.Start(context.Background(), testAnnotator, "reader-042", "baptism")
	if !errors.Is(err, ErrExamCompleted) {
		t.Fatalf("err = %v, want ErrExamCompleted", err)
	}
}

func TestStartClosesExpiredSessionBeforeOpeningNew(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	h.advance(41 * time.Minute)

	snap := h.start(t, "marriage")

	if snap.ExamCode != "marriage" {
		t.Fatalf("new session exam = %s, want marriage", snap.ExamCode)
	}
	rec := h.completions.records[1]
	if rec == nil {
		t.Fatal("expired baptism session left no completion record")
	}
	if rec.Status != model.CompletionTimedOut {
		t.Errorf("expired close status = %s, want timed_out", rec.Status)
	}
}

// ─── Row loading ─────────────────────────────────────────────────────

func TestLoadRowsPrefersDraftOverSubmitted(t *testing.T) {
	h := newSessionHarness(t)
	snap := h.start(t, "baptism")

	h.annotations.rows["r1"] = rowWith("r1", map[string]string{"given": "old"})
	h.drafts.SaveDraft(context.Background(), testAnnotator, "baptism", 77,
		[]model.AnnotationRow{rowWith("r1", map[string]string{"given": "draft"})})

	rows, source := h.svc.LoadRows(context.Background(), snap)
	if source != model.RowSourceDraft {
		t.Fatalf("source = %s, want draft", source)
	}
	if rows[0].Cells["given"] != "draft" {
		t.Errorf("got submitted copy instead of draft")
	}
}

func TestLoadRowsFallsBackToSubmittedThenFresh(t *testing.T) {
	h := newSessionHarness(t)
	snap := h.start(t, "baptism")

	h.annotations.rows["r1"] = rowWith("r1", map[string]string{"given": "Ana"})
	if _, source := h.svc.LoadRows(context.Background(), snap); source != model.RowSourceSubmitted {
		t.Fatalf("source = %s, want submitted", source)
	}

	h.annotations.rows = map[string]model.AnnotationRow{}
	rows, source := h.svc.LoadRows(context.Background(), snap)
	if source != model.RowSourceFresh {
		t.Fatalf("source = %s, want fresh", source)
	}
	if len(rows) != 1 {
		t.Fatalf("fresh start has %d rows, want 1", len(rows))
	}
	if rows[0].Cells[model.ImageRefColumn] != "reg_014.jpg" {
		t.Errorf("image_ref = %q, want reg_014.jpg", rows[0].Cells[model.ImageRefColumn])
	}
}

func TestLoadRowsDegradesToFreshOnReadError(t *testing.T) {
	h := newSessionHarness(t)
	snap := h.start(t, "baptism")
	h.annotations.listErr = errors.New("connection refused")

	rows, source := h.svc.LoadRows(context.Background(), snap)
	if source != model.RowSourceFresh {
		t.Fatalf("source = %s, want fresh on read failure", source)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

// ─── Submit ──────────────────────────────────────────────────────────

func TestSubmitSkipsEmptyRowsAndClearsDraft(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	rows := []model.AnnotationRow{
		rowWith("r1", map[string]string{"given": "Ana", "surname": "Silva"}),
		rowWith("r2", nil), // image_ref only after sanitizing — no content
		rowWith("r3", map[string]string{"given": "Bento"}),
	}
	h.drafts.SaveDraft(ctx, testAnnotator, "baptism", 77, rows)

	n, err := h.svc.Submit(ctx, testAnnotator, rows)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if n != 2 {
		t.Fatalf("submitted %d rows, want 2", n)
	}
	if _, ok := h.annotations.rows["r2"]; ok {
		t.Error("empty row was submitted")
	}
	if _, ok := h.drafts.LoadDraft(ctx, testAnnotator, "baptism", 77); ok {
		t.Error("draft survived a successful submission")
	}
	if !h.drafts.WasSubmitted(ctx, testAnnotator) {
		t.Error("submitted latch not set")
	}
}

func TestSubmitRetryOverwritesInsteadOfDuplicating(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	rows := []model.AnnotationRow{rowWith("r1", map[string]string{"given": "Ana"})}
	if _, err := h.svc.Submit(ctx, testAnnotator, rows); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	rows[0].Cells["given"] = "Anna"
	if _, err := h.svc.Submit(ctx, testAnnotator, rows); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if len(h.annotations.rows) != 1 {
		t.Fatalf("retry duplicated rows: %d stored, want 1", len(h.annotations.rows))
	}
	if h.annotations.rows["r1"].Cells["given"] != "Anna" {
		t.Error("retry did not overwrite the earlier cell value")
	}
}

func TestSubmitFailurePreservesDraftAndLatch(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	rows := []model.AnnotationRow{rowWith("r1", map[string]string{"given": "Ana"})}
	h.drafts.SaveDraft(ctx, testAnnotator, "baptism", 77, rows)
	h.annotations.upsertErr = errors.New("deadline exceeded")

	if _, err := h.svc.Submit(ctx, testAnnotator, rows); err == nil {
		t.Fatal("Submit succeeded despite storage failure")
	}
	if _, ok := h.drafts.LoadDraft(ctx, testAnnotator, "baptism", 77); !ok {
		t.Error("draft was cleared on a failed submission")
	}
	if h.drafts.WasSubmitted(ctx, testAnnotator) {
		t.Error("submitted latch set on a failed submission")
	}
}

func TestSubmitWithoutSessionFails(t *testing.T) {
	h := newSessionHarness(t)

	_, err := h.svc.Submit(context.Background(), testAnnotator, nil)
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}

// ─── Close ───────────────────────────────────────────────────────────

func TestCloseSubmittedRequiresPriorSubmission(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	_, err := h.svc.Close(ctx, testAnnotator, model.CompletionSubmitted, nil, 0)
	if !errors.Is(err, ErrSubmitRequired) {
		t.Fatalf("err = %v, want ErrSubmitRequired", err)
	}

	// The latch must have been released so the closure can be retried.
	if _, err := h.svc.Submit(ctx, testAnnotator, []model.AnnotationRow{rowWith("r1", map[string]string{"given": "Ana"})}); err != nil {
		t.Fatalf("Submit after failed close: %v", err)
	}
	if _, err := h.svc.Close(ctx, testAnnotator, model.CompletionSubmitted, nil, 0); err != nil {
		t.Fatalf("retried close: %v", err)
	}
}

func TestCloseSubmittedRecordsCompletion(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	if _, err := h.svc.Submit(ctx, testAnnotator, []model.AnnotationRow{rowWith("r1", map[string]string{"given": "Ana"})}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.advance(12 * time.Minute)

	rec, err := h.svc.Close(ctx, testAnnotator, model.CompletionSubmitted, nil, 310)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Status != model.CompletionSubmitted {
		t.Errorf("status = %s, want submitted", rec.Status)
	}
	if rec.DurationSeconds != 12*60 {
		t.Errorf("duration = %ds, want %ds", rec.DurationSeconds, 12*60)
	}
	if rec.Keystrokes != 310 {
		t.Errorf("keystrokes = %d, want 310", rec.Keystrokes)
	}

	if snap, _ := h.drafts.LoadSession(ctx, testAnnotator); snap != nil {
		t.Error("session snapshot survived closure")
	}
	if !h.drafts.Completed(ctx, testAnnotator, "baptism") {
		t.Error("completed marker not set")
	}
	if len(h.bus.enqueued) != 1 {
		t.Fatalf("enqueued %d scoring jobs, want 1", len(h.bus.enqueued))
	}
	if p := h.bus.enqueued[0].payload.(ScorePayload); p.ExamCode != "baptism" || p.ImageID != 77 {
		t.Errorf("scoring payload = %+v", p)
	}
}

func TestCloseTimedOutSubmitsLatestDraft(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	h.drafts.SaveDraft(ctx, testAnnotator, "baptism", 77,
		[]model.AnnotationRow{rowWith("r1", map[string]string{"given": "Ana"})})
	h.advance(40 * time.Minute)

	rec, err := h.svc.Close(ctx, testAnnotator, model.CompletionTimedOut, nil, 0)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Status != model.CompletionTimedOut {
		t.Errorf("status = %s, want timed_out", rec.Status)
	}
	if rec.DurationSeconds != 40*60 {
		t.Errorf("duration = %ds, want full %ds", rec.DurationSeconds, 40*60)
	}
	if _, ok := h.annotations.rows["r1"]; !ok {
		t.Error("draft rows were not force-submitted on timeout")
	}
}

func TestCloseTimedOutSubmissionFailureIsRetryable(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	h.drafts.SaveDraft(ctx, testAnnotator, "baptism", 77,
		[]model.AnnotationRow{rowWith("r1", map[string]string{"given": "Ana"})})
	h.annotations.upsertErr = errors.New("deadline exceeded")

	if _, err := h.svc.Close(ctx, testAnnotator, model.CompletionTimedOut, nil, 0); err == nil {
		t.Fatal("Close succeeded despite forced submission failure")
	}
	if _, ok := h.drafts.LoadDraft(ctx, testAnnotator, "baptism", 77); !ok {
		t.Fatal("draft lost on failed forced submission")
	}

	// Latch released: the retry goes through once storage recovers.
	h.annotations.upsertErr = nil
	if _, err := h.svc.Close(ctx, testAnnotator, model.CompletionTimedOut, nil, 0); err != nil {
		t.Fatalf("retried close: %v", err)
	}
}

func TestCloseRunsAtMostOnce(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	// A concurrent closure already holds the latch.
	if ok, _ := h.drafts.AcquireClosing(ctx, testAnnotator, time.Minute); !ok {
		t.Fatal("could not pre-acquire the closing latch")
	}

	_, err := h.svc.Close(ctx, testAnnotator, model.CompletionTimedOut, nil, 0)
	if !errors.Is(err, ErrSessionClosing) {
		t.Fatalf("err = %v, want ErrSessionClosing", err)
	}
}

func TestCloseSurvivesCompletionWriteFailure(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	if _, err := h.svc.Submit(ctx, testAnnotator, []model.AnnotationRow{rowWith("r1", map[string]string{"given": "Ana"})}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.completions.upsertErr = errors.New("deadline exceeded")

	rec, err := h.svc.Close(ctx, testAnnotator, model.CompletionSubmitted, nil, 0)
	if !errors.Is(err, ErrCompletionWrite) {
		t.Fatalf("err = %v, want ErrCompletionWrite", err)
	}
	if rec == nil {
		t.Fatal("no record returned alongside ErrCompletionWrite")
	}
	// The session still ends; only the bookkeeping warning differs.
	if snap, _ := h.drafts.LoadSession(ctx, testAnnotator); snap != nil {
		t.Error("session survived closure with failed completion write")
	}
	if len(h.bus.enqueued) != 0 {
		t.Error("scoring enqueued without a completion record")
	}
}

func TestCloseWithoutSessionFails(t *testing.T) {
	h := newSessionHarness(t)

	_, err := h.svc.Close(context.Background(), testAnnotator, model.CompletionSubmitted, nil, 0)
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}

// ─── Shell & dashboard ───────────────────────────────────────────────

func TestResolveShellRoutesBySessionState(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	shell, err := h.svc.ResolveShell(ctx, testAnnotator)
	if err != nil {
		t.Fatalf("ResolveShell: %v", err)
	}
	if shell.Screen != model.ScreenDashboard {
		t.Fatalf("screen = %s, want dashboard with no session", shell.Screen)
	}

	h.start(t, "baptism")
	h.advance(15 * time.Minute)

	shell, err = h.svc.ResolveShell(ctx, testAnnotator)
	if err != nil {
		t.Fatalf("ResolveShell: %v", err)
	}
	if shell.Screen != model.ScreenExam {
		t.Fatalf("screen = %s, want exam", shell.Screen)
	}
	if shell.RemainingSeconds != 25*60 {
		t.Errorf("remaining = %ds, want %ds", shell.RemainingSeconds, 25*60)
	}
}

func TestResolveShellClosesExpiredSession(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()
	h.start(t, "baptism")
	h.advance(45 * time.Minute)

	shell, err := h.svc.ResolveShell(ctx, testAnnotator)
	if err != nil {
		t.Fatalf("ResolveShell: %v", err)
	}
	if shell.Screen != model.ScreenDashboard {
		t.Fatalf("screen = %s, want dashboard after expiry", shell.Screen)
	}
	if rec := h.completions.records[1]; rec == nil || rec.Status != model.CompletionTimedOut {
		t.Errorf("expired session not closed as timed_out: %+v", rec)
	}
}

func TestDashboardStatusOverlaysCompletions(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	h.start(t, "baptism")
	if _, err := h.svc.Submit(ctx, testAnnotator, []model.AnnotationRow{rowWith("r1", map[string]string{"given": "Ana"})}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := h.svc.Close(ctx, testAnnotator, model.CompletionSubmitted, nil, 0); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := h.svc.DashboardStatus(ctx, testAnnotator)
	if len(entries) != 4 {
		t.Fatalf("dashboard has %d exams, want 4", len(entries))
	}
	byCode := make(map[string]DashboardExam, len(entries))
	for _, e := range entries {
		byCode[e.Code] = e
	}
	if !byCode["baptism"].Completed || byCode["baptism"].Completion == nil {
		t.Error("baptism not marked completed")
	}
	if byCode["marriage"].Completed {
		t.Error("marriage wrongly marked completed")
	}
}

// ─── Sweeper & backfill ──────────────────────────────────────────────

func TestSweepExpiredClosesOnlyOverdueSessions(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()
	h.start(t, "baptism")

	if n := h.svc.SweepExpired(ctx); n != 0 {
		t.Fatalf("sweep closed %d live sessions, want 0", n)
	}

	h.advance(41 * time.Minute)
	if n := h.svc.SweepExpired(ctx); n != 1 {
		t.Fatalf("sweep closed %d sessions, want 1", n)
	}
	if rec := h.completions.records[1]; rec == nil || rec.Status != model.CompletionTimedOut {
		t.Errorf("swept session not recorded as timed_out: %+v", rec)
	}

	// Second sweep finds nothing left.
	if n := h.svc.SweepExpired(ctx); n != 0 {
		t.Errorf("second sweep closed %d sessions, want 0", n)
	}
}

func TestOverallCompletionStampedAfterLastExam(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	for i, code := range []string{"baptism", "marriage", "confirmation", "burial"} {
		h.start(t, code)
		if _, err := h.svc.Submit(ctx, testAnnotator, []model.AnnotationRow{rowWith("r1", map[string]string{"parish": "Espinho"})}); err != nil {
			t.Fatalf("Submit(%s): %v", code, err)
		}
		if _, err := h.svc.Close(ctx, testAnnotator, model.CompletionSubmitted, nil, 0); err != nil {
			t.Fatalf("Close(%s): %v", code, err)
		}
		if i < 3 && len(h.backfill.stamped) != 0 {
			t.Fatalf("overall completion stamped after only %d exams", i+1)
		}
	}

	if _, ok := h.backfill.stamped[testAnnotator]; !ok {
		t.Fatal("overall completion never stamped after the last exam")
	}
}

// ─── Row editing ─────────────────────────────────────────────────────

func TestEditCellPersistsDraft(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	rows, err := h.svc.EditCell(ctx, testAnnotator, 0, "given", "Maria")
	if err != nil {
		t.Fatalf("EditCell: %v", err)
	}
	if rows[0].Cells["given"] != "Maria" {
		t.Errorf("edited cell = %q, want Maria", rows[0].Cells["given"])
	}

	saved, ok := h.drafts.LoadDraft(ctx, testAnnotator, "baptism", 77)
	if !ok {
		t.Fatal("edit did not persist a draft")
	}
	if saved[0].Cells["given"] != "Maria" {
		t.Errorf("draft cell = %q, want Maria", saved[0].Cells["given"])
	}
}

func TestEditCellRejectsImageRef(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	_, err := h.svc.EditCell(ctx, testAnnotator, 0, "image_ref", "forged.jpg")
	if !errors.Is(err, ErrImageRefImmutable) {
		t.Fatalf("err = %v, want ErrImageRefImmutable", err)
	}
	if _, ok := h.drafts.LoadDraft(ctx, testAnnotator, "baptism", 77); ok {
		t.Fatal("rejected edit must not persist a draft")
	}
}

func TestAppendAndRemoveRowRoundTrip(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t, "baptism")
	ctx := context.Background()

	rows, err := h.svc.AppendRow(ctx, testAnnotator)
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows after append = %d, want 2", len(rows))
	}
	if rows[1].Cells[model.ImageRefColumn] == "" {
		t.Error("appended row missing image_ref prefill")
	}

	rows, err = h.svc.RemoveRow(ctx, testAnnotator, 0)
	if err != nil {
		t.Fatalf("RemoveRow: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows after remove = %d, want 1", len(rows))
	}

	if _, err := h.svc.RemoveRow(ctx, testAnnotator, 0); !errors.Is(err, ErrLastRow) {
		t.Fatalf("err = %v, want ErrLastRow", err)
	}
}

func TestCloseReleasesLatchForNextExam(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	h.start(t, "baptism")
	if _, err := h.svc.Submit(ctx, testAnnotator, []model.AnnotationRow{rowWith("r1", map[string]string{"parish": "Espinho"})}); err != nil {
		t.Fatalf("Submit(baptism): %v", err)
	}
	if _, err := h.svc.Close(ctx, testAnnotator, model.CompletionSubmitted, nil, 0); err != nil {
		t.Fatalf("Close(baptism): %v", err)
	}

	// The next exam closes right away; a latch surviving the first
	// closure would report it as already closing.
	h.start(t, "marriage")
	if _, err := h.svc.Submit(ctx, testAnnotator, []model.AnnotationRow{rowWith("r1", map[string]string{"parish": "Espinho"})}); err != nil {
		t.Fatalf("Submit(marriage): %v", err)
	}
	if _, err := h.svc.Close(ctx, testAnnotator, model.CompletionSubmitted, nil, 0); err != nil {
		t.Fatalf("Close(marriage): %v", err)
	}
}
