package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/rs/zerolog"
)

// rosterFetchPageSize is the page size of the bulk completion fetch loop.
const rosterFetchPageSize = 500

// RosterAnnotators lists every registered annotator.
type RosterAnnotators interface {
	ListAll(ctx context.Context) ([]model.Annotator, error)
}

// RosterCompletions pages through all completion records in stable order.
type RosterCompletions interface {
	ListPage(ctx context.Context, afterAnnotatorID, afterExamID, limit int) ([]model.CompletionRecord, error)
}

// ExamMetric is one annotator's result on one exam, flattened for the
// roster table and its CSV export.
type ExamMetric struct {
	Status          model.CompletionStatus `json:"status"`
	CompletedAt     time.Time              `json:"completed_at"`
	DurationSeconds int                    `json:"duration_seconds"`
	Keystrokes      int                    `json:"keystrokes"`
	Score           *float64               `json:"score,omitempty"`
}

// RosterEntry is one annotator row with aggregates and per-exam metrics.
type RosterEntry struct {
	AnnotatorID          int                    `json:"annotator_id"`
	ExternalID           string                 `json:"external_id"`
	RegisteredAt         time.Time              `json:"registered_at"`
	ExamsCompleted       int                    `json:"exams_completed"`
	AvgScore             *float64               `json:"avg_score,omitempty"`
	TotalKeystrokes      int                    `json:"total_keystrokes"`
	TotalDurationSeconds int                    `json:"total_duration_seconds"`
	LastCompletedAt      *time.Time             `json:"last_completed_at,omitempty"`
	OverallCompletedAt   *time.Time             `json:"overall_completed_at,omitempty"`
	Exams                map[string]*ExamMetric `json:"exams"`
}

// RosterFilter narrows the roster. Zero values mean "no constraint".
type RosterFilter struct {
	Search         string     // case-insensitive substring on external ID
	IDPrefix       string     // external ID prefix
	RegisteredFrom *time.Time
	RegisteredTo   *time.Time
	Completed      *bool      // overall completion status
	CompletedFrom  *time.Time // on last completion date
	CompletedTo    *time.Time
	MinScore       *float64 // average score threshold
	MinExams       int      // minimum exams completed
}

// RosterSort orders the roster by one column. Null values sort last
// ascending and first descending, so "no score yet" never hides real
// results at either end.
type RosterSort struct {
	Column string // external_id | registered_at | exams_completed | avg_score | total_keystrokes | total_duration_seconds | last_completed_at
	Desc   bool
}

// RosterPage is one page of the filtered, sorted roster.
type RosterPage struct {
	Entries    []RosterEntry `json:"entries"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
}

// RosterService computes the admin roster: every annotator joined with
// their completion records, aggregated in-process. Completions are fetched
// with a paged loop rather than one unbounded query.
type RosterService struct {
	annotators  RosterAnnotators
	completions RosterCompletions
	exams       *ExamService
	log         zerolog.Logger
}

// NewRosterService creates a new RosterService.
func NewRosterService(annotators RosterAnnotators, completions RosterCompletions, exams *ExamService, log zerolog.Logger) *RosterService {
	return &RosterService{
		annotators:  annotators,
		completions: completions,
		exams:       exams,
		log:         log.With().Str("component", "roster_service").Logger(),
	}
}

// List returns one page of the filtered, sorted roster.
func (s *RosterService) List(ctx context.Context, filter RosterFilter, sortBy RosterSort, page, perPage int) (*RosterPage, error) {
	entries, err := s.build(ctx)
	if err != nil {
		return nil, err
	}

	entries = applyFilter(entries, filter)
	if err := sortEntries(entries, sortBy); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}
	total := len(entries)
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return &RosterPage{
		Entries:    entries[start:end],
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// ExportCSV writes the whole filtered, sorted roster as CSV, one column
// group per catalog exam. encoding/csv handles quoting of separators,
// quotes and newlines.
func (s *RosterService) ExportCSV(ctx context.Context, filter RosterFilter, sortBy RosterSort, w io.Writer) error {
	entries, err := s.build(ctx)
	if err != nil {
		return err
	}
	entries = applyFilter(entries, filter)
	if err := sortEntries(entries, sortBy); err != nil {
		return err
	}

	cw := csv.NewWriter(w)

	header := []string{
		"annotator_id", "external_id", "registered_at",
		"exams_completed", "avg_score", "total_keystrokes",
		"total_duration_seconds", "last_completed_at", "overall_completed_at",
	}
	catalogExams := s.exams.Catalog()
	for _, exam := range catalogExams {
		header = append(header,
			exam.Code+"_status",
			exam.Code+"_score",
			exam.Code+"_duration_seconds",
			exam.Code+"_keystrokes",
			exam.Code+"_completed_at",
		)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range entries {
		row := []string{
			strconv.Itoa(e.AnnotatorID),
			e.ExternalID,
			e.RegisteredAt.Format(time.RFC3339),
			strconv.Itoa(e.ExamsCompleted),
			formatScore(e.AvgScore),
			strconv.Itoa(e.TotalKeystrokes),
			strconv.Itoa(e.TotalDurationSeconds),
			formatTime(e.LastCompletedAt),
			formatTime(e.OverallCompletedAt),
		}
		for _, exam := range catalogExams {
			m := e.Exams[exam.Code]
			if m == nil {
				row = append(row, "", "", "", "", "")
				continue
			}
			row = append(row,
				string(m.Status),
				formatScore(m.Score),
				strconv.Itoa(m.DurationSeconds),
				strconv.Itoa(m.Keystrokes),
				m.CompletedAt.Format(time.RFC3339),
			)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// build joins every annotator with their completion records. Completions
// come from a paged fetch loop: read a full page, continue from its last
// (annotator, exam) key, stop on a short page.
func (s *RosterService) build(ctx context.Context) ([]RosterEntry, error) {
	annotators, err := s.annotators.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list annotators: %w", err)
	}

	codeByID := make(map[int]string)
	for _, exam := range s.exams.Catalog() {
		id, err := s.exams.ResolveID(ctx, exam.Code)
		if err != nil {
			// Exam not seeded yet: its completions simply cannot exist.
			s.log.Warn().Err(err).Str("exam", exam.Code).Msg("exam code unresolved, skipping in roster")
			continue
		}
		codeByID[id] = exam.Code
	}

	byAnnotator := make(map[int][]model.CompletionRecord)
	afterAnnotator, afterExam := 0, 0
	for {
		page, err := s.completions.ListPage(ctx, afterAnnotator, afterExam, rosterFetchPageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch completions page: %w", err)
		}
		for _, rec := range page {
			byAnnotator[rec.AnnotatorID] = append(byAnnotator[rec.AnnotatorID], rec)
		}
		if len(page) < rosterFetchPageSize {
			break
		}
		last := page[len(page)-1]
		afterAnnotator, afterExam = last.AnnotatorID, last.ExamID
	}

	entries := make([]RosterEntry, 0, len(annotators))
	for _, a := range annotators {
		entry := RosterEntry{
			AnnotatorID:        a.ID,
			ExternalID:         a.ExternalID,
			RegisteredAt:       a.CreatedAt,
			OverallCompletedAt: a.OverallCompletedAt,
			Exams:              make(map[string]*ExamMetric),
		}

		var scoreSum float64
		var scoreCount int
		for _, rec := range byAnnotator[a.ID] {
			code, ok := codeByID[rec.ExamID]
			if !ok {
				continue
			}
			entry.Exams[code] = &ExamMetric{
				Status:          rec.Status,
				CompletedAt:     rec.CompletedAt,
				DurationSeconds: rec.DurationSeconds,
				Keystrokes:      rec.Keystrokes,
				Score:           rec.Score,
			}
			entry.ExamsCompleted++
			entry.TotalKeystrokes += rec.Keystrokes
			entry.TotalDurationSeconds += rec.DurationSeconds
			if entry.LastCompletedAt == nil || rec.CompletedAt.After(*entry.LastCompletedAt) {
				at := rec.CompletedAt
				entry.LastCompletedAt = &at
			}
			if rec.Score != nil {
				scoreSum += *rec.Score
				scoreCount++
			}
		}
		if scoreCount > 0 {
			avg := scoreSum / float64(scoreCount)
			entry.AvgScore = &avg
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

func applyFilter(entries []RosterEntry, f RosterFilter) []RosterEntry {
	out := entries[:0]
	search := strings.ToLower(f.Search)
	for _, e := range entries {
		if search != "" && !strings.Contains(strings.ToLower(e.ExternalID), search) {
			continue
		}
		if f.IDPrefix != "" && !strings.HasPrefix(e.ExternalID, f.IDPrefix) {
			continue
		}
		if f.RegisteredFrom != nil && e.RegisteredAt.Before(*f.RegisteredFrom) {
			continue
		}
		if f.RegisteredTo != nil && e.RegisteredAt.After(*f.RegisteredTo) {
			continue
		}
		if f.Completed != nil && (e.OverallCompletedAt != nil) != *f.Completed {
			continue
		}
		if f.CompletedFrom != nil && (e.LastCompletedAt == nil || e.LastCompletedAt.Before(*f.CompletedFrom)) {
			continue
		}
		if f.CompletedTo != nil && (e.LastCompletedAt == nil || e.LastCompletedAt.After(*f.CompletedTo)) {
			continue
		}
		if f.MinScore != nil && (e.AvgScore == nil || *e.AvgScore < *f.MinScore) {
			continue
		}
		if f.MinExams > 0 && e.ExamsCompleted < f.MinExams {
			continue
		}
		out = append(out, e)
	}
	return out
}

// sortEntries orders entries by the requested column. A missing value
// always compares greater than any real one, which puts nulls last on an
// ascending sort and first on a descending one.
func sortEntries(entries []RosterEntry, by RosterSort) error {
	if by.Column == "" {
		by.Column = "registered_at"
	}

	if by.Column == "external_id" {
		sort.SliceStable(entries, func(i, j int) bool {
			if by.Desc {
				return entries[i].ExternalID > entries[j].ExternalID
			}
			return entries[i].ExternalID < entries[j].ExternalID
		})
		return nil
	}

	key, err := sortKeyFunc(by.Column)
	if err != nil {
		return err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		vi, nullI := key(entries[i])
		vj, nullJ := key(entries[j])
		if nullI != nullJ {
			if by.Desc {
				return nullI // nulls first descending
			}
			return nullJ // nulls last ascending
		}
		if nullI {
			return false
		}
		if by.Desc {
			return vi > vj
		}
		return vi < vj
	})
	return nil
}

func sortKeyFunc(column string) (func(RosterEntry) (float64, bool), error) {
	switch column {
	case "registered_at":
		return func(e RosterEntry) (float64, bool) {
			return float64(e.RegisteredAt.UnixNano()), false
		}, nil
	case "exams_completed":
		return func(e RosterEntry) (float64, bool) {
			return float64(e.ExamsCompleted), false
		}, nil
	case "avg_score":
		return func(e RosterEntry) (float64, bool) {
			if e.AvgScore == nil {
				return 0, true
			}
			return *e.AvgScore, false
		}, nil
	case "total_keystrokes":
		return func(e RosterEntry) (float64, bool) {
			return float64(e.TotalKeystrokes), false
		}, nil
	case "total_duration_seconds":
		return func(e RosterEntry) (float64, bool) {
			return float64(e.TotalDurationSeconds), false
		}, nil
	case "last_completed_at":
		return func(e RosterEntry) (float64, bool) {
			if e.LastCompletedAt == nil {
				return 0, true
			}
			return float64(e.LastCompletedAt.UnixNano()), false
		}, nil
	default:
		return nil, fmt.Errorf("unknown roster sort column %q", column)
	}
}

func formatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return strconv.FormatFloat(*score, 'f', 2, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
