package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/rs/zerolog"
)

// ExamStats aggregates one exam across all annotators.
type ExamStats struct {
	ExamCode           string   `json:"exam_code"`
	DisplayName        string   `json:"display_name"`
	Completions        int      `json:"completions"`
	Submitted          int      `json:"submitted"`
	TimedOut           int      `json:"timed_out"`
	AvgScore           *float64 `json:"avg_score,omitempty"`
	AvgDurationSeconds *int     `json:"avg_duration_seconds,omitempty"`
}

// DailyCount is one day's completion count for the over-time chart data.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Dashboard is the admin analytics payload.
type Dashboard struct {
	TotalAnnotators    int          `json:"total_annotators"`
	FinishedAnnotators int          `json:"finished_annotators"` // all exams done
	TotalCompletions   int          `json:"total_completions"`
	Exams              []ExamStats  `json:"exams"`
	CompletionsByDay   []DailyCount `json:"completions_by_day"`
}

// AnalyticsService computes the admin dashboard aggregates in-process from
// the same bulk completion feed the roster uses.
type AnalyticsService struct {
	annotators  RosterAnnotators
	completions RosterCompletions
	exams       *ExamService
	log         zerolog.Logger
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(annotators RosterAnnotators, completions RosterCompletions, exams *ExamService, log zerolog.Logger) *AnalyticsService {
	return &AnalyticsService{
		annotators:  annotators,
		completions: completions,
		exams:       exams,
		log:         log.With().Str("component", "analytics_service").Logger(),
	}
}

// Dashboard builds the full analytics payload.
func (s *AnalyticsService) Dashboard(ctx context.Context) (*Dashboard, error) {
	annotators, err := s.annotators.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list annotators: %w", err)
	}

	codeByID := make(map[int]string)
	for _, exam := range s.exams.Catalog() {
		id, err := s.exams.ResolveID(ctx, exam.Code)
		if err != nil {
			s.log.Warn().Err(err).Str("exam", exam.Code).Msg("exam code unresolved, skipping in analytics")
			continue
		}
		codeByID[id] = exam.Code
	}

	type acc struct {
		completions int
		submitted   int
		timedOut    int
		scoreSum    float64
		scoreCount  int
		durationSum int
	}
	byExam := make(map[string]*acc)
	byDay := make(map[string]int)
	total := 0

	afterAnnotator, afterExam := 0, 0
	for {
		page, err := s.completions.ListPage(ctx, afterAnnotator, afterExam, rosterFetchPageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch completions page: %w", err)
		}
		for _, rec := range page {
			total++
			byDay[rec.CompletedAt.UTC().Format("2006-01-02")]++

			code, ok := codeByID[rec.ExamID]
			if !ok {
				continue
			}
			a := byExam[code]
			if a == nil {
				a = &acc{}
				byExam[code] = a
			}
			a.completions++
			a.durationSum += rec.DurationSeconds
			switch rec.Status {
			case model.CompletionSubmitted:
				a.submitted++
			case model.CompletionTimedOut:
				a.timedOut++
			}
			if rec.Score != nil {
				a.scoreSum += *rec.Score
				a.scoreCount++
			}
		}
		if len(page) < rosterFetchPageSize {
			break
		}
		last := page[len(page)-1]
		afterAnnotator, afterExam = last.AnnotatorID, last.ExamID
	}

	finished := 0
	for _, a := range annotators {
		if a.OverallCompletedAt != nil {
			finished++
		}
	}

	d := &Dashboard{
		TotalAnnotators:    len(annotators),
		FinishedAnnotators: finished,
		TotalCompletions:   total,
	}

	for _, exam := range s.exams.Catalog() {
		stats := ExamStats{ExamCode: exam.Code, DisplayName: exam.DisplayName}
		if a := byExam[exam.Code]; a != nil {
			stats.Completions = a.completions
			stats.Submitted = a.submitted
			stats.TimedOut = a.timedOut
			if a.scoreCount > 0 {
				avg := a.scoreSum / float64(a.scoreCount)
				stats.AvgScore = &avg
			}
			if a.completions > 0 {
				avgDur := a.durationSum / a.completions
				stats.AvgDurationSeconds = &avgDur
			}
		}
		d.Exams = append(d.Exams, stats)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		d.CompletionsByDay = append(d.CompletionsByDay, DailyCount{Date: day, Count: byDay[day]})
	}

	return d, nil
}
