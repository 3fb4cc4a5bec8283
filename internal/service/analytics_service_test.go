package service

import (
	"context"
	"testing"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/rs/zerolog"
)

func TestAnalyticsDashboard(t *testing.T) {
	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	annotators := []model.Annotator{
		{ID: 1, ExternalID: "a", CreatedAt: registered(1)},
		{ID: 2, ExternalID: "b", CreatedAt: registered(2), OverallCompletedAt: &done},
	}
	records := []model.CompletionRecord{
		{AnnotatorID: 1, ExamID: 1, DurationSeconds: 600, Status: model.CompletionSubmitted,
			CompletedAt: done.Add(-24 * time.Hour), Score: ptrFloat(0.6)},
		{AnnotatorID: 2, ExamID: 1, DurationSeconds: 1200, Status: model.CompletionTimedOut,
			CompletedAt: done, Score: ptrFloat(1.0)},
		{AnnotatorID: 2, ExamID: 2, DurationSeconds: 300, Status: model.CompletionSubmitted,
			CompletedAt: done},
	}

	exams := NewExamService(&fakeResolver{ids: map[string]int{
		"baptism": 1, "marriage": 2, "confirmation": 3, "burial": 4,
	}})
	svc := NewAnalyticsService(
		&fakeRosterAnnotators{annotators: annotators},
		&fakeRosterCompletions{records: records},
		exams, zerolog.Nop(),
	)

	d, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if d.TotalAnnotators != 2 || d.FinishedAnnotators != 1 || d.TotalCompletions != 3 {
		t.Fatalf("headline counts = %d/%d/%d", d.TotalAnnotators, d.FinishedAnnotators, d.TotalCompletions)
	}
	if len(d.Exams) != 4 {
		t.Fatalf("exam stats rows = %d, want all 4 catalog exams", len(d.Exams))
	}

	byCode := make(map[string]ExamStats)
	for _, e := range d.Exams {
		byCode[e.ExamCode] = e
	}

	baptism := byCode["baptism"]
	if baptism.Completions != 2 || baptism.Submitted != 1 || baptism.TimedOut != 1 {
		t.Errorf("baptism stats = %+v", baptism)
	}
	if baptism.AvgScore == nil || *baptism.AvgScore != 0.8 {
		t.Errorf("baptism avg score = %v, want 0.8", baptism.AvgScore)
	}
	if baptism.AvgDurationSeconds == nil || *baptism.AvgDurationSeconds != 900 {
		t.Errorf("baptism avg duration = %v, want 900", baptism.AvgDurationSeconds)
	}

	marriage := byCode["marriage"]
	if marriage.Completions != 1 || marriage.AvgScore != nil {
		t.Errorf("marriage stats = %+v", marriage)
	}
	if burial := byCode["burial"]; burial.Completions != 0 {
		t.Errorf("burial should be empty: %+v", burial)
	}

	if len(d.CompletionsByDay) != 2 {
		t.Fatalf("days = %d, want 2", len(d.CompletionsByDay))
	}
	if d.CompletionsByDay[0].Date != "2026-02-28" || d.CompletionsByDay[0].Count != 1 {
		t.Errorf("first day = %+v", d.CompletionsByDay[0])
	}
	if d.CompletionsByDay[1].Date != "2026-03-01" || d.CompletionsByDay[1].Count != 2 {
		t.Errorf("second day = %+v", d.CompletionsByDay[1])
	}
}
