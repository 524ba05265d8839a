package scoring

import (
	"testing"
	"time"

	"quiz-coordinator/internal/domain"
)

func TestEvaluate(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	question := domain.Question{
		ID: "q1",
		Options: []domain.Option{
			{ID: "a", Text: "wrong"},
			{ID: "b", Text: "right", Correct: true},
		},
		OpenAt:  t0,
		CloseAt: t0.Add(30 * time.Second),
		Points:  10,
	}

	cases := []struct {
		name        string
		optionID    string
		submittedAt time.Time
		want        Result
	}{
		{"correct in window", "b", t0.Add(5 * time.Second), Result{Accepted: true, Correct: true, Delta: 10}},
		{"wrong in window", "a", t0.Add(5 * time.Second), Result{Accepted: true}},
		{"after close", "b", t0.Add(31 * time.Second), Result{Reason: domain.ReasonOutOfWindow}},
		{"before open", "b", t0.Add(-time.Second), Result{Reason: domain.ReasonOutOfWindow}},
		{"at close boundary", "b", t0.Add(30 * time.Second), Result{Accepted: true, Correct: true, Delta: 10}},
		{"unknown option", "z", t0.Add(5 * time.Second), Result{Reason: domain.ReasonInvalidOption}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(question, tc.optionID, tc.submittedAt)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestEvaluateDefaultsPointsToOne(t *testing.T) {
	question := domain.Question{
		ID:      "q1",
		Options: []domain.Option{{ID: "a", Correct: true}},
	}
	got := Evaluate(question, "a", time.Now())
	if !got.Accepted || !got.Correct || got.Delta != 1 {
		t.Fatalf("expected default 1 point, got %+v", got)
	}
}

func TestEvaluateUnboundedWindow(t *testing.T) {
	question := domain.Question{
		ID:      "q1",
		Options: []domain.Option{{ID: "a", Correct: true}},
		Points:  3,
	}
	got := Evaluate(question, "a", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))
	if !got.Accepted || got.Delta != 3 {
		t.Fatalf("expected acceptance with unbounded window, got %+v", got)
	}
}
