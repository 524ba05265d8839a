// Package scoring holds the pure answer-evaluation logic. It owns no state
// and is safe to call concurrently from any number of rooms.
package scoring

import (
	"time"

	"quiz-coordinator/internal/domain"
)

// Result is the scorer's decision for one submission.
type Result struct {
	Accepted bool
	Correct  bool
	Delta    int
	Reason   domain.RejectReason
}

// Evaluate decides whether a submission is accepted and what it is worth.
// Submissions outside the question's open window are rejected, as are
// unknown option IDs. Accepted submissions award the question's points
// (default 1) when the option is correct and zero otherwise.
func Evaluate(q domain.Question, optionID string, submittedAt time.Time) Result {
	if !inWindow(q, submittedAt) {
		return Result{Reason: domain.ReasonOutOfWindow}
	}

	var selected *domain.Option
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			selected = &q.Options[i]
			break
		}
	}
	if selected == nil {
		return Result{Reason: domain.ReasonInvalidOption}
	}

	if !selected.Correct {
		return Result{Accepted: true}
	}
	points := q.Points
	if points == 0 {
		points = 1
	}
	return Result{Accepted: true, Correct: true, Delta: points}
}

func inWindow(q domain.Question, at time.Time) bool {
	if !q.OpenAt.IsZero() && at.Before(q.OpenAt) {
		return false
	}
	if !q.CloseAt.IsZero() && at.After(q.CloseAt) {
		return false
	}
	return true
}
