package domain

import "time"

// RoomState is the lifecycle phase of a quiz room. Transitions are linear:
// Waiting -> Active -> Closed, with Closed terminal.
type RoomState string

const (
	RoomWaiting RoomState = "waiting"
	RoomActive  RoomState = "active"
	RoomClosed  RoomState = "closed"
)

// RejectReason explains a rejected submission.
type RejectReason string

const (
	ReasonOutOfWindow   RejectReason = "out_of_window"
	ReasonInvalidOption RejectReason = "invalid_option"
)

// Participant represents a joined user's live state within a room.
type Participant struct {
	UserID      string
	DisplayName string
	Score       int
	// ScoredAt is the instant the participant reached their current score;
	// earlier wins leaderboard ties at equal scores.
	ScoredAt time.Time
	JoinedAt time.Time
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
// Rank is positional: index 0 is the leader.
type LeaderboardEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"username"`
	Score       int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a quiz room. Version
// increments with every snapshot generated by the room, so subscribers can
// assert delivery order.
type Leaderboard struct {
	QuizID    string             `json:"quiz_id"`
	Version   uint64             `json:"version"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID string
	OptionID   string
	// SubmittedAt is caller-supplied so the answer window is evaluated
	// lazily, without per-question close timers.
	SubmittedAt time.Time
}

// SubmitResult summarizes the outcome of a submission for a single user.
// A duplicate submission returns the originally recorded outcome with
// Duplicate set; the score is never touched twice for one question.
type SubmitResult struct {
	QuestionID string       `json:"question_id"`
	Accepted   bool         `json:"accepted"`
	Correct    bool         `json:"correct"`
	Awarded    int          `json:"awarded"`
	TotalScore int          `json:"total_score"`
	Reason     RejectReason `json:"reason,omitempty"`
	Duplicate  bool         `json:"duplicate,omitempty"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
// A zero OpenAt/CloseAt pair means the answer window is unbounded.
type Question struct {
	ID      string    `json:"id"`
	Prompt  string    `json:"prompt"`
	Options []Option  `json:"options"`
	OpenAt  time.Time `json:"openAt,omitempty"`
	CloseAt time.Time `json:"closeAt,omitempty"`
	Points  int       `json:"points"` // defaults to 1 if zero
}

// Quiz is an ordered collection of questions, immutable once published
// into a room.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Question returns the question with the given ID, if present.
func (q Quiz) Question(id string) (Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return q.Questions[i], true
		}
	}
	return Question{}, false
}
