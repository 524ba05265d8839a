// Package app contains the quiz session coordinator: the use cases the
// gateway drives and the rooms that serialize them.
package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-coordinator/internal/domain"
)

// RoomRepository abstracts how rooms are registered (in-memory, Redis-marked).
// GetOrCreate must yield exactly one room per quiz ID even under concurrent
// first joins.
type RoomRepository interface {
	GetOrCreate(quizID string, create func() *Room) *Room
	Get(quizID string) (*Room, bool)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Options tune room policy.
type Options struct {
	// AutoCreate makes the first join to a known quiz create its room
	// lazily. When false, rooms exist only via Provision.
	AutoCreate bool
	// GracePeriod is how long a fully disconnected participant keeps their
	// score before removal, and how long an empty room survives the sweep.
	GracePeriod time.Duration
	Clock       clockwork.Clock
}

// Coordinator contains the core quiz use cases.
type Coordinator struct {
	rooms      RoomRepository
	quizzes    QuizRepository
	autoCreate bool
	grace      time.Duration
	clock      clockwork.Clock
}

func NewCoordinator(rooms RoomRepository, quizzes QuizRepository, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Coordinator{
		rooms:      rooms,
		quizzes:    quizzes,
		autoCreate: opts.AutoCreate,
		grace:      opts.GracePeriod,
		clock:      opts.Clock,
	}
}

// NewRoomForQuiz is exported for registries that need to seed rooms with the
// coordinator's policy.
func (c *Coordinator) NewRoomForQuiz(quizID string, quiz domain.Quiz) *Room {
	return NewRoom(quizID, quiz, c.grace, c.clock)
}

// Provision creates a room for a quiz ahead of any join. Idempotent.
func (c *Coordinator) Provision(ctx context.Context, quizID string) error {
	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	c.rooms.GetOrCreate(quizID, func() *Room { return c.NewRoomForQuiz(quizID, quiz) })
	return nil
}

// Join registers or reattaches a participant. Quiz content must resolve even
// with auto-creation on; joining a quiz nobody authored fails.
func (c *Coordinator) Join(ctx context.Context, quizID, userID, displayName string) (domain.Leaderboard, error) {
	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	var room *Room
	if c.autoCreate {
		room = c.rooms.GetOrCreate(quizID, func() *Room { return c.NewRoomForQuiz(quizID, quiz) })
	} else {
		var ok bool
		room, ok = c.rooms.Get(quizID)
		if !ok {
			return domain.Leaderboard{}, domain.ErrRoomNotFound
		}
	}
	return room.Join(userID, displayName)
}

// SubmitAnswer records an answer for a joined participant. A zero
// SubmittedAt is stamped with the coordinator's clock.
func (c *Coordinator) SubmitAnswer(ctx context.Context, quizID, userID string, sub domain.AnswerSubmission) (domain.SubmitResult, domain.Leaderboard, error) {
	room, ok := c.rooms.Get(quizID)
	if !ok {
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrRoomNotFound
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = c.clock.Now()
	}
	return room.SubmitAnswer(userID, sub)
}

// AdvanceQuestion moves a room to its next question; the bool is false once
// the room has run out and closed.
func (c *Coordinator) AdvanceQuestion(_ context.Context, quizID string) (domain.Question, bool, error) {
	room, ok := c.rooms.Get(quizID)
	if !ok {
		return domain.Question{}, false, domain.ErrRoomNotFound
	}
	q, more := room.AdvanceQuestion()
	return q, more, nil
}

// Subscribe returns a channel that receives leaderboard updates for a quiz.
// The caller must invoke the returned cancel function to avoid leaks.
func (c *Coordinator) Subscribe(_ context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	room, ok := c.rooms.Get(quizID)
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch, cancel := room.Subscribe()
	return ch, cancel, nil
}

// Leave detaches one of a participant's connections; full removal waits out
// the grace period inside the room.
func (c *Coordinator) Leave(_ context.Context, quizID, userID string) {
	room, ok := c.rooms.Get(quizID)
	if !ok {
		return
	}
	room.Leave(userID)
}

// CloseRoom terminates a session; eviction is left to the registry sweep.
func (c *Coordinator) CloseRoom(_ context.Context, quizID string) error {
	room, ok := c.rooms.Get(quizID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Close()
	return nil
}
