package app

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-coordinator/internal/domain"
	"quiz-coordinator/internal/scoring"
)

// subscriberBuffer bounds each subscriber channel; a stalled connection has
// its oldest buffered snapshot dropped in favor of the newest.
const subscriberBuffer = 8

// Room owns one quiz session: its participant set, question cursor, score
// ledger and subscriber fan-out. Every mutating operation runs under a single
// mutex, so score updates and the snapshots they trigger are linearizable
// with respect to each other. Rooms are independent; no lock spans two rooms.
type Room struct {
	quizID string
	quiz   domain.Quiz
	clock  clockwork.Clock
	grace  time.Duration

	mu              sync.Mutex
	state           domain.RoomState
	currentQuestion int
	participants    map[string]*domain.Participant
	submissions     map[string]map[string]domain.SubmitResult
	attached        map[string]int
	graceTimers     map[string]clockwork.Timer
	subscribers     map[chan domain.Leaderboard]struct{}
	version         uint64
	createdAt       time.Time
	emptySince      time.Time
}

// NewRoom publishes quiz content into a fresh room in the Waiting state.
func NewRoom(quizID string, quiz domain.Quiz, grace time.Duration, clock clockwork.Clock) *Room {
	now := clock.Now()
	return &Room{
		quizID:          quizID,
		quiz:            quiz,
		clock:           clock,
		grace:           grace,
		state:           domain.RoomWaiting,
		currentQuestion: -1,
		participants:    make(map[string]*domain.Participant),
		submissions:     make(map[string]map[string]domain.SubmitResult),
		attached:        make(map[string]int),
		graceTimers:     make(map[string]clockwork.Timer),
		subscribers:     make(map[chan domain.Leaderboard]struct{}),
		createdAt:       now,
		emptySince:      now,
	}
}

// Join registers a new participant with score zero, or reattaches an existing
// one across a reconnect without touching their score. Any pending removal
// timer for the participant is cancelled.
func (r *Room) Join(userID, displayName string) (domain.Leaderboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == domain.RoomClosed {
		return domain.Leaderboard{}, domain.ErrRoomClosed
	}

	now := r.clock.Now()
	if timer, ok := r.graceTimers[userID]; ok {
		timer.Stop()
		delete(r.graceTimers, userID)
	}
	if participant, ok := r.participants[userID]; ok {
		participant.DisplayName = displayName
	} else {
		r.participants[userID] = &domain.Participant{
			UserID:      userID,
			DisplayName: displayName,
			ScoredAt:    now,
			JoinedAt:    now,
		}
	}
	r.attached[userID]++
	return r.broadcastLocked(), nil
}

// SubmitAnswer records an answer exactly once per (participant, question).
// Rejected submissions (late, invalid option) still consume the slot; a
// resubmission returns the originally recorded outcome with Duplicate set
// and never mutates the score.
func (r *Room) SubmitAnswer(userID string, sub domain.AnswerSubmission) (domain.SubmitResult, domain.Leaderboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == domain.RoomClosed {
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrRoomClosed
	}
	participant, ok := r.participants[userID]
	if !ok {
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrUnknownParticipant
	}
	question, ok := r.quiz.Question(sub.QuestionID)
	if !ok {
		return domain.SubmitResult{}, domain.Leaderboard{}, domain.ErrQuestionNotFound
	}

	if byUser, ok := r.submissions[sub.QuestionID]; ok {
		if recorded, ok := byUser[userID]; ok {
			recorded.Duplicate = true
			recorded.TotalScore = participant.Score
			return recorded, r.snapshotLocked(), nil
		}
	}

	decision := scoring.Evaluate(question, sub.OptionID, sub.SubmittedAt)
	if decision.Accepted && decision.Delta > 0 {
		participant.Score += decision.Delta
		participant.ScoredAt = sub.SubmittedAt
	}

	result := domain.SubmitResult{
		QuestionID: sub.QuestionID,
		Accepted:   decision.Accepted,
		Correct:    decision.Correct,
		Awarded:    decision.Delta,
		TotalScore: participant.Score,
		Reason:     decision.Reason,
	}
	if r.submissions[sub.QuestionID] == nil {
		r.submissions[sub.QuestionID] = make(map[string]domain.SubmitResult)
	}
	r.submissions[sub.QuestionID][userID] = result

	return result, r.broadcastLocked(), nil
}

// AdvanceQuestion moves the question cursor forward. The first advance takes
// the room from Waiting to Active; running past the last question closes it.
// The returned bool is false once the room is closed. Presenting a question
// rebroadcasts the leaderboard so every connection sees the standings as the
// round opens.
func (r *Room) AdvanceQuestion() (domain.Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == domain.RoomClosed {
		return domain.Question{}, false
	}
	r.currentQuestion++
	if r.currentQuestion >= len(r.quiz.Questions) {
		r.closeLocked()
		return domain.Question{}, false
	}
	r.state = domain.RoomActive
	r.broadcastLocked()
	return r.quiz.Questions[r.currentQuestion], true
}

// CurrentQuestion returns the question currently presented, if any.
func (r *Room) CurrentQuestion() (domain.Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentQuestion < 0 || r.currentQuestion >= len(r.quiz.Questions) {
		return domain.Question{}, false
	}
	return r.quiz.Questions[r.currentQuestion], true
}

// Leave detaches one connection of a participant. When their last connection
// is gone a grace timer is armed; if it expires with no reattachment the
// participant and their score are removed for good.
func (r *Room) Leave(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[userID]; !ok {
		return
	}
	if r.attached[userID] > 0 {
		r.attached[userID]--
	}
	if r.attached[userID] > 0 {
		return
	}
	delete(r.attached, userID)

	if r.grace <= 0 {
		r.removeParticipantLocked(userID)
		return
	}
	if timer, ok := r.graceTimers[userID]; ok {
		timer.Stop()
	}
	r.graceTimers[userID] = r.clock.AfterFunc(r.grace, func() {
		r.expireParticipant(userID)
	})
}

func (r *Room) expireParticipant(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A reconnect cancels and removes the timer; if it is gone the expiry lost the race.
	if _, ok := r.graceTimers[userID]; !ok {
		return
	}
	delete(r.graceTimers, userID)
	r.removeParticipantLocked(userID)
}

func (r *Room) removeParticipantLocked(userID string) {
	delete(r.participants, userID)
	if len(r.participants) == 0 {
		r.emptySince = r.clock.Now()
	}
	r.broadcastLocked()
}

// Close transitions the room to its terminal state. Subsequent joins and
// submissions fail with ErrRoomClosed; subscriber channels are closed.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Room) closeLocked() {
	if r.state == domain.RoomClosed {
		return
	}
	r.state = domain.RoomClosed
	for _, timer := range r.graceTimers {
		timer.Stop()
	}
	r.graceTimers = make(map[string]clockwork.Timer)
	for ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = make(map[chan domain.Leaderboard]struct{})
}

// State reports the room's lifecycle phase.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsEmpty reports whether the room has no participants.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants) == 0
}

// Evictable reports whether the registry sweep may drop this room: closed
// with every connection detached, or empty for longer than the grace period.
func (r *Room) Evictable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.RoomClosed {
		return len(r.attached) == 0
	}
	if len(r.participants) > 0 || len(r.attached) > 0 {
		return false
	}
	return r.clock.Now().Sub(r.emptySince) >= r.grace
}

// Subscribe returns a channel receiving leaderboard snapshots, primed with
// the current one. The cancel function must be called to avoid leaks; the
// channel is also closed when the room closes.
func (r *Room) Subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, subscriberBuffer)

	r.mu.Lock()
	if r.state == domain.RoomClosed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[ch] = struct{}{}
	// Prime under the lock: the fresh buffered channel cannot block, and a
	// concurrent Close or broadcast must not slip in before the initial
	// snapshot.
	ch <- r.snapshotLocked()
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot recomputes the leaderboard from current scores.
func (r *Room) Snapshot() domain.Leaderboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) broadcastLocked() domain.Leaderboard {
	r.version++
	lb := r.snapshotLocked()
	for ch := range r.subscribers {
		select {
		case ch <- lb:
		default:
			// Drop the oldest buffered snapshot so the newest always lands
			// and a slow connection never blocks the room.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
	return lb
}

func (r *Room) snapshotLocked() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(r.participants))
	for _, participant := range r.participants {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      participant.UserID,
			DisplayName: participant.DisplayName,
			Score:       participant.Score,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		// Equal scores: whoever got there first ranks higher, then name.
		pi := r.participants[entries[i].UserID]
		pj := r.participants[entries[j].UserID]
		if pi != nil && pj != nil && !pi.ScoredAt.Equal(pj.ScoredAt) {
			return pi.ScoredAt.Before(pj.ScoredAt)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	return domain.Leaderboard{
		QuizID:    r.quizID,
		Version:   r.version,
		Entries:   entries,
		UpdatedAt: r.clock.Now(),
	}
}
