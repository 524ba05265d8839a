package memory

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-coordinator/internal/app"
)

// Registry is the in-memory quizID -> room mapping. GetOrCreate holds the
// registry lock across the check and the create, so concurrent first joiners
// always share one room instance.
type Registry struct {
	clock  clockwork.Clock
	logger zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]*app.Room

	sweepOnce sync.Once
	stop      chan struct{}
}

func NewRegistry(clock clockwork.Clock, logger zerolog.Logger) *Registry {
	return &Registry{
		clock:  clock,
		logger: logger,
		rooms:  make(map[string]*app.Room),
		stop:   make(chan struct{}),
	}
}

func (r *Registry) GetOrCreate(quizID string, create func() *app.Room) *app.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[quizID]; ok {
		return room
	}
	room := create()
	r.rooms[quizID] = room
	r.logger.Info().Str("quiz_id", quizID).Msg("room created")
	return room
}

func (r *Registry) Get(quizID string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[quizID]
	return room, ok
}

// Sweep drops rooms that report themselves evictable: closed with all
// connections detached, or empty past the grace period.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for quizID, room := range r.rooms {
		if room.Evictable() {
			delete(r.rooms, quizID)
			evicted++
			r.logger.Info().Str("quiz_id", quizID).Msg("room evicted")
		}
	}
	return evicted
}

// StartSweeper runs Sweep on the given interval until Stop is called.
func (r *Registry) StartSweeper(interval time.Duration) {
	r.sweepOnce.Do(func() {
		go func() {
			ticker := r.clock.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.Chan():
					r.Sweep()
				case <-r.stop:
					return
				}
			}
		}()
	})
}

func (r *Registry) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
