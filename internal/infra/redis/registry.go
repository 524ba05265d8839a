package redis

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quiz-coordinator/internal/app"
)

// Registry is a Redis-aware room registry.
// Notes:
//   - Rooms themselves stay in-process: the broadcast fan-out and the
//     per-room exclusive section do not distribute.
//   - Redis marks room liveness (and could be extended to route
//     cross-instance pub/sub, which is out of scope here).
type Registry struct {
	client *redis.Client
	ttl    time.Duration
	clock  clockwork.Clock
	logger zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]*app.Room

	sweepOnce sync.Once
	stop      chan struct{}
}

func NewRegistry(client *redis.Client, ttl time.Duration, clock clockwork.Clock, logger zerolog.Logger) *Registry {
	return &Registry{
		client: client,
		ttl:    ttl,
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
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(quizID), "1", r.ttl).Err()
	r.logger.Info().Str("quiz_id", quizID).Msg("room created")
	return room
}

func (r *Registry) Get(quizID string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[quizID]
	return room, ok
}

// Sweep drops evictable rooms and clears their liveness keys.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for quizID, room := range r.rooms {
		if room.Evictable() {
			delete(r.rooms, quizID)
			_ = r.client.Del(context.Background(), r.key(quizID)).Err()
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

func (r *Registry) key(quizID string) string {
	return "quiz:session:" + quizID
}
