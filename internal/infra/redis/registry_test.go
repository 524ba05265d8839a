package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quiz-coordinator/internal/app"
	"quiz-coordinator/internal/domain"
)

func TestRegistrySetsAndClearsLivenessKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := clockwork.NewFakeClock()
	registry := NewRegistry(client, time.Minute, clock, zerolog.Nop())

	room := registry.GetOrCreate("quiz-1", func() *app.Room {
		return app.NewRoom("quiz-1", domain.Quiz{ID: "quiz-1"}, time.Minute, clock)
	})
	if !mr.Exists("quiz:session:quiz-1") {
		t.Fatalf("expected liveness key to be set")
	}

	room.Close()
	if evicted := registry.Sweep(); evicted != 1 {
		t.Fatalf("expected closed room evicted, got %d", evicted)
	}
	if mr.Exists("quiz:session:quiz-1") {
		t.Fatalf("expected liveness key to be removed")
	}
}
