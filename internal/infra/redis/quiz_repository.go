package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-coordinator/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quiz content in Redis (one hash per quiz, a JSON
// question per field) and falls back to a loader on cache miss. Questions are
// cached whole: scoring needs the full option set and the answer window, not
// just the correct option.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

// cachedQuestion pairs a question with its position in the quiz so the
// sequence survives the round trip through an unordered hash.
type cachedQuestion struct {
	Index    int             `json:"index"`
	Question domain.Question `json:"question"`
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := r.questionsKey(quizID)

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err == nil && len(fields) > 0 {
		return buildQuizFromCache(quizID, fields)
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		fields, err := r.client.HGetAll(ctx, key).Result()
		if err == nil && len(fields) > 0 {
			quiz, err := buildQuizFromCache(quizID, fields)
			if err != nil {
				return domain.Quiz{}, err
			}
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for i, q := range quiz.Questions {
			raw, err := json.Marshal(cachedQuestion{Index: i, Question: q})
			if err != nil {
				return domain.Quiz{}, err
			}
			pipe.HSet(ctx, key, q.ID, raw)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) questionsKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func buildQuizFromCache(quizID string, fields map[string]string) (domain.Quiz, error) {
	cached := make([]cachedQuestion, 0, len(fields))
	for _, raw := range fields {
		var cq cachedQuestion
		if err := json.Unmarshal([]byte(raw), &cq); err != nil {
			return domain.Quiz{}, err
		}
		cached = append(cached, cq)
	}
	sort.Slice(cached, func(i, j int) bool { return cached[i].Index < cached[j].Index })
	questions := make([]domain.Question, 0, len(cached))
	for _, cq := range cached {
		questions = append(questions, cq.Question)
	}
	return domain.Quiz{ID: quizID, Questions: questions}, nil
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	// The locked global source keeps concurrent misses on distinct quiz IDs
	// from racing on a shared generator.
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
