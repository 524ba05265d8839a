package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-coordinator/internal/app"
	"quiz-coordinator/internal/domain"
	pgloader "quiz-coordinator/internal/infra/postgres"
	pgmigrations "quiz-coordinator/internal/infra/postgres/migrations"
	infraredis "quiz-coordinator/internal/infra/redis"
)

func TestScoringEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	clock := clockwork.NewFakeClock()
	t0 := clock.Now()
	seedQuiz(t, ctx, pgURL, sampleQuiz(t0))

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuizLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	registry := infraredis.NewRegistry(redisClient, 5*time.Minute, clock, zerolog.Nop())
	defer registry.Stop()

	coordinator := app.NewCoordinator(registry, quizRepo, app.Options{
		AutoCreate:  true,
		GracePeriod: time.Minute,
		Clock:       clock,
	})

	if _, err := coordinator.Join(ctx, "Q1", "alice", "alice"); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := coordinator.Join(ctx, "Q1", "bob", "bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	// alice answers correctly at t0+5s.
	result, _, err := coordinator.SubmitAnswer(ctx, "Q1", "alice", domain.AnswerSubmission{
		QuestionID: "P1", OptionID: "B", SubmittedAt: t0.Add(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if !result.Accepted || !result.Correct || result.TotalScore != 10 {
		t.Fatalf("expected alice at 10, got %+v", result)
	}

	// bob answers wrong at t0+5s: accepted, zero points.
	result, lb, err := coordinator.SubmitAnswer(ctx, "Q1", "bob", domain.AnswerSubmission{
		QuestionID: "P1", OptionID: "A", SubmittedAt: t0.Add(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if !result.Accepted || result.Correct || result.TotalScore != 0 {
		t.Fatalf("expected bob accepted-but-wrong at 0, got %+v", result)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].DisplayName != "alice" || lb.Entries[0].Score != 10 ||
		lb.Entries[1].DisplayName != "bob" || lb.Entries[1].Score != 0 {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}

	// alice resubmits a different option: duplicate, score unchanged.
	result, lb, err = coordinator.SubmitAnswer(ctx, "Q1", "alice", domain.AnswerSubmission{
		QuestionID: "P1", OptionID: "A", SubmittedAt: t0.Add(6 * time.Second),
	})
	if err != nil {
		t.Fatalf("alice resubmit: %v", err)
	}
	if !result.Duplicate || result.TotalScore != 10 {
		t.Fatalf("expected duplicate with unchanged score, got %+v", result)
	}
	if lb.Entries[0].Score != 10 {
		t.Fatalf("score mutated on duplicate: %+v", lb.Entries)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz(t0 time.Time) domain.Quiz {
	return domain.Quiz{
		ID: "Q1",
		Questions: []domain.Question{
			{
				ID:     "P1",
				Prompt: "Pick B",
				Options: []domain.Option{
					{ID: "A", Text: "wrong"},
					{ID: "B", Text: "right", Correct: true},
				},
				OpenAt:  t0,
				CloseAt: t0.Add(30 * time.Second),
				Points:  10,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
