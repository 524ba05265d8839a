package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quiz-coordinator/internal/app"
	"quiz-coordinator/internal/auth"
	"quiz-coordinator/internal/config"
	"quiz-coordinator/internal/domain"
	memstore "quiz-coordinator/internal/infra/memory"
	pgloader "quiz-coordinator/internal/infra/postgres"
	redisstore "quiz-coordinator/internal/infra/redis"
	transport "quiz-coordinator/internal/transport/http"
)

// roomRegistry is what the server needs from either registry implementation.
type roomRegistry interface {
	GetOrCreate(quizID string, create func() *app.Room) *app.Room
	Get(quizID string) (*app.Room, bool)
	StartSweeper(interval time.Duration)
	Stop()
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	clock := clockwork.NewRealClock()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memstore.QuizLoader = memstore.NewStaticQuizLoader(sampleQuizzes(clock))
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memstore.NewQuizRepository(loader, quizTTL)
	}

	var registry roomRegistry
	if redisClient != nil {
		registry = redisstore.NewRegistry(redisClient, redisTTL, clock, logger)
	} else {
		registry = memstore.NewRegistry(clock, logger)
	}
	registry.StartSweeper(config.Duration(cfg.Room.SweepInterval, time.Minute))
	defer registry.Stop()

	coordinator := app.NewCoordinator(registry, quizRepo, app.Options{
		AutoCreate:  cfg.AutoCreateRooms(),
		GracePeriod: config.Duration(cfg.Room.GracePeriod, time.Minute),
		Clock:       clock,
	})

	var verifier auth.TokenVerifier = auth.InsecureVerifier{}
	if cfg.Auth.URL != "" {
		verifier = auth.NewHTTPVerifier(cfg.Auth.URL, config.Duration(cfg.Auth.Timeout, 5*time.Second))
	} else {
		logger.Warn().Msg("no auth service configured, accepting any token")
	}

	gatewayCfg := transport.DefaultGatewayConfig()
	gatewayCfg.WriteTimeout = config.Duration(cfg.Gateway.WriteTimeout, gatewayCfg.WriteTimeout)
	if cfg.Gateway.SendBuffer > 0 {
		gatewayCfg.SendBuffer = cfg.Gateway.SendBuffer
	}
	wsHandler := transport.NewWSHandler(coordinator, verifier, gatewayCfg, clock, logger)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	wsHandler.Register(router)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting quiz coordinator")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides minimal demo content; real deployments load quizzes
// from Postgres.
func sampleQuizzes(clock clockwork.Clock) map[string]domain.Quiz {
	open := clock.Now()
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
					OpenAt:  open,
					CloseAt: open.Add(time.Hour),
					Points:  10,
				},
			},
		},
	}
}
