package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/postgres"
	rediscache "quiz-session-service/internal/infra/redis"
	transport "quiz-session-service/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			return runServer(cmd.Context(), cfg, *port, log)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = newRedisClient(cfg)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	source, closeSource, err := catalogSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSource()

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.Catalog
	if redisClient != nil {
		catalog = rediscache.NewCatalogCache(redisClient, source, catalogTTL)
	} else {
		catalog = memory.NewCatalogCache(source, catalogTTL)
	}

	var store app.SessionRepository
	switch backend := cfg.SessionBackend(); backend {
	case config.BackendPostgres:
		if cfg.Postgres.URL == "" {
			return fmt.Errorf("postgres session backend needs postgres.url")
		}
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewSessionStore(db)
	case config.BackendRedis:
		if redisClient == nil {
			return fmt.Errorf("redis session backend needs redis.addr")
		}
		store = rediscache.NewSessionStore(redisClient)
	case config.BackendMemory:
		store = memory.NewSessionStore()
	default:
		return fmt.Errorf("unknown session backend %q", backend)
	}
	log.Info("session backend selected", zap.String("backend", cfg.SessionBackend()))

	service := app.NewSessionService(store, catalog, auth.ContextProvider{}, log)

	if strings.HasPrefix(strings.ToLower(cfg.Log.Mode), "prod") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(service, verifier, log, transport.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting quiz session service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// catalogSource picks the authoritative quiz content: Postgres when configured,
// otherwise a YAML fixture, otherwise the built-in sample.
func catalogSource(ctx context.Context, cfg config.Config, log *zap.Logger) (app.Catalog, func(), error) {
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewCatalog(pool), pool.Close, nil
	}
	if cfg.Catalog.Fixture != "" {
		quizzes, err := memory.LoadFixture(cfg.Catalog.Fixture)
		if err != nil {
			return nil, nil, fmt.Errorf("load fixture: %w", err)
		}
		log.Info("serving catalog from fixture", zap.String("fixture", cfg.Catalog.Fixture), zap.Int("quizzes", len(quizzes)))
		return memory.NewStaticCatalog(quizzes), func() {}, nil
	}
	log.Warn("no catalog configured, serving sample quiz")
	return memory.NewStaticCatalog(sampleQuizzes()), func() {}, nil
}

func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:    1,
			Title: "Warm-up",
			Questions: []domain.Question{
				{ID: 1, Prompt: "What is 2 + 2?", Answers: []domain.Answer{
					{ID: 1, Text: "3"},
					{ID: 2, Text: "4", IsCorrect: true},
					{ID: 3, Text: "5"},
				}},
				{ID: 2, Prompt: "Which planet is closest to the sun?", Answers: []domain.Answer{
					{ID: 4, Text: "Mercury", IsCorrect: true},
					{ID: 5, Text: "Venus"},
				}},
			},
		},
	}
}
