package cli

import (
	"context"
	"fmt"
	"time"

	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/postgres"
	rediscache "quiz-session-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSeedCmd loads a YAML quiz fixture into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var fixture string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quiz content from a YAML fixture into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if fixture == "" {
				fixture = cfg.Catalog.Fixture
			}
			return runSeed(cmd.Context(), cfg, fixture, log)
		},
	}
	cmd.Flags().StringVar(&fixture, "fixture", "", "path to quiz fixture (defaults to catalog.fixture)")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config, fixture string, log *zap.Logger) error {
	if fixture == "" {
		return fmt.Errorf("no fixture given")
	}
	quizzes, err := memory.LoadFixture(fixture)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	if err := runMigrations(ctx, cfg, log); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewCatalog(pool).Seed(ctx, quizzes); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	log.Info("catalog seeded", zap.String("fixture", fixture), zap.Int("quizzes", len(quizzes)))

	if cfg.Redis.Addr == "" {
		return nil
	}
	client := newRedisClient(cfg)
	defer client.Close()
	cache := rediscache.NewCatalogCache(client, nil, time.Minute)
	for _, quiz := range quizzes {
		if err := cache.Invalidate(ctx, quiz); err != nil {
			log.Warn("catalog cache invalidation failed", zap.Int64("quiz_id", quiz.ID), zap.Error(err))
		}
	}
	return nil
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
