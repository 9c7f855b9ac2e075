package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinematch-quiz-service/internal/app"
	"cinematch-quiz-service/internal/catalog"
	"cinematch-quiz-service/internal/config"
	"cinematch-quiz-service/internal/domain"
	"cinematch-quiz-service/internal/infra/memory"
	"cinematch-quiz-service/internal/infra/postgres"
	redisstore "cinematch-quiz-service/internal/infra/redis"
	"cinematch-quiz-service/internal/infra/sqlite"
	transport "cinematch-quiz-service/internal/transport/http"
	"cinematch-quiz-service/internal/verifier"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	cat, err := catalog.Load(cfg.Quiz.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	cache := memory.NewRecentCache(store, config.TTLDuration(cfg.Stats.CacheTTL, 5*time.Second))
	stats := app.NewStatsService(cache, cat, cfg.Stats.MineLimit, cfg.Stats.GlobalLimit)
	feed := app.NewPopulationFeed(stats)

	if cfg.Verifier.Secret == "" {
		slog.Warn("verifier secret not configured; submissions will be refused")
	}
	verifyTimeout := config.TTLDuration(cfg.Verifier.Timeout, app.DefaultVerifyTimeout)
	gate := app.NewSubmissionGate(store,
		verifier.NewSiteVerifier(cfg.Verifier.URL, cfg.Verifier.Secret, verifyTimeout),
		cat,
		app.GateConfig{
			MinScore:          cfg.Verifier.MinScore,
			ExpectedAction:    cfg.Verifier.ExpectedAction,
			VerifyTimeout:     verifyTimeout,
			IdempotencyWindow: config.TTLDuration(cfg.Quiz.IdempotencyWindow, app.DefaultIdempotencyWindow),
		})
	gate.OnStored(func(r domain.StoredResult) {
		cache.Invalidate()
		go func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := feed.Refresh(refreshCtx); err != nil {
				slog.Warn("population feed refresh failed", "result", r.ID, "error", err)
			}
		}()
	})

	router := transport.NewRouter(transport.Deps{
		Catalog:     cat,
		Sessions:    app.NewSessionGenerator(cat),
		Scorer:      app.NewScoringEngine(cat),
		Gate:        gate,
		Stats:       stats,
		Preferences: store,
		Attestation: verifier.NewAttestationChecker(cfg.Attestation.Secret, cfg.Attestation.Audience),
		Feed:        feed,
		SessionSize: cfg.Quiz.SessionSize,
		CORSOrigins: cfg.CORS.Origins,
	})

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("starting quiz service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore picks the result store: postgres, then redis, then sqlite, then memory.
func openStore(ctx context.Context, cfg config.Config) (app.ResultStore, func(), error) {
	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using postgres result store")
		return postgres.NewResultStore(pool), pool.Close, nil

	case cfg.Redis.Addr != "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("using redis result store", "addr", cfg.Redis.Addr)
		return redisstore.NewResultStore(client), func() { _ = client.Close() }, nil

	case cfg.SQLite.Path != "":
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using sqlite result store", "path", cfg.SQLite.Path)
		return store, func() { _ = store.Close() }, nil

	default:
		slog.Warn("no store configured; results are kept in memory only")
		return memory.NewResultStore(), func() {}, nil
	}
}
