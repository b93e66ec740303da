package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/config"
	"github.com/xxxsen/notegraph/internal/db"
	"github.com/xxxsen/notegraph/internal/handler"
	"github.com/xxxsen/notegraph/internal/job"
	"github.com/xxxsen/notegraph/internal/middleware"
	"github.com/xxxsen/notegraph/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "notegraph",
		Short: "notegraph backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run notegraph server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			return runServer(app)
		},
	}

	resyncCmd := &cobra.Command{
		Use:   "resync",
		Short: "re-embed every note whose stored vector is out of date",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return resync(ctx, app)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd, resyncCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*application, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	app, err := wire(cfg, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return app, nil
}

func runServer(app *application) error {
	cfg := app.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("pair_finder", cfg.Relevance.PairFinder),
	)

	deps := handler.RouterDeps{
		Notes:               handler.NewNoteHandler(app.notes),
		AI:                  handler.NewAIHandler(app.ai, app.links),
		Graph:               handler.NewGraphHandler(app.graphs),
		Assistant:           handler.NewAssistantHandler(app.assistant),
		JWTSecret:           []byte(cfg.JWTSecret),
		AIRequestsPerSecond: cfg.RateLimit.AIRequestsPerSecond,
		AIBurst:             cfg.RateLimit.AIBurst,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	syncJob := job.NewEmbeddingSyncJob(app.ai)
	if err := scheduler.AddJob(syncJob, cfg.Jobs.EmbeddingSyncSpec); err != nil {
		return fmt.Errorf("schedule %s: %w", syncJob.Name(), err)
	}
	cleanupJob := job.NewEmbeddingCacheCleanupJob(app.cacheRepo, cfg.Jobs.CacheRetentionDays)
	if err := scheduler.AddJob(cleanupJob, cfg.Jobs.EmbeddingCacheCleanupSpec); err != nil {
		return fmt.Errorf("schedule %s: %w", cleanupJob.Name(), err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	if err := scheduler.Trigger(syncJob.Name()); err != nil {
		return err
	}

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func resync(ctx context.Context, app *application) error {
	logger := logutil.GetLogger(ctx)
	users, err := app.noteRepo.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	total := 0
	for _, userID := range users {
		synced, err := app.ai.ResyncUser(ctx, userID)
		total += synced
		if err != nil {
			return fmt.Errorf("resync user %s: %w", userID, err)
		}
		logger.Info("user resynced", zap.String("user_id", userID), zap.Int("synced", synced))
	}
	logger.Info("resync finished", zap.Int("users", len(users)), zap.Int("synced", total))
	return nil
}
