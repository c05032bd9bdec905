// Package main runs the proctoring media worker: the merge job consumer, the
// retention cleanup scheduler and the internal ops HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/config"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/cleanup"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/merge"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/ops"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/reports"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/worker"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/database"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/queue"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/redis"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	local, err := storage.NewLocal(cfg.Media.Root)
	if err != nil {
		logger.Fatal("local media root", zap.Error(err))
	}

	var remote storage.Backend
	if cfg.AWS.MediaBucket != "" {
		s3Backend, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.MediaBucket,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		remote = s3Backend
	} else {
		logger.Warn("no media bucket configured, merged recordings stay on the local backend")
	}

	repo := reports.NewRepository(pool)
	pipeline := merge.NewPipeline(
		repo,
		local,
		remote,
		merge.NewFFmpeg(cfg.Merge.FFmpegPath, logger),
		merge.NewFFprobe(cfg.Merge.FFprobePath),
		merge.Options{DeleteChunksAfterMerge: cfg.Merge.DeleteChunksAfterMerge},
		logger,
	)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewMergeProcessor(pipeline, repo, jobQueue,
		time.Duration(cfg.Merge.StaleMinutes)*time.Minute, logger)

	sweeper := cleanup.NewSweeper(local.Root(),
		time.Duration(cfg.Cleanup.RetentionMinutes)*time.Minute, cfg.Cleanup.DryRun, logger)
	scheduler := cleanup.NewScheduler(sweeper,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute, logger)
	if cfg.Cleanup.Enabled {
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		logger.Info("cleanup scheduling disabled")
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go processor.Run(workerCtx)

	opsHandler := ops.NewHandler(repo, pipeline, sweeper, jobQueue, logger)
	opsSrv := &http.Server{
		Addr:         ":" + cfg.Ops.Port,
		Handler:      opsHandler.Router(),
		ReadTimeout:  time.Duration(cfg.Ops.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Ops.WriteTimeout) * time.Second,
	}
	go func() {
		if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ops server", zap.Error(err))
		}
	}()
	logger.Info("worker started", zap.String("ops_port", cfg.Ops.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = opsSrv.Shutdown(shutdownCtx)
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
