// Package main is proctorctl, the manual remediation CLI: merge the recordings
// of one result, or the most recent results that still have unmerged segments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/config"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/merge"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/reports"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/database"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/storage"
)

func main() {
	var (
		resultFlag = flag.String("result", "", "merge one result id")
		limitFlag  = flag.Int("limit", 10, "without -result, merge the N most recent unmerged results")
		forceFlag  = flag.Bool("force", false, "re-merge stream types that already completed")
		listFlag   = flag.Bool("dry-run", false, "list the results that would be merged and exit")
	)
	flag.Parse()

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
	repo := reports.NewRepository(pool)

	var targets []uuid.UUID
	if *resultFlag != "" {
		id, err := uuid.Parse(*resultFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid result id %q\n", *resultFlag)
			os.Exit(2)
		}
		targets = []uuid.UUID{id}
	} else {
		targets, err = repo.ListUnmergedResults(ctx, *limitFlag)
		if err != nil {
			logger.Fatal("list unmerged results", zap.Error(err))
		}
		if len(targets) == 0 {
			fmt.Println("no unmerged results")
			return
		}
	}

	if *listFlag {
		for _, id := range targets {
			fmt.Println(id)
		}
		return
	}

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
	}

	pipeline := merge.NewPipeline(
		repo,
		local,
		remote,
		merge.NewFFmpeg(cfg.Merge.FFmpegPath, logger),
		merge.NewFFprobe(cfg.Merge.FFprobePath),
		merge.Options{DeleteChunksAfterMerge: cfg.Merge.DeleteChunksAfterMerge},
		logger,
	)

	mergeFn := pipeline.MergeResultIfNeeded
	if *forceFlag {
		mergeFn = pipeline.MergeResult
	}

	failed := 0
	for _, id := range targets {
		start := time.Now()
		if err := mergeFn(ctx, id); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "merge %s: %v\n", id, err)
			continue
		}
		fmt.Printf("merged %s in %s\n", id, time.Since(start).Round(time.Millisecond))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
