package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/merge"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/reports"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/queue"
)

// MergeProcessor consumes merge jobs: load the result's segments, merge each
// stream type, publish the recordings.
type MergeProcessor struct {
	pipeline *merge.Pipeline
	repo     *reports.Repository
	queue    *queue.Queue
	staleAge time.Duration
	logger   *zap.Logger
}

// NewMergeProcessor creates a merge job processor. staleAge controls how old a
// processing entry must be before startup requeues it.
func NewMergeProcessor(pipeline *merge.Pipeline, repo *reports.Repository, q *queue.Queue, staleAge time.Duration, logger *zap.Logger) *MergeProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeProcessor{pipeline: pipeline, repo: repo, queue: q, staleAge: staleAge, logger: logger}
}

// Process executes one merge job. Completed stream types are skipped so
// at-least-once delivery never re-merges finished work.
func (p *MergeProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMergeRecording {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.MergePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return p.pipeline.MergeResultIfNeeded(ctx, payload.ResultID)
}

// RequeueStale finds merges stuck in processing (a previous worker crashed
// mid-merge) and enqueues fresh jobs for their results.
func (p *MergeProcessor) RequeueStale(ctx context.Context) error {
	refs, err := p.repo.ListStaleProcessing(ctx, time.Now().Add(-p.staleAge))
	if err != nil {
		return fmt.Errorf("list stale processing: %w", err)
	}
	seen := make(map[string]bool)
	for _, ref := range refs {
		if seen[ref.ResultID.String()] {
			continue
		}
		seen[ref.ResultID.String()] = true
		p.logger.Warn("requeueing stale merge",
			zap.String("result_id", ref.ResultID.String()), zap.String("stream_type", string(ref.Type)))
		if err := p.queue.EnqueueMerge(ctx, queue.MergePayload{ResultID: ref.ResultID}); err != nil {
			return fmt.Errorf("enqueue stale merge for %s: %w", ref.ResultID, err)
		}
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *MergeProcessor) Run(ctx context.Context) {
	if err := p.RequeueStale(ctx); err != nil {
		p.logger.Error("stale merge requeue failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("merge worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
