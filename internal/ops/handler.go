// Package ops exposes the internal remediation HTTP surface: trigger merges,
// force a cleanup sweep, inspect a report's merge state. It is not the
// candidate-facing API.
package ops

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/cleanup"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/merge"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/reports"
	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/pkg/queue"
)

// Handler handles ops HTTP endpoints.
type Handler struct {
	repo     *reports.Repository
	pipeline *merge.Pipeline
	sweeper  *cleanup.Sweeper
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewHandler creates an ops handler.
func NewHandler(repo *reports.Repository, pipeline *merge.Pipeline, sweeper *cleanup.Sweeper, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, pipeline: pipeline, sweeper: sweeper, queue: q, logger: logger}
}

// Router builds the gin engine with all ops routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ops := r.Group("/ops")
	ops.GET("/reports/:resultID", h.GetReport)
	ops.POST("/results/:resultID/merge", h.TriggerMerge)
	ops.POST("/cleanup/sweep", h.TriggerSweep)
	return r
}

// GetReport handles GET /ops/reports/:resultID. Returns segments, merge
// statuses and recording URLs for one result.
func (h *Handler) GetReport(c *gin.Context) {
	resultID, err := uuid.Parse(c.Param("resultID"))
	if err != nil {
		badRequest(c, "invalid result id")
		return
	}
	report, err := h.repo.GetReport(c.Request.Context(), resultID)
	if err != nil {
		h.logger.Error("get report failed", zap.Error(err), zap.String("result_id", resultID.String()))
		internal(c, "failed to load report")
		return
	}
	ok(c, report)
}

// TriggerMerge handles POST /ops/results/:resultID/merge. By default the merge
// is enqueued for the worker; ?sync=true runs it inline, ?force=true re-merges
// stream types that already completed.
func (h *Handler) TriggerMerge(c *gin.Context) {
	resultID, err := uuid.Parse(c.Param("resultID"))
	if err != nil {
		badRequest(c, "invalid result id")
		return
	}
	force := c.Query("force") == "true"
	sync := c.Query("sync") == "true"

	if !sync {
		if force {
			badRequest(c, "force merges must run with sync=true")
			return
		}
		if err := h.queue.EnqueueMerge(c.Request.Context(), queue.MergePayload{ResultID: resultID}); err != nil {
			h.logger.Error("enqueue merge failed", zap.Error(err), zap.String("result_id", resultID.String()))
			internal(c, "failed to enqueue merge")
			return
		}
		accepted(c, gin.H{"result_id": resultID, "enqueued": true})
		return
	}

	mergeFn := h.pipeline.MergeResultIfNeeded
	if force {
		mergeFn = h.pipeline.MergeResult
	}
	if err := mergeFn(c.Request.Context(), resultID); err != nil {
		h.logger.Error("merge failed", zap.Error(err), zap.String("result_id", resultID.String()))
		internalWith(c, "merge failed", err.Error())
		return
	}
	ok(c, gin.H{"result_id": resultID, "merged": true})
}

// TriggerSweep handles POST /ops/cleanup/sweep. Responds 409 when a sweep is
// already in flight.
func (h *Handler) TriggerSweep(c *gin.Context) {
	stats, started, err := h.sweeper.TrySweep(c.Request.Context())
	if !started {
		conflict(c, "a cleanup sweep is already running")
		return
	}
	if err != nil {
		h.logger.Error("manual sweep failed", zap.Error(err))
		internal(c, "sweep failed")
		return
	}
	ok(c, stats)
}
