// Package cleanup reclaims local disk space by pruning recorded media older
// than the retention window.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// mediaExtensions marks files the sweeper is allowed to touch. Anything else
// under the media root is left alone.
var mediaExtensions = map[string]bool{
	".webm": true,
	".mp4":  true,
	".mkv":  true,
	".ogg":  true,
	".wav":  true,
	".m4a":  true,
}

// Stats aggregates one sweep. In dry-run mode FilesPruned/BytesFreed/
// DirsRemoved count what would have been done.
type Stats struct {
	FilesExamined int
	FilesPruned   int
	BytesFreed    int64
	DirsRemoved   int
	Errors        int
}

// Sweeper deletes expired local media. At most one sweep runs at a time per
// Sweeper; the guard lives on the instance so tests can run sweepers
// independently.
type Sweeper struct {
	root      string
	retention time.Duration
	dryRun    bool
	logger    *zap.Logger
	running   atomic.Bool
	now       func() time.Time
}

// NewSweeper creates a sweeper over the local media root.
func NewSweeper(root string, retention time.Duration, dryRun bool, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		root:      root,
		retention: retention,
		dryRun:    dryRun,
		logger:    logger,
		now:       time.Now,
	}
}

// TrySweep runs a sweep unless one is already in flight, in which case it
// returns started=false and does nothing.
func (s *Sweeper) TrySweep(ctx context.Context) (Stats, bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Stats{}, false, nil
	}
	defer s.running.Store(false)
	stats, err := s.sweep(ctx)
	return stats, true, err
}

// Sweep scans every result subdirectory of the media root and removes media
// files older than the retention window. Per-file errors are logged and
// skipped; only a failure to enumerate the root fails the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, error) {
	stats, started, err := s.TrySweep(ctx)
	if !started {
		s.logger.Info("cleanup sweep already running, skipping")
	}
	return stats, err
}

func (s *Sweeper) sweep(ctx context.Context) (Stats, error) {
	var stats Stats

	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		s.logger.Info("media root does not exist, nothing to clean", zap.String("root", s.root))
		return stats, nil
	}

	cutoff := s.now().Add(-s.retention)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return stats, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		// Only per-result subdirectories are swept. Dot-prefixed dirs are
		// scratch space (e.g. the merge pipeline's temp dir).
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		s.sweepDir(filepath.Join(s.root, entry.Name()), cutoff, &stats)
	}

	s.logger.Info("cleanup sweep finished",
		zap.Bool("dry_run", s.dryRun),
		zap.Int("files_examined", stats.FilesExamined),
		zap.Int("files_pruned", stats.FilesPruned),
		zap.Int64("bytes_freed", stats.BytesFreed),
		zap.Int("dirs_removed", stats.DirsRemoved),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

func (s *Sweeper) sweepDir(dir string, cutoff time.Time, stats *Stats) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn("cannot read result dir, skipping", zap.String("dir", dir), zap.Error(err))
		stats.Errors++
		return
	}

	remaining := len(entries)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !mediaExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		stats.FilesExamined++

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("cannot stat media file, skipping", zap.String("path", path), zap.Error(err))
			stats.Errors++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if s.dryRun {
			s.logger.Info("would prune expired media file",
				zap.String("path", path), zap.Int64("size", info.Size()), zap.Time("mod_time", info.ModTime()))
		} else if err := os.Remove(path); err != nil {
			s.logger.Warn("cannot remove media file, skipping", zap.String("path", path), zap.Error(err))
			stats.Errors++
			continue
		}
		remaining--
		stats.FilesPruned++
		stats.BytesFreed += info.Size()
	}

	if remaining == 0 {
		if s.dryRun {
			s.logger.Info("would remove empty result dir", zap.String("dir", dir))
			stats.DirsRemoved++
			return
		}
		if err := os.Remove(dir); err != nil {
			// Not empty after all (non-media files) or a late write; leave it.
			return
		}
		stats.DirsRemoved++
	}
}
