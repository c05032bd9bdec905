package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeAged(t *testing.T, dir, name string, size int, age time.Duration) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0750))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0640))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestSweepPrunesExpiredMedia(t *testing.T) {
	root := t.TempDir()
	resultDir := filepath.Join(root, "result-1")
	old := writeAged(t, resultDir, "chunk-001.webm", 1000, 3*time.Hour)
	fresh := writeAged(t, resultDir, "chunk-002.webm", 500, 10*time.Minute)

	s := NewSweeper(root, 2*time.Hour, false, zap.NewNop())
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesExamined)
	assert.Equal(t, 1, stats.FilesPruned)
	assert.Equal(t, int64(1000), stats.BytesFreed)
	assert.Equal(t, 0, stats.DirsRemoved)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestSweepRemovesEmptiedResultDir(t *testing.T) {
	root := t.TempDir()
	resultDir := filepath.Join(root, "result-1")
	writeAged(t, resultDir, "chunk-001.webm", 100, 3*time.Hour)
	writeAged(t, resultDir, "chunk-002.webm", 100, 3*time.Hour)

	s := NewSweeper(root, 2*time.Hour, false, zap.NewNop())
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesPruned)
	assert.Equal(t, 1, stats.DirsRemoved)
	_, err = os.Stat(resultDir)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepDryRunLeavesFilesInPlace(t *testing.T) {
	root := t.TempDir()
	resultDir := filepath.Join(root, "result-1")
	old := writeAged(t, resultDir, "chunk-001.webm", 1000, 3*time.Hour)

	s := NewSweeper(root, 2*time.Hour, true, zap.NewNop())
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)

	// Reported as if pruned, but nothing was touched.
	assert.Equal(t, 1, stats.FilesPruned)
	assert.Equal(t, int64(1000), stats.BytesFreed)
	assert.Equal(t, 1, stats.DirsRemoved)
	_, err = os.Stat(old)
	assert.NoError(t, err)
	_, err = os.Stat(resultDir)
	assert.NoError(t, err)
}

func TestSweepMissingRootIsNoOp(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "does-not-exist"), time.Hour, false, zap.NewNop())
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestSweepIgnoresNonMediaAndScratchDirs(t *testing.T) {
	root := t.TempDir()
	resultDir := filepath.Join(root, "result-1")
	note := writeAged(t, resultDir, "notes.txt", 10, 5*time.Hour)
	scratch := writeAged(t, filepath.Join(root, ".merge-tmp"), "download.webm", 10, 5*time.Hour)

	s := NewSweeper(root, time.Hour, false, zap.NewNop())
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.FilesExamined)
	assert.Equal(t, 0, stats.FilesPruned)
	_, err = os.Stat(note)
	assert.NoError(t, err)
	_, err = os.Stat(scratch)
	assert.NoError(t, err)
}

func TestSweepContinuesPastPerFileErrors(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission-based failures do not apply to root")
	}
	root := t.TempDir()

	// Expired file in a write-protected dir: the remove fails and is skipped.
	lockedDir := filepath.Join(root, "result-locked")
	lockedFile := writeAged(t, lockedDir, "chunk-001.webm", 100, 3*time.Hour)
	require.NoError(t, os.Chmod(lockedDir, 0550))
	t.Cleanup(func() { _ = os.Chmod(lockedDir, 0750) })

	// Result dir that cannot even be enumerated.
	unreadableDir := filepath.Join(root, "result-unreadable")
	writeAged(t, unreadableDir, "chunk-001.webm", 100, 3*time.Hour)
	require.NoError(t, os.Chmod(unreadableDir, 0000))
	t.Cleanup(func() { _ = os.Chmod(unreadableDir, 0750) })

	healthyDir := filepath.Join(root, "result-healthy")
	old := writeAged(t, healthyDir, "chunk-001.webm", 200, 3*time.Hour)

	s := NewSweeper(root, 2*time.Hour, false, zap.NewNop())
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err, "per-entry failures must not fail the sweep")

	// The healthy dir was still fully processed.
	assert.Equal(t, 1, stats.FilesPruned)
	assert.Equal(t, int64(200), stats.BytesFreed)
	assert.Equal(t, 1, stats.DirsRemoved)
	_, statErr := os.Stat(old)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(healthyDir)
	assert.True(t, os.IsNotExist(statErr))

	// Both failures were counted and the locked file survived.
	assert.Equal(t, 2, stats.Errors)
	_, statErr = os.Stat(lockedFile)
	assert.NoError(t, statErr)
}

func TestTrySweepSkipsWhenAlreadyRunning(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "result-1"), "chunk-001.webm", 100, 3*time.Hour)

	s := NewSweeper(root, time.Hour, false, zap.NewNop())
	s.running.Store(true)

	stats, started, err := s.TrySweep(context.Background())
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, Stats{}, stats)

	s.running.Store(false)
	_, started, err = s.TrySweep(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewSweeper(t.TempDir(), time.Hour, true, zap.NewNop())
	sched := NewScheduler(s, 50*time.Millisecond, zap.NewNop())

	sched.Start()
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	// Stop is idempotent and the guard is released.
	sched.Stop()
	_, started, err := s.TrySweep(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
}
