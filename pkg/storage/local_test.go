package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/models"
)

func TestLocalPutFetchDelete(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, models.BackendLocal, local.Kind())
	assert.True(t, filepath.IsAbs(local.Root()))

	ctx := context.Background()
	res, err := local.Put(ctx, "result-1/chunk-001.webm", bytes.NewReader([]byte("segment-bytes")), 13, "video/webm")
	require.NoError(t, err)
	assert.Equal(t, models.BackendLocal, res.Backend)
	assert.True(t, filepath.IsAbs(res.Locator))
	assert.Empty(t, res.PublicURL, "local objects have no public URL")

	body, err := local.Fetch(ctx, res.Locator)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "segment-bytes", string(data))

	require.NoError(t, local.Delete(ctx, res.Locator))
	_, err = local.Fetch(ctx, res.Locator)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an already-missing object is not an error.
	assert.NoError(t, local.Delete(ctx, res.Locator))
}

func TestLocalPutConfinesKeysToRoot(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	res, err := local.Put(context.Background(), "../../escape.webm", bytes.NewReader([]byte("x")), 1, "video/webm")
	require.NoError(t, err)
	rel, err := filepath.Rel(local.Root(), res.Locator)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(rel))
	assert.NotContains(t, rel, "..")
}

func TestMediaKey(t *testing.T) {
	assert.Equal(t, "proctoring/r-1/screen-merged.webm", MediaKey("r-1", "screen-merged.webm"))
	// Only the base name of the file is used.
	assert.Equal(t, "proctoring/r-1/webcam-merged.mp4", MediaKey("r-1", "/tmp/out/webcam-merged.mp4"))
}
