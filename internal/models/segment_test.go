package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSegment() MediaSegment {
	return MediaSegment{
		SegmentID:  uuid.New(),
		ResultID:   uuid.New(),
		Type:       StreamWebcam,
		Backend:    BackendLocal,
		Locator:    "/data/media/r1/chunk-001.webm",
		MimeType:   "video/webm",
		RecordedAt: time.Now(),
		DurationMs: 5000,
		Size:       1024,
		Sequence:   1,
	}
}

func TestMediaSegmentValidate(t *testing.T) {
	seg := validSegment()
	require.NoError(t, seg.Validate())

	noResult := validSegment()
	noResult.ResultID = uuid.Nil
	assert.Error(t, noResult.Validate())

	badType := validSegment()
	badType.Type = "keyboard"
	assert.Error(t, badType.Validate())

	badBackend := validSegment()
	badBackend.Backend = "ftp"
	assert.Error(t, badBackend.Validate())

	noLocator := validSegment()
	noLocator.Locator = ""
	assert.Error(t, noLocator.Validate())

	remoteNoKey := validSegment()
	remoteNoKey.Backend = BackendRemote
	remoteNoKey.Locator = ""
	assert.Error(t, remoteNoKey.Validate())

	negativeSeq := validSegment()
	negativeSeq.Sequence = -1
	assert.Error(t, negativeSeq.Validate())
}

func TestMediaSegmentPlayable(t *testing.T) {
	seg := validSegment()
	assert.True(t, seg.Playable())

	seg.Locator = ""
	assert.False(t, seg.Playable())
}

func TestEnumValidity(t *testing.T) {
	for _, st := range []StreamType{StreamScreen, StreamWebcam, StreamMicrophone} {
		assert.True(t, st.Valid(), string(st))
	}
	assert.False(t, StreamType("audio").Valid())

	assert.True(t, BackendLocal.Valid())
	assert.True(t, BackendRemote.Valid())
	assert.False(t, StorageBackend("glacier").Valid())
}
