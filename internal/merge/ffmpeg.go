package merge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Concatenator joins an ordered list of media files into one output file
// without re-encoding. All inputs for one call share the same codec
// parameters; the capture side guarantees this.
type Concatenator interface {
	Concat(ctx context.Context, inputs []string, output string) error
}

// Prober reports the container duration of a media file. Used as a
// best-effort sanity check on merged output.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFmpeg concatenates via ffmpeg's concat demuxer in stream-copy mode.
type FFmpeg struct {
	bin    string
	logger *zap.Logger
}

// NewFFmpeg creates a Concatenator using the ffmpeg binary at bin ("ffmpeg"
// resolves from PATH).
func NewFFmpeg(bin string, logger *zap.Logger) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpeg{bin: bin, logger: logger}
}

// Concat writes a concat-demuxer list file and runs
// ffmpeg -f concat -safe 0 -i list -c copy -y output.
// Stream copy is required: re-encoding would be slow and lossy.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("ffmpeg concat: no inputs")
	}

	list, err := os.CreateTemp(filepath.Dir(output), "concat-*.txt")
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	listPath := list.Name()
	defer os.Remove(listPath)

	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			list.Close()
			return fmt.Errorf("resolve input %s: %w", in, err)
		}
		// concat demuxer single-quote escaping: ' becomes '\''
		b.WriteString("file '" + strings.ReplaceAll(abs, "'", `'\''`) + "'\n")
	}
	if _, err := list.WriteString(b.String()); err != nil {
		list.Close()
		return fmt.Errorf("write concat list: %w", err)
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("close concat list: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.bin,
		"-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	f.logger.Debug("running ffmpeg concat", zap.Int("inputs", len(inputs)), zap.String("output", output))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat: %w: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

// FFprobe reads container duration via ffprobe.
type FFprobe struct {
	bin string
}

// NewFFprobe creates a Prober using the ffprobe binary at bin.
func NewFFprobe(bin string) *FFprobe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFprobe{bin: bin}
}

// Duration runs ffprobe and parses the format duration in seconds.
func (f *FFprobe) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, f.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration %q: %w", path, strings.TrimSpace(string(out)), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
