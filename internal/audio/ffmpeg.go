package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// FFmpegConfig holds configuration for the ffmpeg transcoder.
type FFmpegConfig struct {
	BinPath string // default: "ffmpeg"
	Format  string // default: "mp3"
}

// codecArgs maps an output container to the ffmpeg audio codec flags.
var codecArgs = map[string][]string{
	"mp3":  {"-acodec", "libmp3lame"},
	"wav":  {"-acodec", "pcm_s16le"},
	"flac": {"-acodec", "flac"},
	"ogg":  {"-acodec", "libvorbis"},
	"m4a":  {"-acodec", "aac"},
}

// FFmpeg normalizes uploads to 16kHz mono audio by running the ffmpeg binary.
type FFmpeg struct {
	cfg FFmpegConfig
}

// NewFFmpeg creates an FFmpeg transcoder with defaults applied.
func NewFFmpeg(cfg FFmpegConfig) (*FFmpeg, error) {
	if cfg.BinPath == "" {
		cfg.BinPath = "ffmpeg"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	cfg.Format = strings.ToLower(strings.TrimPrefix(cfg.Format, "."))
	if _, ok := codecArgs[cfg.Format]; !ok {
		return nil, fmt.Errorf("unsupported transcode format %q", cfg.Format)
	}
	return &FFmpeg{cfg: cfg}, nil
}

func (t *FFmpeg) Format() string { return t.cfg.Format }

// Transcode blocks until ffmpeg exits. The output file is only returned
// after a clean exit; on failure or cancellation whatever ffmpeg wrote is
// removed.
func (t *FFmpeg) Transcode(ctx context.Context, in File) (File, error) {
	out := File{
		Path:     strings.TrimSuffix(in.Path, filepath.Ext(in.Path)) + "_normalized." + t.cfg.Format,
		Filename: in.Filename,
	}

	args := []string{"-y", "-i", in.Path, "-vn", "-ac", "1", "-ar", "16000"}
	args = append(args, codecArgs[t.cfg.Format]...)
	args = append(args, out.Path)

	cmd := exec.CommandContext(ctx, t.cfg.BinPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if rmErr := os.Remove(out.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("failed to remove partial transcode output", "path", out.Path, "error", rmErr)
		}
		if ctx.Err() != nil {
			return File{}, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return File{}, fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	slog.Debug("transcoded audio", "input", in.Path, "output", out.Path, "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}
