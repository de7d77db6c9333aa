package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fusionn-srt/internal/fileops"
	"github.com/fusionn-srt/pkg/logger"
)

// FFmpeg decodes uploads into the WAV format the transcription engines expect.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
}

// NewFFmpeg creates a decoder using the given binaries.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// Decode converts src to a mono 16 kHz WAV next to it and returns its path.
func (f *FFmpeg) Decode(ctx context.Context, src string) (string, error) {
	out := fileops.ChangeExtension(src, ".16k.wav")

	logger.Infof("🎛️ Decoding: %s", filepath.Base(src))

	// ffmpeg -y -i input -vn -ac 1 -ar 16000 -f wav output
	if _, err := runStreamed(ctx, f.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-y", "-i", src,
		"-vn", "-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	); err != nil {
		_ = fileops.Remove(out)
		return "", fmt.Errorf("ffmpeg: %w", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return "", fmt.Errorf("decoded audio not created: %w", err)
	}
	if info.Size() == 0 {
		_ = fileops.Remove(out)
		return "", fmt.Errorf("decoded audio is empty")
	}
	return out, nil
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the media duration reported by ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", result.Format.Duration, err)
	}
	return seconds(secs), nil
}
