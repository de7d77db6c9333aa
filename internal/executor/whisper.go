package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fusionn-srt/internal/config"
	"github.com/fusionn-srt/internal/subtitle"
	"github.com/fusionn-srt/pkg/logger"
)

// Whisper transcribes through the local openai-whisper CLI.
type Whisper struct {
	binary   string
	model    string
	language string
}

// NewWhisper creates a local whisper adapter.
func NewWhisper(cfg config.LocalConfig, language string) *Whisper {
	w := &Whisper{binary: cfg.Binary, model: cfg.Model, language: language}
	if w.binary == "" {
		w.binary = "whisper"
	}
	if w.model == "" {
		w.model = "base"
	}
	return w
}

func (w *Whisper) Name() string { return "local" }

// Available checks the whisper binary can be found.
func (w *Whisper) Available(ctx context.Context) error {
	if _, err := exec.LookPath(w.binary); err != nil {
		return fmt.Errorf("%w: %s not found", ErrUnavailable, w.binary)
	}
	return nil
}

// Transcribe runs whisper with word timestamps and parses its JSON output.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) ([]subtitle.Segment, error) {
	outputDir, err := os.MkdirTemp(filepath.Dir(audioPath), "whisper-")
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	// whisper <input> --model <model> --output_format json --word_timestamps True --output_dir <dir> [--language <lang>]
	args := []string{
		audioPath,
		"--model", w.model,
		"--output_format", "json",
		"--word_timestamps", "True",
		"--output_dir", outputDir,
	}
	if w.language != "" && w.language != "auto" {
		args = append(args, "--language", w.language)
	}

	logger.Infof("🎤 Transcribing (whisper %s): %s", w.model, filepath.Base(audioPath))

	if _, err := runStreamed(ctx, w.binary, args...); err != nil {
		return nil, err
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outputDir, baseName+".json"))
	if err != nil {
		return nil, fmt.Errorf("whisper output not created: %w", err)
	}

	segments, err := parseWhisperJSON(data)
	if err != nil {
		return nil, err
	}

	logger.Infof("✅ Whisper produced %d segments", len(segments))
	return segments, nil
}

type whisperOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

func parseWhisperJSON(data []byte) ([]subtitle.Segment, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	segments := make([]subtitle.Segment, 0, len(out.Segments))
	for _, s := range out.Segments {
		seg := subtitle.Segment{
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  strings.TrimSpace(s.Text),
		}
		for _, w := range s.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			seg.Words = append(seg.Words, subtitle.Word{
				Text:  text,
				Start: seconds(w.Start),
				End:   seconds(w.End),
			})
		}
		segments = append(segments, seg)
	}
	return segments, nil
}
