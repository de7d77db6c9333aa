package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fusionn-srt/internal/executor"
	"github.com/fusionn-srt/internal/fileops"
	"github.com/fusionn-srt/internal/queue"
	"github.com/fusionn-srt/internal/subtitle"
	"github.com/fusionn-srt/pkg/logger"
)

// Decoder prepares uploads for transcription.
type Decoder interface {
	Decode(ctx context.Context, src string) (string, error)
	Probe(ctx context.Context, path string) (time.Duration, error)
}

// Transcriber is the fallback chain as seen by the pipeline.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (executor.Result, error)
	Names() []string
	Primary() executor.Transcriber
}

// Notifier sends job outcome notifications.
type Notifier interface {
	NotifySuccess(title, body string) error
	NotifyError(title, body string) error
}

// Health is the adapter snapshot reported by the health endpoint.
type Health struct {
	Primary          string   `json:"primary_adapter"`
	PrimaryAvailable bool     `json:"primary_available"`
	Adapters         []string `json:"adapters"`
}

// Service runs the decode → transcribe → format pipeline for one job.
type Service struct {
	decoder  Decoder
	chain    Transcriber
	notifier Notifier
	health   Health
}

// New creates a new processor service. notifier may be nil.
func New(decoder Decoder, chain Transcriber, notifier Notifier) *Service {
	s := &Service{
		decoder:  decoder,
		chain:    chain,
		notifier: notifier,
		health:   Health{Adapters: chain.Names()},
	}

	if primary := chain.Primary(); primary != nil {
		s.health.Primary = primary.Name()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := primary.Available(ctx); err != nil {
			logger.Warnf("⚠️ Primary adapter %s unavailable: %v", primary.Name(), err)
		} else {
			s.health.PrimaryAvailable = true
		}
	}
	return s
}

// Health returns the adapter availability recorded at startup.
func (s *Service) Health() Health {
	return s.health
}

// stepTimer tracks timing for a processing step.
type stepTimer struct {
	name  string
	start time.Time
}

func startStep(name string) *stepTimer {
	return &stepTimer{name: name, start: time.Now()}
}

func (s *stepTimer) done() time.Duration {
	elapsed := time.Since(s.start)
	logger.Infof("   ⏱️  %s: %v", s.name, formatDuration(elapsed))
	return elapsed
}

// formatDuration formats duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

// Process implements queue.Processor.
func (s *Service) Process(ctx context.Context, job queue.Job) (queue.Outcome, error) {
	totalStart := time.Now()

	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Infof("🎬 Starting job: %s (%s)", job.ID, job.FileName)
	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	durations := make(map[string]time.Duration)

	// Step 1: Decode to 16kHz mono wav
	logger.Infof("🔊 Step 1: Decoding audio...")
	t := startStep("Decode")

	wavPath, err := s.decoder.Decode(ctx, job.SourcePath)
	if err != nil {
		return queue.Outcome{}, fmt.Errorf("decode: %w", err)
	}
	defer func() {
		if err := fileops.Remove(wavPath); err != nil {
			logger.Warnf("⚠️ Failed to remove decoded audio: %v", err)
		}
	}()
	durations["decode"] = t.done()

	var audioDuration time.Duration
	if d, err := s.decoder.Probe(ctx, wavPath); err != nil {
		logger.Warnf("⚠️ Could not probe duration: %v", err)
	} else {
		audioDuration = d
		logger.Infof("   🎵 Audio length: %s", formatDuration(d))
	}

	// Step 2: Transcribe through the adapter chain
	logger.Infof("🎤 Step 2: Transcribing (%v)...", s.chain.Names())
	t = startStep("Transcription")

	res, err := s.chain.Transcribe(ctx, wavPath)
	if err != nil {
		return queue.Outcome{}, err
	}
	durations["transcription"] = t.done()

	// Step 3: Group words into cues
	logger.Infof("📝 Step 3: Formatting subtitles (max %d words)...", job.Options.MaxWords)
	t = startStep("Formatting")

	cues := subtitle.Format(res.Segments, subtitle.FormatOptions{
		MaxWords:        job.Options.MaxWords,
		Limit:           job.Options.MaxWordsLimit,
		SplitOnSegments: job.Options.SplitOnSegments,
	})
	resultPath := filepath.Join(job.WorkDir, job.ID+".srt")
	if err := fileops.WriteAtomic(resultPath, subtitle.Marshal(cues)); err != nil {
		return queue.Outcome{}, fmt.Errorf("write subtitles: %w", err)
	}
	durations["format"] = t.done()

	if err := fileops.Remove(job.SourcePath); err != nil {
		logger.Warnf("⚠️ Failed to remove upload: %v", err)
	}

	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Infof("✅ Subtitles ready: %s (%d cues via %s)", job.ID, len(cues), res.Adapter)
	logger.Infof("⏱️  Total time: %s", formatDuration(time.Since(totalStart)))
	logger.Infof("   Decode: %s | Transcription: %s",
		formatDuration(durations["decode"]),
		formatDuration(durations["transcription"]))
	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return queue.Outcome{
		ResultPath:    resultPath,
		Adapter:       res.Adapter,
		CueCount:      len(cues),
		AudioDuration: audioDuration,
	}, nil
}

// NotifyFinished reports a terminal job through the notifier.
func (s *Service) NotifyFinished(job queue.Job) {
	if s.notifier == nil {
		return
	}

	var err error
	switch job.Status {
	case queue.StatusCompleted:
		body := fmt.Sprintf("**%s**\n\nCues: %d\nAdapter: %s", job.FileName, job.CueCount, job.Adapter)
		if job.StartedAt != nil && job.CompletedAt != nil {
			body += fmt.Sprintf("\nTook: %s", formatDuration(job.CompletedAt.Sub(*job.StartedAt)))
		}
		err = s.notifier.NotifySuccess("🎬 Subtitles Ready", body)
	case queue.StatusFailed:
		body := fmt.Sprintf("**%s**\nJob: %s\nError: %s", job.FileName, job.ID, job.Error)
		err = s.notifier.NotifyError("❌ Transcription Failed", body)
	default:
		return
	}

	if err != nil {
		logger.Warnf("⚠️ Failed to send notification: %v", err)
	}
}
