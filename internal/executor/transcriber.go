package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fusionn-srt/internal/config"
	"github.com/fusionn-srt/internal/subtitle"
	"github.com/fusionn-srt/pkg/logger"
)

// ErrUnavailable marks an adapter that cannot run in this environment
// (missing binary, missing credentials).
var ErrUnavailable = errors.New("transcriber unavailable")

// Transcriber turns a decoded audio file into timed segments.
type Transcriber interface {
	// Name identifies the adapter in logs and health output.
	Name() string
	// Available reports whether the adapter can currently be used.
	Available(ctx context.Context) error
	// Transcribe returns the ordered speech segments of the audio file.
	Transcribe(ctx context.Context, audioPath string) ([]subtitle.Segment, error)
}

// AdapterError is one adapter's failure inside a Chain.
type AdapterError struct {
	Adapter string
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Adapter, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Result is the outcome of a successful Chain run.
type Result struct {
	Adapter  string
	Segments []subtitle.Segment
}

// Chain tries its adapters in order and returns the first success.
type Chain struct {
	adapters []Transcriber
	timeout  time.Duration
}

// NewChain creates a chain. A positive timeout bounds each adapter attempt.
func NewChain(timeout time.Duration, adapters ...Transcriber) *Chain {
	return &Chain{adapters: adapters, timeout: timeout}
}

// Names returns the adapter names in fallback order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.adapters))
	for i, a := range c.adapters {
		names[i] = a.Name()
	}
	return names
}

// Primary returns the first adapter, or nil for an empty chain.
func (c *Chain) Primary() Transcriber {
	if len(c.adapters) == 0 {
		return nil
	}
	return c.adapters[0]
}

// Transcribe runs the adapters in order. It fails only after the last adapter
// has failed, with every adapter's error joined.
func (c *Chain) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if len(c.adapters) == 0 {
		return Result{}, fmt.Errorf("no transcription adapters configured")
	}

	var errs []error
	for i, a := range c.adapters {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		segments, err := c.attempt(ctx, a, audioPath)
		if err == nil {
			if i > 0 {
				logger.Infof("🛟 Fallback adapter %s succeeded", a.Name())
			}
			return Result{Adapter: a.Name(), Segments: segments}, nil
		}

		errs = append(errs, &AdapterError{Adapter: a.Name(), Err: err})
		if i < len(c.adapters)-1 {
			logger.Warnf("⚠️ Adapter %s failed, falling back: %v", a.Name(), err)
		}
	}

	return Result{}, fmt.Errorf("all transcription adapters failed: %w", errors.Join(errs...))
}

func (c *Chain) attempt(ctx context.Context, a Transcriber, audioPath string) ([]subtitle.Segment, error) {
	if err := a.Available(ctx); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logger.Infof("🎤 Transcribing with %s...", a.Name())
	return a.Transcribe(ctx, audioPath)
}

// NewTranscriber builds the adapter registered under name.
func NewTranscriber(name string, cfg config.TranscribeConfig) (Transcriber, error) {
	switch strings.ToLower(name) {
	case "local", "whisper":
		return NewWhisper(cfg.Local, cfg.Language), nil
	case "openai":
		return NewOpenAI(cfg.OpenAI, cfg.Language), nil
	default:
		return nil, fmt.Errorf("unknown transcription adapter %q", name)
	}
}

// NewChainFromConfig builds the configured fallback chain.
func NewChainFromConfig(cfg config.TranscribeConfig) (*Chain, error) {
	adapters := make([]Transcriber, 0, len(cfg.Chain))
	for _, name := range cfg.Chain {
		t, err := NewTranscriber(name, cfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, t)
	}
	return NewChain(cfg.Timeout, adapters...), nil
}
