package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fusionn-srt/internal/config"
	"github.com/fusionn-srt/internal/subtitle"
)

type stubTranscriber struct {
	name     string
	segments []subtitle.Segment
	err      error
	availErr error
	delay    time.Duration
	calls    int
}

func (s *stubTranscriber) Name() string { return s.name }

func (s *stubTranscriber) Available(ctx context.Context) error { return s.availErr }

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) ([]subtitle.Segment, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.segments, s.err
}

var helloSegments = []subtitle.Segment{{Start: 0, End: time.Second, Text: "hello"}}

// TestChainPrimarySucceeds verifies the fallback is never touched.
func TestChainPrimarySucceeds(t *testing.T) {
	primary := &stubTranscriber{name: "primary", segments: helloSegments}
	fallback := &stubTranscriber{name: "fallback"}

	res, err := NewChain(0, primary, fallback).Transcribe(context.Background(), "a.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Adapter != "primary" || len(res.Segments) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback calls = %d, want 0", fallback.calls)
	}
}

// TestChainFallsBack checks a failing primary is recovered locally.
func TestChainFallsBack(t *testing.T) {
	primary := &stubTranscriber{name: "primary", err: errors.New("model crashed")}
	fallback := &stubTranscriber{name: "fallback", segments: helloSegments}

	res, err := NewChain(0, primary, fallback).Transcribe(context.Background(), "a.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Adapter != "fallback" {
		t.Fatalf("adapter = %s, want fallback", res.Adapter)
	}
}

// TestChainSkipsUnavailable checks unavailable adapters are not invoked.
func TestChainSkipsUnavailable(t *testing.T) {
	primary := &stubTranscriber{name: "primary", availErr: ErrUnavailable}
	fallback := &stubTranscriber{name: "fallback", segments: helloSegments}

	if _, err := NewChain(0, primary, fallback).Transcribe(context.Background(), "a.wav"); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("primary calls = %d, want 0", primary.calls)
	}
}

// TestChainAllFail verifies every adapter error is reported.
func TestChainAllFail(t *testing.T) {
	primary := &stubTranscriber{name: "primary", err: errors.New("boom")}
	fallback := &stubTranscriber{name: "fallback", availErr: ErrUnavailable}

	_, err := NewChain(0, primary, fallback).Transcribe(context.Background(), "a.wav")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "primary: boom") || !strings.Contains(err.Error(), "fallback") {
		t.Fatalf("error = %v", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error should wrap ErrUnavailable: %v", err)
	}

	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Adapter != "primary" {
		t.Fatalf("errors.As AdapterError = %+v", adapterErr)
	}
}

// TestChainAttemptTimeout lets a slow primary time out into the fallback.
func TestChainAttemptTimeout(t *testing.T) {
	primary := &stubTranscriber{name: "primary", delay: time.Second, segments: helloSegments}
	fallback := &stubTranscriber{name: "fallback", segments: helloSegments}

	res, err := NewChain(20*time.Millisecond, primary, fallback).Transcribe(context.Background(), "a.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Adapter != "fallback" {
		t.Fatalf("adapter = %s, want fallback", res.Adapter)
	}
}

// TestChainStopsOnCancel checks a cancelled job does not try further adapters.
func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &stubTranscriber{name: "primary", segments: helloSegments}
	if _, err := NewChain(0, primary).Transcribe(ctx, "a.wav"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if primary.calls != 0 {
		t.Fatalf("primary calls = %d, want 0", primary.calls)
	}
}

// TestNewChainFromConfig builds adapters by name.
func TestNewChainFromConfig(t *testing.T) {
	chain, err := NewChainFromConfig(config.TranscribeConfig{Chain: []string{"local", "openai"}})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if got := strings.Join(chain.Names(), ","); got != "local,openai" {
		t.Fatalf("names = %s", got)
	}
	if chain.Primary().Name() != "local" {
		t.Fatalf("primary = %s", chain.Primary().Name())
	}

	if _, err := NewChainFromConfig(config.TranscribeConfig{Chain: []string{"carrier-pigeon"}}); err == nil {
		t.Fatal("expected unknown adapter error")
	}
}
