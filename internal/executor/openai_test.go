package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fusionn-srt/internal/config"
)

const verboseBody = `{
  "language": "english",
  "text": "Hello there. General Kenobi.",
  "segments": [
    {"start": 0.0, "end": 1.2, "text": " Hello there."},
    {"start": 1.2, "end": 3.0, "text": " General Kenobi."}
  ],
  "words": [
    {"word": "Hello", "start": 0.0, "end": 0.5},
    {"word": "there.", "start": 0.5, "end": 1.1},
    {"word": "General", "start": 1.3, "end": 2.0},
    {"word": "Kenobi.", "start": 2.0, "end": 2.9}
  ]
}`

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF fake wav"), 0o600); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("response_format") != "verbose_json" || r.FormValue("model") != "whisper-1" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		if got := r.MultipartForm.Value["timestamp_granularities[]"]; len(got) != 2 {
			t.Errorf("granularities = %v", got)
		}
		if r.FormValue("language") != "en" {
			t.Errorf("language = %q", r.FormValue("language"))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "RIFF fake wav" {
				t.Errorf("file = %q", data)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, verboseBody)
	}))
	defer srv.Close()

	o := NewOpenAI(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"}, "en")
	segments, err := o.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	if len(segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(segments))
	}
	if segments[0].Text != "Hello there." || len(segments[0].Words) != 2 {
		t.Fatalf("segment 0 = %+v", segments[0])
	}
	if len(segments[1].Words) != 2 || segments[1].Words[1].End != 2900*time.Millisecond {
		t.Fatalf("segment 1 = %+v", segments[1])
	}
}

func TestOpenAIErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	defer srv.Close()

	o := NewOpenAI(config.OpenAIConfig{APIKey: "bad", BaseURL: srv.URL}, "auto")
	_, err := o.Transcribe(context.Background(), writeAudio(t))
	if err == nil || !strings.Contains(err.Error(), "Incorrect API key") || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAIAvailable(t *testing.T) {
	if err := NewOpenAI(config.OpenAIConfig{}, "").Available(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if err := NewOpenAI(config.OpenAIConfig{APIKey: "k"}, "").Available(context.Background()); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestVerboseWordsWithoutSegments(t *testing.T) {
	v := verboseTranscription{Text: "hi you"}
	v.Words = append(v.Words,
		struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		}{"hi", 0.1, 0.3},
		struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		}{"you", 0.4, 0.8},
	)

	segments := v.toSegments()
	if len(segments) != 1 || len(segments[0].Words) != 2 {
		t.Fatalf("segments = %+v", segments)
	}
	if segments[0].Start != 100*time.Millisecond || segments[0].End != 800*time.Millisecond {
		t.Fatalf("timing = %v..%v", segments[0].Start, segments[0].End)
	}
}
