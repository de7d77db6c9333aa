package executor

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/fusionn-srt/internal/config"
	"github.com/fusionn-srt/internal/subtitle"
	"github.com/fusionn-srt/pkg/logger"
)

// OpenAI transcribes through the OpenAI audio transcription API.
type OpenAI struct {
	cfg      config.OpenAIConfig
	language string
	client   *resty.Client
	limiter  *rate.Limiter
}

// NewOpenAI creates an OpenAI API adapter.
func NewOpenAI(cfg config.OpenAIConfig, language string) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}

	o := &OpenAI{
		cfg:      cfg,
		language: language,
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(10 * time.Minute),
	}

	if cfg.RateLimitRPM > 0 {
		rps := float64(cfg.RateLimitRPM) / 60.0
		o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		logger.Infof("🚦 OpenAI rate limit: %d RPM", cfg.RateLimitRPM)
	}

	return o
}

func (o *OpenAI) Name() string { return "openai" }

// Available checks an API key is configured.
func (o *OpenAI) Available(ctx context.Context) error {
	if o.cfg.APIKey == "" {
		return fmt.Errorf("%w: openai api key not set", ErrUnavailable)
	}
	return nil
}

type verboseTranscription struct {
	Language string `json:"language"`
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the audio and requests word and segment timestamps.
func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) ([]subtitle.Segment, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	logger.Infof("🎤 Transcribing (OpenAI API): %s", filepath.Base(audioPath))

	form := url.Values{}
	form.Set("model", o.cfg.Model)
	form.Set("response_format", "verbose_json")
	form.Add("timestamp_granularities[]", "word")
	form.Add("timestamp_granularities[]", "segment")
	if o.language != "" && o.language != "auto" {
		form.Set("language", o.language)
	}

	var result verboseTranscription
	var errResp apiError

	resp, err := o.client.R().
		SetContext(ctx).
		SetAuthToken(o.cfg.APIKey).
		SetFile("file", audioPath).
		SetFormDataFromValues(form).
		SetResult(&result).
		SetError(&errResp).
		Post("/audio/transcriptions")
	if err != nil {
		return nil, fmt.Errorf("api request: %w", err)
	}

	if resp.IsError() {
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("openai api error (%d): %s", resp.StatusCode(), errResp.Error.Message)
		}
		return nil, fmt.Errorf("openai api error (%d): %s", resp.StatusCode(), resp.String())
	}

	segments := result.toSegments()
	logger.Infof("✅ OpenAI produced %d segments", len(segments))
	return segments, nil
}

// toSegments attaches each word to the segment its start time falls in.
func (v *verboseTranscription) toSegments() []subtitle.Segment {
	words := make([]subtitle.Word, 0, len(v.Words))
	for _, w := range v.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		words = append(words, subtitle.Word{Text: text, Start: seconds(w.Start), End: seconds(w.End)})
	}

	if len(v.Segments) == 0 {
		if len(words) > 0 {
			return []subtitle.Segment{{
				Start: words[0].Start,
				End:   words[len(words)-1].End,
				Text:  strings.TrimSpace(v.Text),
				Words: words,
			}}
		}
		return nil
	}

	segments := make([]subtitle.Segment, len(v.Segments))
	for i, s := range v.Segments {
		segments[i] = subtitle.Segment{
			Start: seconds(s.Start),
			End:   seconds(s.End),
			Text:  strings.TrimSpace(s.Text),
		}
	}

	seg := 0
	for _, w := range words {
		for seg < len(segments)-1 && w.Start >= segments[seg].End {
			seg++
		}
		segments[seg].Words = append(segments[seg].Words, w)
	}

	if len(words) == 0 {
		return segments
	}
	// Once word timing is present, segments without words are dropped.
	kept := segments[:0]
	for _, s := range segments {
		if len(s.Words) > 0 {
			kept = append(kept, s)
		}
	}
	return kept
}
