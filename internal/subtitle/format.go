// Package subtitle groups timed transcription output into subtitle cues and
// reads and writes them in SubRip (.srt) format.
package subtitle

import (
	"strings"
	"time"
)

const (
	// DefaultMaxWords is used when a caller passes a non-positive word limit.
	DefaultMaxWords = 8
	// MaxWordsLimit is the largest accepted words-per-cue value.
	MaxWordsLimit = 20
)

// Word is a single spoken word with its own timing.
type Word struct {
	Text  string        `json:"word"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Segment is one unit of transcription output. Words is empty when the engine
// only reports phrase-level timing.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
	Words []Word        `json:"words,omitempty"`
}

// Cue is one entry of a subtitle file.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// FormatOptions controls how segments are grouped into cues.
type FormatOptions struct {
	// MaxWords is the largest number of words per cue. Values below 1 fall back
	// to DefaultMaxWords, values above Limit are clamped.
	MaxWords int
	// Limit overrides MaxWordsLimit when positive.
	Limit int
	// SplitOnSegments closes the current cue at every segment boundary.
	SplitOnSegments bool
}

// ClampMaxWords normalizes a requested words-per-cue value.
func ClampMaxWords(n, limit int) int {
	if limit <= 0 {
		limit = MaxWordsLimit
	}
	if n < 1 {
		n = DefaultMaxWords
	}
	if n > limit {
		n = limit
	}
	return n
}

// Format greedily packs the words of segments into cues of at most MaxWords
// words. Cue timestamps are rounded to milliseconds, never overlap and always
// satisfy Start < End.
func Format(segments []Segment, opts FormatOptions) []Cue {
	maxWords := ClampMaxWords(opts.MaxWords, opts.Limit)

	var (
		cues    []Cue
		group   []Word
		prevEnd time.Duration
	)

	flush := func() {
		if len(group) == 0 {
			return
		}
		cue := newCue(len(cues)+1, group, prevEnd)
		cues = append(cues, cue)
		prevEnd = cue.End
		group = group[:0]
	}

	for _, seg := range segments {
		for _, w := range SegmentWords(seg) {
			if len(group) == maxWords {
				flush()
			}
			group = append(group, w)
		}
		if opts.SplitOnSegments {
			flush()
		}
	}
	flush()

	return cues
}

// Words flattens segments into timed words.
func Words(segments []Segment) []Word {
	var words []Word
	for _, seg := range segments {
		words = append(words, SegmentWords(seg)...)
	}
	return words
}

// SegmentWords returns the timed words of seg. Phrase-level segments get their
// duration spread evenly across their words.
func SegmentWords(seg Segment) []Word {
	if len(seg.Words) == 0 {
		return spread(seg.Text, seg.Start, seg.End)
	}

	words := make([]Word, 0, len(seg.Words))
	for _, w := range seg.Words {
		words = append(words, spread(w.Text, w.Start, w.End)...)
	}
	return words
}

func spread(text string, start, end time.Duration) []Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	if end < start {
		end = start
	}

	step := (end - start) / time.Duration(len(fields))
	words := make([]Word, len(fields))
	for i, f := range fields {
		words[i] = Word{
			Text:  f,
			Start: start + time.Duration(i)*step,
			End:   start + time.Duration(i+1)*step,
		}
	}
	words[len(words)-1].End = end
	return words
}

func newCue(index int, group []Word, prevEnd time.Duration) Cue {
	texts := make([]string, len(group))
	for i, w := range group {
		texts[i] = w.Text
	}

	start := group[0].Start.Round(time.Millisecond)
	end := group[len(group)-1].End.Round(time.Millisecond)
	if start < 0 {
		start = 0
	}
	if start < prevEnd {
		start = prevEnd
	}
	if end <= start {
		end = start + time.Millisecond
	}

	return Cue{
		Index: index,
		Start: start,
		End:   end,
		Text:  strings.Join(texts, " "),
	}
}
