package subtitle

import (
	"strings"
	"testing"
	"time"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func wordSegment(words ...string) Segment {
	seg := Segment{Text: strings.Join(words, " ")}
	for i, w := range words {
		seg.Words = append(seg.Words, Word{Text: w, Start: ms(i * 500), End: ms(i*500 + 400)})
	}
	seg.Start = seg.Words[0].Start
	seg.End = seg.Words[len(seg.Words)-1].End
	return seg
}

// TestFormatExactLimitSingleCue checks that max words fit in one cue.
func TestFormatExactLimitSingleCue(t *testing.T) {
	seg := wordSegment("one", "two", "three", "four")
	cues := Format([]Segment{seg}, FormatOptions{MaxWords: 4})
	if len(cues) != 1 {
		t.Fatalf("cues = %d, want 1", len(cues))
	}
	if cues[0].Text != "one two three four" {
		t.Fatalf("text = %q", cues[0].Text)
	}
	if cues[0].Start != 0 || cues[0].End != ms(1900) {
		t.Fatalf("timing = %v..%v, want 0s..1.9s", cues[0].Start, cues[0].End)
	}
}

// TestFormatOneOverLimitSplits checks the split lands on a word boundary.
func TestFormatOneOverLimitSplits(t *testing.T) {
	seg := wordSegment("one", "two", "three", "four", "five")
	cues := Format([]Segment{seg}, FormatOptions{MaxWords: 4})
	if len(cues) != 2 {
		t.Fatalf("cues = %d, want 2", len(cues))
	}
	if cues[0].Text != "one two three four" || cues[1].Text != "five" {
		t.Fatalf("texts = %q, %q", cues[0].Text, cues[1].Text)
	}
	if cues[1].Index != 2 {
		t.Fatalf("second index = %d, want 2", cues[1].Index)
	}
	if cues[1].Start != ms(2000) || cues[1].End != ms(2400) {
		t.Fatalf("second timing = %v..%v", cues[1].Start, cues[1].End)
	}
}

// TestFormatEmptyInput verifies degenerate input yields no cues.
func TestFormatEmptyInput(t *testing.T) {
	if cues := Format(nil, FormatOptions{MaxWords: 8}); len(cues) != 0 {
		t.Fatalf("cues = %d, want 0", len(cues))
	}
	if got := Marshal(nil); len(got) != 0 {
		t.Fatalf("marshal = %q, want empty", got)
	}
}

// TestFormatPhraseLevelSpread checks even word timing for phrase segments.
func TestFormatPhraseLevelSpread(t *testing.T) {
	seg := Segment{Start: 0, End: ms(4000), Text: "a b c d"}
	cues := Format([]Segment{seg}, FormatOptions{MaxWords: 2})
	if len(cues) != 2 {
		t.Fatalf("cues = %d, want 2", len(cues))
	}
	if cues[0].End != ms(2000) || cues[1].Start != ms(2000) || cues[1].End != ms(4000) {
		t.Fatalf("timings = %+v", cues)
	}
}

// TestFormatWordsFlowAcrossSegments checks default word-granularity grouping.
func TestFormatWordsFlowAcrossSegments(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: ms(1000), Text: "hello there"},
		{Start: ms(1000), End: ms(2000), Text: "general kenobi"},
	}

	cues := Format(segs, FormatOptions{MaxWords: 3})
	if len(cues) != 2 || cues[0].Text != "hello there general" {
		t.Fatalf("cues = %+v", cues)
	}

	cues = Format(segs, FormatOptions{MaxWords: 3, SplitOnSegments: true})
	if len(cues) != 2 || cues[0].Text != "hello there" || cues[1].Text != "general kenobi" {
		t.Fatalf("split cues = %+v", cues)
	}
}

// TestFormatClampsMaxWords verifies out-of-range limits are normalized.
func TestFormatClampsMaxWords(t *testing.T) {
	cases := []struct {
		in, limit, want int
	}{
		{0, 0, DefaultMaxWords},
		{-3, 0, DefaultMaxWords},
		{5, 0, 5},
		{50, 0, MaxWordsLimit},
		{12, 10, 10},
	}
	for _, tc := range cases {
		if got := ClampMaxWords(tc.in, tc.limit); got != tc.want {
			t.Errorf("ClampMaxWords(%d, %d) = %d, want %d", tc.in, tc.limit, got, tc.want)
		}
	}

	words := make([]string, 45)
	for i := range words {
		words[i] = "w"
	}
	cues := Format([]Segment{{Start: 0, End: ms(45000), Text: strings.Join(words, " ")}}, FormatOptions{MaxWords: 100})
	if len(cues) != 3 {
		t.Fatalf("cues = %d, want 3", len(cues))
	}
	for _, c := range cues {
		if n := len(strings.Fields(c.Text)); n > MaxWordsLimit {
			t.Fatalf("cue %d has %d words", c.Index, n)
		}
	}
}

// TestFormatNeverOverlaps feeds overlapping engine output.
func TestFormatNeverOverlaps(t *testing.T) {
	segs := []Segment{
		{Start: ms(0), End: ms(1500), Text: "first part"},
		{Start: ms(1000), End: ms(1000), Text: "zero"},
		{Start: ms(900), End: ms(2500), Text: "late start"},
	}
	cues := Format(segs, FormatOptions{MaxWords: 1})

	var prevEnd time.Duration
	for _, c := range cues {
		if c.Start < prevEnd {
			t.Fatalf("cue %d starts at %v before previous end %v", c.Index, c.Start, prevEnd)
		}
		if c.Start >= c.End {
			t.Fatalf("cue %d has start %v >= end %v", c.Index, c.Start, c.End)
		}
		if c.Text == "" {
			t.Fatalf("cue %d has empty text", c.Index)
		}
		prevEnd = c.End
	}
}

// TestSegmentWordsSplitsMultiWordTokens keeps word counts honest.
func TestSegmentWordsSplitsMultiWordTokens(t *testing.T) {
	seg := Segment{Words: []Word{{Text: " New York ", Start: 0, End: ms(1000)}, {Text: "   "}}}
	words := SegmentWords(seg)
	if len(words) != 2 || words[0].Text != "New" || words[1].Text != "York" {
		t.Fatalf("words = %+v", words)
	}
	if words[1].End != ms(1000) {
		t.Fatalf("last end = %v, want 1s", words[1].End)
	}
}
