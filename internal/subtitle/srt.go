package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ContentType is the MIME type served for .srt files.
const ContentType = "application/x-subrip"

const arrow = " --> "

// FormatTimestamp renders d as HH:MM:SS,mmm. Negative durations render as zero.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// ParseTimestamp parses HH:MM:SS,mmm. A dot is accepted as the millisecond
// separator.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.Replace(s, ".", ",", 1))

	clock, frac, ok := strings.Cut(s, ",")
	if !ok || len(frac) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		d += time.Duration(n) * units[i]
	}

	ms, err := strconv.Atoi(frac)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return d + time.Duration(ms)*time.Millisecond, nil
}

// WriteSRT serializes cues. Cues are renumbered from 1 in slice order.
func WriteSRT(w io.Writer, cues []Cue) error {
	bw := bufio.NewWriter(w)
	for i, c := range cues {
		if _, err := fmt.Fprintf(bw, "%d\n%s%s%s\n%s\n\n",
			i+1, FormatTimestamp(c.Start), arrow, FormatTimestamp(c.End), c.Text); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Marshal returns the SRT encoding of cues.
func Marshal(cues []Cue) []byte {
	var buf bytes.Buffer
	_ = WriteSRT(&buf, cues)
	return buf.Bytes()
}

// ParseSRT reads cues back from SRT text.
func ParseSRT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		cues []Cue
		cur  *Cue
		line int
		text []string
	)

	closeCue := func() error {
		if cur == nil {
			return nil
		}
		if len(text) == 0 {
			return fmt.Errorf("cue %d: missing text", cur.Index)
		}
		cur.Text = strings.Join(text, "\n")
		cues = append(cues, *cur)
		cur, text = nil, nil
		return nil
	}

	// 0: expecting index, 1: expecting timing, 2: reading text
	state := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimRight(scanner.Text(), "\r")
		if line == 1 {
			raw = strings.TrimPrefix(raw, "\ufeff")
		}

		switch state {
		case 0:
			if strings.TrimSpace(raw) == "" {
				continue
			}
			idx, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid cue index %q", line, raw)
			}
			cur = &Cue{Index: idx}
			state = 1
		case 1:
			from, to, ok := strings.Cut(raw, arrow)
			if !ok {
				return nil, fmt.Errorf("line %d: invalid timing %q", line, raw)
			}
			start, err := ParseTimestamp(from)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			end, err := ParseTimestamp(to)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			cur.Start, cur.End = start, end
			state = 2
		case 2:
			if strings.TrimSpace(raw) == "" {
				if err := closeCue(); err != nil {
					return nil, err
				}
				state = 0
				continue
			}
			text = append(text, raw)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if state == 1 {
		return nil, fmt.Errorf("cue %d: missing timing", cur.Index)
	}
	if err := closeCue(); err != nil {
		return nil, err
	}
	return cues, nil
}
