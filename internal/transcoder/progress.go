package transcoder

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// Progress is one stats update from a running conversion.
type Progress struct {
	Frame int
	// Fraction is the completed share of the output, 0..1.
	Fraction float64
	// Speed is the encode speed relative to real time.
	Speed float64
	// Time is the output timestamp reached, in seconds.
	Time float64
}

// ProgressFunc receives progress updates. It is called from the goroutine
// reading the transcoder output and must not block.
type ProgressFunc func(Progress)

var statsLine = regexp.MustCompile(`frame=\s*(\d+).*?time=\s*(\S+).*?speed=\s*(\S+?)x?(?:\s|$)`)

// ParseProgress extracts a stats update from one ffmpeg log line. Lines of
// any other shape report false and are otherwise ignored.
func ParseProgress(line string, total float64) (Progress, bool) {
	m := statsLine.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	frame, err := strconv.Atoi(m[1])
	if err != nil {
		return Progress{}, false
	}
	p := Progress{Frame: frame}
	if t, ok := parseClock(m[2]); ok {
		p.Time = t
	}
	if s, err := strconv.ParseFloat(strings.TrimSuffix(m[3], "x"), 64); err == nil {
		p.Speed = s
	}
	if total > 0 {
		p.Fraction = min(max(p.Time/total, 0), 1)
	}
	return p, true
}

// parseClock reads HH:MM:SS.ss.
func parseClock(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, false
		}
		total = total*60 + v
	}
	if total < 0 {
		return 0, false
	}
	return total, true
}

// scanLines splits on \n or \r, since ffmpeg rewrites its stats line in
// place with carriage returns.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = scanLines
