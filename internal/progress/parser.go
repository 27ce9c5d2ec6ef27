// Package progress extracts download progress from yt-dlp console output.
package progress

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

var (
	percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)%`)
	speedPattern   = regexp.MustCompile(`(?i)at\s+([0-9.]+(?:KiB|MiB|GiB|KB|MB|GB)/s)`)
	etaPattern     = regexp.MustCompile(`(?i)ETA\s+([0-9:]+)`)
	mergePattern   = regexp.MustCompile(`(?i)Merging formats into`)
	messagePattern = regexp.MustCompile(`(?i)\[(?:download|ffmpeg)\]\s+(.*)`)
)

// MergingMessage is reported while yt-dlp muxes audio and video.
const MergingMessage = "merging"

// State is the last known progress of one external process.
type State struct {
	Percent *float64
	Speed   string
	ETA     string
	Message string
}

// Parser accumulates State from output lines. It is not safe for
// concurrent use; feed it from a single goroutine.
type Parser struct {
	state State
}

// NewParser returns a Parser with no known values.
func NewParser() *Parser {
	return &Parser{}
}

// Feed applies one line of output and reports whether any field changed.
// Fields are only overwritten when the new value differs, so feeding the
// same line twice returns false the second time.
func (p *Parser) Feed(line string) bool {
	updated := false

	if m := percentPattern.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if p.state.Percent == nil || *p.state.Percent != v {
				p.state.Percent = &v
				updated = true
			}
		}
	}

	if m := speedPattern.FindStringSubmatch(line); m != nil && p.state.Speed != m[1] {
		p.state.Speed = m[1]
		updated = true
	}

	if m := etaPattern.FindStringSubmatch(line); m != nil && p.state.ETA != m[1] {
		p.state.ETA = m[1]
		updated = true
	}

	if mergePattern.MatchString(line) && p.state.Message != MergingMessage {
		p.state.Message = MergingMessage
		updated = true
	}

	if m := messagePattern.FindStringSubmatch(line); m != nil {
		msg := strings.TrimSpace(m[1])
		if p.state.Message != msg {
			p.state.Message = msg
			updated = true
		}
	}

	return updated
}

// State returns a copy of the accumulated values.
func (p *Parser) State() State {
	s := p.state
	if p.state.Percent != nil {
		v := *p.state.Percent
		s.Percent = &v
	}
	return s
}

// SplitLines normalizes lone carriage returns to newlines and returns the
// non-empty lines of chunk.
func SplitLines(chunk string) []string {
	chunk = strings.ReplaceAll(chunk, "\r\n", "\n")
	chunk = strings.ReplaceAll(chunk, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(chunk, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ScanLines is a bufio.SplitFunc that ends a token at \n, \r or \r\n and
// skips empty tokens, matching SplitLines.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\n' || data[start] == '\r') {
		start++
	}
	if atEOF && start == len(data) {
		return len(data), nil, nil
	}

	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		end := start + i
		return end + 1, data[start:end], nil
	}

	if atEOF {
		return len(data), data[start:], nil
	}

	// Request more data, keeping already skipped terminators consumed.
	return start, nil, nil
}
