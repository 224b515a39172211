// Package replay feeds recorded monocular feature-track frames into the
// processing loop. A replay file is JSON Lines: one frame object per line,
// matching the vo.Frame schema. Blank lines and #-comments are skipped so
// fixture files can be annotated.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/driftline/odometry.report/internal/vo"
)

// Frames above this size are rejected; a single frame line should never be
// anywhere near 4MB even with dense feature tracks.
const maxLineBytes = 4 * 1024 * 1024

// Source reads frames sequentially from a replay file or stream.
type Source struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// Open opens a JSONL replay file.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	s := NewReader(f)
	s.closer = f
	return s, nil
}

// NewReader wraps an in-memory or streamed replay source.
func NewReader(r io.Reader) *Source {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Source{scanner: scanner}
}

// Next returns the next frame in the sequence. It returns io.EOF once the
// source is exhausted.
func (s *Source) Next() (*vo.Frame, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var frame vo.Frame
		if err := json.Unmarshal([]byte(text), &frame); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", s.line, err)
		}
		return &frame, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay line %d: %w", s.line, err)
	}
	return nil, io.EOF
}

// Close releases the underlying file, if any.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
