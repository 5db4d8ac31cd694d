package codec

import (
	"bufio"
	"bytes"
	"io"

	"sapphire/internal/protocol"
)

// MaxLineBytes bounds a single frame. Logging captures are the largest frames.
const MaxLineBytes = 1 << 20

// Scanner yields newline-delimited text lines from a byte stream.
// A read error ends the sequence; calling Reset with a new reader restarts it.
type Scanner struct {
	sc   *bufio.Scanner
	line string
}

func NewScanner(r io.Reader) *Scanner {
	s := &Scanner{}
	s.Reset(r)
	return s
}

func (s *Scanner) Reset(r io.Reader) {
	s.sc = bufio.NewScanner(r)
	s.sc.Buffer(make([]byte, 4096), MaxLineBytes)
	s.line = ""
}

// Next advances to the next line, skipping blank ones.
func (s *Scanner) Next() bool {
	for s.sc.Scan() {
		b := bytes.TrimRight(s.sc.Bytes(), "\r")
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		s.line = Latin1(b)
		return true
	}
	return false
}

// Line is the current line, Latin-1 decoded.
func (s *Scanner) Line() string { return s.line }

// Err is the first non-EOF error, if any.
func (s *Scanner) Err() error { return s.sc.Err() }

// Frames decodes every frame-shaped line of r and calls fn for each result.
// Decode failures are passed to fn and scanning continues.
func Frames(r io.Reader, fn func(protocol.Frame, error)) error {
	s := NewScanner(r)
	for s.Next() {
		if !IsFrame(s.Line()) {
			continue
		}
		fn(Decode(s.Line()))
	}
	return s.Err()
}
