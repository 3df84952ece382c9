package core

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SanitizingReader strips a leading UTF-8 BOM and replaces invalid UTF-8
// byte sequences with U+FFFD. Files exported from Excel on Windows commonly
// carry both.
type SanitizingReader struct {
	br      *bufio.Reader
	checked bool
	pending []byte
}

// NewSanitizingReader wraps r.
func NewSanitizingReader(r io.Reader) *SanitizingReader {
	return &SanitizingReader{br: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (s *SanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !s.checked {
		s.checked = true
		if head, _ := s.br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			if _, err := s.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	for n < len(p) {
		r, _, err := s.br.ReadRune()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}

		// Invalid bytes come back as RuneError and are re-encoded as U+FFFD.
		var buf [utf8.UTFMax]byte
		w := utf8.EncodeRune(buf[:], r)
		c := copy(p[n:], buf[:w])
		n += c
		if c < w {
			s.pending = append(s.pending, buf[c:w]...)
			break
		}
	}
	return n, nil
}

// CountingReader tracks the number of bytes read through it.
type CountingReader struct {
	r io.Reader
	n int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// BytesRead returns the total bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n
}
