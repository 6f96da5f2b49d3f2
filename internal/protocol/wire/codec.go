// Package wire implements the line-oriented framing shared by the gateway and
// the storage nodes.
//
// Every control message is a single newline-terminated line whose fields are
// separated by '|'. Raw payload bytes follow a line that announced their
// size, with no framing of their own. Both directions therefore need a reader
// that can switch between line mode and exact-count byte mode without losing
// buffered data, which is what Reader provides.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// Separator delimits fields within a line.
	Separator = "|"

	// DefaultMaxLineLength bounds a single control line, newline excluded.
	DefaultMaxLineLength = 4096

	readBufferSize = 64 * 1024
)

var (
	// ErrLineTooLong is returned when a line exceeds the reader's limit.
	// The offending line has been consumed up to and including its newline,
	// so the stream is positioned at the next line.
	ErrLineTooLong = errors.New("wire: line too long")

	// ErrBadSize is returned when a size field is not a non-negative integer.
	ErrBadSize = errors.New("wire: invalid size")
)

// Reader reads control lines and payload bytes from one stream.
type Reader struct {
	br      *bufio.Reader
	maxLine int
}

// NewReader wraps r. maxLine <= 0 selects DefaultMaxLineLength.
func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Reader{
		br:      bufio.NewReaderSize(r, readBufferSize),
		maxLine: maxLine,
	}
}

// ReadLine returns the next line without its terminator ("\n" or "\r\n").
//
// A final line that ends at EOF without a newline is returned as-is; a clean
// EOF before any byte returns io.EOF.
func (r *Reader) ReadLine() (string, error) {
	var (
		line    []byte
		tooLong bool
	)

	for {
		chunk, err := r.br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > r.maxLine+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return "", ErrLineTooLong
			}
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			if len(line) > r.maxLine {
				return "", ErrLineTooLong
			}
			return string(line), nil

		case errors.Is(err, bufio.ErrBufferFull):
			continue

		case errors.Is(err, io.EOF):
			if tooLong {
				return "", ErrLineTooLong
			}
			if len(line) == 0 {
				return "", io.EOF
			}
			return string(line), nil

		default:
			return "", err
		}
	}
}

// Split breaks a line into its fields.
func Split(line string) []string {
	return strings.Split(line, Separator)
}

// Join assembles fields into a line body (no terminator).
func Join(fields ...string) string {
	return strings.Join(fields, Separator)
}

// WriteLine writes the fields as one terminated line in a single Write call.
func WriteLine(w io.Writer, fields ...string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(f)
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

// ParseSize parses a decimal, non-negative byte count.
func ParseSize(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadSize, s)
	}
	return n, nil
}

// FormatSize renders a byte count for the wire.
func FormatSize(n int64) string {
	return strconv.FormatInt(n, 10)
}
