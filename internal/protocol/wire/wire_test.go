package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Line Tests
// ============================================================================

func TestReadLine(t *testing.T) {
	t.Run("SplitsOnNewline", func(t *testing.T) {
		r := NewReader(strings.NewReader("DISP|~S1/\nDOWNTAR|.c\n"), 0)

		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "DISP|~S1/", line)

		line, err = r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "DOWNTAR|.c", line)

		_, err = r.ReadLine()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("StripsCarriageReturn", func(t *testing.T) {
		r := NewReader(strings.NewReader("OK\r\n"), 0)
		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "OK", line)
	})

	t.Run("UnterminatedFinalLine", func(t *testing.T) {
		r := NewReader(strings.NewReader("END"), 0)
		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "END", line)
	})

	t.Run("EmptyLine", func(t *testing.T) {
		r := NewReader(strings.NewReader("\nOK\n"), 0)
		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "", line)
	})

	t.Run("TooLongIsSkipped", func(t *testing.T) {
		input := strings.Repeat("x", 100) + "\nDISP|~S1\n"
		r := NewReader(strings.NewReader(input), 16)

		_, err := r.ReadLine()
		assert.ErrorIs(t, err, ErrLineTooLong)

		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "DISP|~S1", line)
	})

	t.Run("TooLongAcrossBuffer", func(t *testing.T) {
		input := strings.Repeat("y", 3*readBufferSize) + "\nOK\n"
		r := NewReader(strings.NewReader(input), 0)

		_, err := r.ReadLine()
		assert.ErrorIs(t, err, ErrLineTooLong)

		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, "OK", line)
	})

	t.Run("ExactlyAtLimit", func(t *testing.T) {
		r := NewReader(strings.NewReader(strings.Repeat("a", 16)+"\r\n"), 16)
		line, err := r.ReadLine()
		require.NoError(t, err)
		assert.Len(t, line, 16)
	})
}

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, "FILERESP", "a.c", "12"))
	require.NoError(t, WriteLine(&buf, "DONE"))
	assert.Equal(t, "FILERESP|a.c|12\nDONE\n", buf.String())
}

func TestSplitJoin(t *testing.T) {
	assert.Equal(t, []string{"UPLOADF", "2", "~S1/x"}, Split("UPLOADF|2|~S1/x"))
	assert.Equal(t, []string{"STORE", "docs", "a.pdf", ""}, Split("STORE|docs|a.pdf|"))
	assert.Equal(t, "NAME|.c|a.c", Join("NAME", ".c", "a.c"))
}

func TestParseSize(t *testing.T) {
	n, err := ParseSize(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	for _, bad := range []string{"", "-1", "abc", "1.5"} {
		_, err := ParseSize(bad)
		assert.ErrorIs(t, err, ErrBadSize, bad)
	}
	assert.Equal(t, "0", FormatSize(0))
}

// ============================================================================
// Transfer Tests
// ============================================================================

func TestReceiveExact_AfterLine(t *testing.T) {
	r := NewReader(strings.NewReader("FILEMETA|a.c|5\nhelloFILEMETA|b.c|0\n"), 0)

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "FILEMETA|a.c|5", line)

	var payload bytes.Buffer
	n, err := r.ReceiveExact(&payload, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", payload.String())

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "FILEMETA|b.c|0", line)
}

func TestReceiveExact_Short(t *testing.T) {
	r := NewReader(strings.NewReader("abc"), 0)

	n, err := r.ReceiveExact(io.Discard, 10)
	assert.Equal(t, int64(3), n)
	assert.True(t, errors.Is(err, ErrShortTransfer))
}

func TestSendExact(t *testing.T) {
	var out bytes.Buffer
	n, err := SendExact(&out, strings.NewReader("payload-and-more"), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", out.String())

	_, err = SendExact(io.Discard, strings.NewReader("xy"), 3)
	assert.ErrorIs(t, err, ErrShortTransfer)

	n, err = SendExact(io.Discard, strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
