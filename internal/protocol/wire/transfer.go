package wire

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortTransfer means the source ended before the announced byte count.
var ErrShortTransfer = errors.New("wire: short transfer")

// ReceiveExact copies exactly n payload bytes from the stream into dst.
//
// Bytes already buffered by earlier ReadLine calls are consumed first. If the
// peer closes early the returned error wraps ErrShortTransfer and reports
// how many bytes did arrive.
func (r *Reader) ReceiveExact(dst io.Writer, n int64) (int64, error) {
	return copyExact(dst, r.br, n)
}

// Discard drops exactly n payload bytes from the stream.
func (r *Reader) Discard(n int64) (int64, error) {
	return copyExact(io.Discard, r.br, n)
}

// Payload returns a reader over the next n payload bytes. It must be drained
// before the next ReadLine.
func (r *Reader) Payload(n int64) io.Reader {
	return io.LimitReader(r.br, n)
}

// SendExact copies exactly n bytes from src to dst.
//
// src must hold at least n bytes; a shorter source wraps ErrShortTransfer.
// When dst is a *net.TCPConn and src an *os.File the copy goes through
// ReadFrom and the kernel's sendfile path.
func SendExact(dst io.Writer, src io.Reader, n int64) (int64, error) {
	return copyExact(dst, src, n)
}

func copyExact(dst io.Writer, src io.Reader, n int64) (int64, error) {
	if n == 0 {
		return 0, nil
	}

	written, err := io.CopyN(dst, src, n)
	if err == nil {
		return written, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return written, fmt.Errorf("%w: %d of %d bytes", ErrShortTransfer, written, n)
	}
	return written, err
}
