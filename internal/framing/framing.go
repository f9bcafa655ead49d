package framing

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Separator terminates every frame.
var Separator = []byte("<?!!?>")

const (
	// DefaultBufferSize is the single-scan limit before chunked accumulation.
	DefaultBufferSize = 4 << 10
	// DefaultMaxFrameSize bounds a single frame's payload.
	DefaultMaxFrameSize = 16 << 20
)

var (
	// ErrStreamClosed signals that the peer closed the stream.
	ErrStreamClosed = errors.New("stream closed")
	// ErrStreamWrite is returned when a frame cannot be written.
	ErrStreamWrite = errors.New("stream write failed")
	// ErrFrameTooLarge is returned when a frame exceeds the reader's limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// WriteFrame writes payload followed by Separator as one write and flushes w
// when it is buffered.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, len(payload)+len(Separator))
	buf = append(buf, payload...)
	buf = append(buf, Separator...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamWrite, err)
	}
	if bw, ok := w.(*bufio.Writer); ok {
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("%w: %v", ErrStreamWrite, err)
		}
	}
	return nil
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	bufferSize   int
	maxFrameSize int
}

// WithBufferSize sets the scan buffer; frames longer than this take the
// chunked path.
func WithBufferSize(n int) ReaderOption {
	return func(c *readerConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithMaxFrameSize sets the largest accepted payload.
func WithMaxFrameSize(n int) ReaderOption {
	return func(c *readerConfig) {
		if n > 0 {
			c.maxFrameSize = n
		}
	}
}

// Reader reassembles frames from an underlying stream. It is not safe for
// concurrent use.
type Reader struct {
	br      *bufio.Reader
	max     int
	pending []byte
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	cfg := readerConfig{bufferSize: DefaultBufferSize, maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reader{
		br:  bufio.NewReaderSize(r, cfg.bufferSize),
		max: cfg.maxFrameSize,
	}
}

// ReadFrame returns the next payload with the separator stripped. A read
// interrupted by a transient error such as a deadline keeps the partial frame
// and the next call resumes it.
func (r *Reader) ReadFrame() ([]byte, error) {
	last := Separator[len(Separator)-1]
	acc := r.pending
	r.pending = nil
	for {
		chunk, err := r.br.ReadSlice(last)
		switch {
		case err == nil:
			acc = append(acc, chunk...)
			if bytes.HasSuffix(acc, Separator) {
				return frameOf(acc), nil
			}
		case errors.Is(err, bufio.ErrBufferFull):
			acc = append(acc, chunk...)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, ErrStreamClosed
		default:
			r.pending = append(acc, chunk...)
			return nil, err
		}
		if len(acc) > r.max+len(Separator) {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, r.max)
		}
	}
}

func frameOf(acc []byte) []byte {
	n := len(acc) - len(Separator)
	out := make([]byte, n)
	copy(out, acc[:n])
	return out
}
