package framing

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"
)

// Conn layers framing over a net.Conn. Reads are expected from a single
// goroutine; writes are serialised so frames never interleave.
type Conn struct {
	net.Conn
	r   *Reader
	wmu sync.Mutex
}

// NewConn wraps c.
func NewConn(c net.Conn, opts ...ReaderOption) *Conn {
	return &Conn{Conn: c, r: NewReader(c, opts...)}
}

// ReadFrame reads the next frame. A locally or remotely torn-down socket is
// reported as ErrStreamClosed.
func (c *Conn) ReadFrame() ([]byte, error) {
	b, err := c.r.ReadFrame()
	if err != nil && isClosed(err) {
		return nil, ErrStreamClosed
	}
	return b, err
}

// WriteFrame writes one frame.
func (c *Conn) WriteFrame(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.Conn, payload)
}

// CloseWrite signals end-of-stream to the peer when the underlying
// connection supports half-close. It is a no-op otherwise.
func (c *Conn) CloseWrite() error {
	if hc, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return nil
}

// InterruptRead arranges for a blocked read on c to fail once ctx is done by
// moving the read deadline to now. The returned stop must be called exactly
// once after the read; it returns only when the callback can no longer touch
// the deadline, so callers may safely reset it afterwards.
func InterruptRead(ctx context.Context, c interface{ SetReadDeadline(time.Time) error }) (stop func()) {
	fired := make(chan struct{})
	cancel := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = c.SetReadDeadline(time.Now())
	})
	return func() {
		if !cancel() {
			<-fired
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET)
}
