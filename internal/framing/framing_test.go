package framing_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciphersock/internal/framing"
)

func allBytes() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestFrame_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hello"),
		allBytes(),
		bytes.Repeat([]byte("<?!!?"), 100),
		bytes.Repeat(allBytes(), 300),
	}

	var stream bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, framing.WriteFrame(&stream, p))
	}

	r := framing.NewReader(&stream)
	for i, want := range payloads {
		got, err := r.ReadFrame()
		require.NoError(t, err, "frame %d", i)
		require.NotNil(t, got)
		assert.Equal(t, want, got, "frame %d", i)
	}

	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, framing.ErrStreamClosed)
}

func TestFrame_ChunkedBeyondBuffer(t *testing.T) {
	// A 16-byte scan buffer forces every frame through the chunked path and
	// puts the separator across chunk boundaries for some lengths.
	for n := 0; n < 64; n++ {
		payload := bytes.Repeat([]byte{'x'}, n)

		var stream bytes.Buffer
		require.NoError(t, framing.WriteFrame(&stream, payload))
		require.NoError(t, framing.WriteFrame(&stream, []byte("next")))

		r := framing.NewReader(&stream, framing.WithBufferSize(16))
		got, err := r.ReadFrame()
		require.NoError(t, err, "len %d", n)
		assert.Equal(t, payload, got)

		got, err = r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, []byte("next"), got)
	}
}

func TestFrame_EmptyPayloadIsNotClose(t *testing.T) {
	r := framing.NewReader(bytes.NewReader(framing.Separator))
	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got)
}

func TestFrame_EOFWithoutSeparator(t *testing.T) {
	for _, in := range []string{"", "partial", "partial<?!!"} {
		r := framing.NewReader(bytes.NewReader([]byte(in)))
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, framing.ErrStreamClosed, "input %q", in)
	}
}

func TestFrame_TooLarge(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, framing.WriteFrame(&stream, bytes.Repeat([]byte{'a'}, 1024)))

	r := framing.NewReader(&stream, framing.WithBufferSize(16), framing.WithMaxFrameSize(100))
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, framing.ErrFrameTooLarge)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteFrame_Failure(t *testing.T) {
	err := framing.WriteFrame(failingWriter{}, []byte("x"))
	assert.ErrorIs(t, err, framing.ErrStreamWrite)

	err = framing.WriteFrame(bufio.NewWriterSize(failingWriter{}, 16), []byte("x"))
	assert.ErrorIs(t, err, framing.ErrStreamWrite)
}

func TestConn_ClosedSocketReportsStreamClosed(t *testing.T) {
	a, b := net.Pipe()
	ca := framing.NewConn(a)
	cb := framing.NewConn(b)

	go func() {
		_ = cb.WriteFrame([]byte("one"))
		_ = cb.Close()
	}()

	got, err := ca.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	_, err = ca.ReadFrame()
	assert.ErrorIs(t, err, framing.ErrStreamClosed)

	require.NoError(t, ca.Close())
	_, err = ca.ReadFrame()
	assert.ErrorIs(t, err, framing.ErrStreamClosed)
}

func TestConn_CloseWriteOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	client := framing.NewConn(raw)
	defer client.Close()

	server := framing.NewConn(<-accepted)
	defer server.Close()

	require.NoError(t, client.WriteFrame([]byte("bye")))
	require.NoError(t, client.CloseWrite())

	got, err := server.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("bye"), got)

	_, err = server.ReadFrame()
	assert.ErrorIs(t, err, framing.ErrStreamClosed)
}

func TestConn_DeadlineKeepsPartialFrame(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	conn := framing.NewConn(a)

	go func() {
		_, _ = b.Write([]byte("hel"))
		time.Sleep(100 * time.Millisecond)
		_, _ = b.Write(append([]byte("lo"), framing.Separator...))
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(30*time.Millisecond)))
	_, err := conn.ReadFrame()
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)

	require.NoError(t, conn.SetReadDeadline(time.Time{}))
	got, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestInterruptRead_StopWaitsForCallback(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	conn := framing.NewConn(a)

	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		stop := framing.InterruptRead(ctx, conn)
		cancel()
		stop()
		require.NoError(t, conn.SetReadDeadline(time.Time{}))

		go func() { _ = framing.WriteFrame(b, []byte("ok")) }()
		got, err := conn.ReadFrame()
		require.NoError(t, err, "iteration %d", i)
		require.Equal(t, "ok", string(got))
	}
}

func TestInterruptRead_UnblocksRead(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	conn := framing.NewConn(a)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	stop := framing.InterruptRead(ctx, conn)
	_, err := conn.ReadFrame()
	stop()
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}
