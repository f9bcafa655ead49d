package handshake_test

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciphersock/internal/auth"
	"ciphersock/internal/crypto"
	"ciphersock/internal/domain"
	"ciphersock/internal/framing"
	"ciphersock/internal/protocol/handshake"
)

// tap records every byte written through the wrapped conn.
type tap struct {
	net.Conn
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (t tap) Write(b []byte) (int, error) {
	t.mu.Lock()
	t.buf.Write(b)
	t.mu.Unlock()
	return t.Conn.Write(b)
}

func pipe(t *testing.T) (server, client *framing.Conn, wire func() []byte) {
	t.Helper()
	a, b := net.Pipe()
	var mu sync.Mutex
	var buf bytes.Buffer
	server = framing.NewConn(tap{Conn: a, mu: &mu, buf: &buf})
	client = framing.NewConn(tap{Conn: b, mu: &mu, buf: &buf})
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return server, client, func() []byte {
		mu.Lock()
		defer mu.Unlock()
		return append([]byte(nil), buf.Bytes()...)
	}
}

func cfg() handshake.Config {
	return handshake.Config{Timeout: 5 * time.Second, Logger: zerolog.Nop()}
}

type outcome struct {
	res *handshake.Result
	err error
}

func runServer(ctx context.Context, conn *framing.Conn, c handshake.Config) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		res, err := handshake.Server(ctx, conn, c)
		ch <- outcome{res, err}
	}()
	return ch
}

func TestHandshake_Success(t *testing.T) {
	sconn, cconn, wire := pipe(t)
	ctx := context.Background()

	srv := runServer(ctx, sconn, cfg())
	cres, err := handshake.Client(ctx, cconn, cfg())
	require.NoError(t, err)

	out := <-srv
	require.NoError(t, out.err)
	assert.Equal(t, out.res.SessionKey, cres.SessionKey)
	assert.Len(t, cres.SessionKey, crypto.SessionKeyBytes)
	assert.Equal(t, out.res.KeyFingerprint, cres.KeyFingerprint)

	// The session key never crosses the wire in clear.
	assert.False(t, bytes.Contains(wire(), cres.SessionKey))
}

func TestHandshake_SessionKeyNeverInPlaintextFrames(t *testing.T) {
	sconn, cconn, wire := pipe(t)
	ctx := context.Background()

	srv := runServer(ctx, sconn, cfg())
	cres, err := handshake.Client(ctx, cconn, cfg())
	require.NoError(t, err)
	require.NoError(t, (<-srv).err)

	frames := bytes.Split(wire(), framing.Separator)
	require.GreaterOrEqual(t, len(frames), 4)
	for i, f := range frames {
		if _, err := crypto.ParseEnvelope(f); err == nil {
			continue
		}
		assert.False(t, bytes.Contains(f, cres.SessionKey), "plaintext frame %d leaks the key", i)
	}
}

func TestHandshake_ClientRejectsGarbagePublicKey(t *testing.T) {
	sconn, cconn, _ := pipe(t)
	go func() { _ = sconn.WriteFrame([]byte("definitely not a PEM key")) }()

	_, err := handshake.Client(context.Background(), cconn, cfg())
	require.Error(t, err)
	assert.True(t, handshake.IsKind(err, handshake.KindMalformed))
	assert.Equal(t, handshake.StepPublicKey, handshake.StepOf(err))
	assert.ErrorIs(t, err, crypto.ErrInvalidPublicKey)
}

func TestHandshake_ServerRejectsCorruptWrappedKey(t *testing.T) {
	sconn, cconn, _ := pipe(t)
	srv := runServer(context.Background(), sconn, cfg())

	_, err := cconn.ReadFrame()
	require.NoError(t, err)
	bogus := handshake.WrappedKeyMessage{EncSessionKey: bytes.Repeat([]byte{0x42}, 256)}
	msg, err := bogus.Marshal()
	require.NoError(t, err)
	require.NoError(t, cconn.WriteFrame(msg))

	out := <-srv
	require.Error(t, out.err)
	assert.True(t, handshake.IsKind(out.err, handshake.KindMalformed))
	assert.Equal(t, handshake.StepWrappedKey, handshake.StepOf(out.err))
}

func TestHandshake_ServerRejectsWrongFill(t *testing.T) {
	sconn, cconn, _ := pipe(t)
	srv := runServer(context.Background(), sconn, cfg())

	pem, err := cconn.ReadFrame()
	require.NoError(t, err)
	sk, err := crypto.NewSessionKey()
	require.NoError(t, err)
	wrapped, err := crypto.WrapKey(pem, sk)
	require.NoError(t, err)
	msg, err := handshake.WrappedKeyMessage{EncSessionKey: wrapped}.Marshal()
	require.NoError(t, err)
	require.NoError(t, cconn.WriteFrame(msg))

	blob, err := cconn.ReadFrame()
	require.NoError(t, err)
	pt, err := crypto.Open(sk, blob)
	require.NoError(t, err)
	tm, err := handshake.UnmarshalTestMessage(pt)
	require.NoError(t, err)
	assert.Equal(t, handshake.TestMarker, tm.Marker)
	assert.Len(t, tm.Fill, handshake.FillBytes)

	// Echo the fill without reversing it.
	echoed, err := handshake.TestResponse{Marker: handshake.TestResponseMarker, Fill: tm.Fill}.Marshal()
	require.NoError(t, err)
	resp, err := crypto.Seal(sk, echoed)
	require.NoError(t, err)
	require.NoError(t, cconn.WriteFrame(resp))

	out := <-srv
	require.Error(t, out.err)
	assert.True(t, handshake.IsKind(out.err, handshake.KindVerification))
	assert.ErrorIs(t, out.err, handshake.ErrVerification)
}

func TestHandshake_ServerTimesOut(t *testing.T) {
	sconn, cconn, _ := pipe(t)
	c := cfg()
	c.Timeout = 50 * time.Millisecond
	srv := runServer(context.Background(), sconn, c)

	_, err := cconn.ReadFrame()
	require.NoError(t, err)
	// Never answer.

	select {
	case out := <-srv:
		assert.True(t, handshake.IsKind(out.err, handshake.KindTimeout), "got %v", out.err)
		assert.Equal(t, handshake.StepWrappedKey, handshake.StepOf(out.err))
	case <-time.After(5 * time.Second):
		t.Fatal("server handshake did not time out")
	}
}

func TestHandshake_ContextCancelUnblocks(t *testing.T) {
	_, cconn, _ := pipe(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := handshake.Client(ctx, cconn, cfg())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("client handshake ignored cancellation")
	}
}

func TestAuth_SharedSecretSucceeds(t *testing.T) {
	sconn, cconn, _ := pipe(t)
	secret, err := auth.NewSecret()
	require.NoError(t, err)
	sp, err := auth.New(secret)
	require.NoError(t, err)
	cp, err := auth.New(secret)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- handshake.ServerAuth(context.Background(), sconn, sp, cfg()) }()

	require.NoError(t, handshake.ClientAuth(context.Background(), cconn, cp, cfg()))
	require.NoError(t, <-done)
}

func TestAuth_MismatchedSecretFails(t *testing.T) {
	sconn, cconn, _ := pipe(t)
	s1, err := auth.NewSecret()
	require.NoError(t, err)
	s2, err := auth.NewSecret()
	require.NoError(t, err)
	sp, err := auth.New(s1)
	require.NoError(t, err)
	cp, err := auth.New(s2)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		err := handshake.ServerAuth(context.Background(), sconn, sp, cfg())
		_ = sconn.Close()
		done <- err
	}()

	cerr := handshake.ClientAuth(context.Background(), cconn, cp, cfg())
	serr := <-done

	assert.True(t, handshake.IsKind(serr, handshake.KindUnauthenticated), "server: %v", serr)
	assert.ErrorIs(t, serr, auth.ErrBadProof)
	assert.True(t, handshake.IsKind(cerr, handshake.KindUnauthenticated), "client: %v", cerr)
}

func TestHandshake_ServerRecordsSingleUseKeyPair(t *testing.T) {
	sconn, cconn, _ := pipe(t)
	ctx := context.Background()

	var keys domain.KeyData
	done := make(chan error, 1)
	go func() {
		_, err := handshake.ServerWithKeys(ctx, sconn, cfg(), &keys)
		done <- err
	}()
	cres, err := handshake.Client(ctx, cconn, cfg())
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.NotEmpty(t, keys.PublicPEM)
	assert.Equal(t, crypto.Fingerprint(keys.PublicPEM), cres.KeyFingerprint)
	assert.Nil(t, keys.PrivatePEM)
	assert.False(t, keys.HasSessionKey())
}

func TestHandshake_ServerClearsPrivateKeyOnFailure(t *testing.T) {
	sconn, cconn, _ := pipe(t)

	var keys domain.KeyData
	done := make(chan error, 1)
	go func() {
		_, err := handshake.ServerWithKeys(context.Background(), sconn, cfg(), &keys)
		done <- err
	}()
	pem, err := cconn.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, cconn.Close())

	require.Error(t, <-done)
	assert.Equal(t, pem, keys.PublicPEM)
	assert.Nil(t, keys.PrivatePEM)
}
