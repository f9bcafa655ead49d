package handshake

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"ciphersock/internal/crypto"
	"ciphersock/internal/domain"
	"ciphersock/internal/framing"
	"ciphersock/internal/util/memzero"
)

// DefaultTimeout bounds every wait for a peer-originated handshake frame.
const DefaultTimeout = 10 * time.Second

// FrameConn is the framed stream a handshake runs over.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	SetReadDeadline(t time.Time) error
}

// Config tunes one handshake run.
type Config struct {
	// Timeout bounds each read of a peer frame. Zero means DefaultTimeout.
	Timeout time.Duration
	// Logger receives per-step debug records.
	Logger zerolog.Logger
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Result is the outcome of a completed handshake.
type Result struct {
	// SessionKey is the shared AEAD key. The caller owns it and must wipe it
	// when the connection ends.
	SessionKey []byte
	// KeyFingerprint identifies the server's ephemeral public key.
	KeyFingerprint domain.Fingerprint
}

// Server runs the server half: send an ephemeral public key, unwrap the
// client's session key, then run the encryption self-test. Any failure,
// including a self-test mismatch, is returned and the caller must close conn.
func Server(ctx context.Context, conn FrameConn, cfg Config) (*Result, error) {
	var keys domain.KeyData
	return ServerWithKeys(ctx, conn, cfg, &keys)
}

// ServerWithKeys is Server with the ephemeral keypair recorded in keys. The
// private half is wiped and cleared as soon as the session key is recovered,
// and on every failure. PublicPEM is left in place. SessionKey is not set;
// it is returned in the Result.
func ServerWithKeys(ctx context.Context, conn FrameConn, cfg Config, keys *domain.KeyData) (*Result, error) {
	log := cfg.Logger.With().Str("role", "server").Logger()

	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fail(StepPublicKey, KindInternal, err)
	}
	keys.PublicPEM, keys.PrivatePEM = pub, priv
	defer func() {
		memzero.Zero(keys.PrivatePEM)
		keys.PrivatePEM = nil
	}()
	fp := crypto.Fingerprint(pub)

	if err := conn.WriteFrame(PublicKeyMessage{PEM: pub}.Marshal()); err != nil {
		return nil, fail(StepPublicKey, KindClosed, err)
	}
	log.Debug().Str("step", StepPublicKey.String()).Str("key_fp", fp.String()).Msg("sent public key")

	frame, err := readFrame(ctx, conn, cfg.timeout())
	if err != nil {
		return nil, fail(StepWrappedKey, kindOf(err), err)
	}
	wk, err := UnmarshalWrappedKey(frame)
	if err != nil {
		return nil, fail(StepWrappedKey, KindMalformed, err)
	}
	sessionKey, err := crypto.UnwrapKey(keys.PrivatePEM, wk.EncSessionKey)
	if err != nil {
		return nil, fail(StepWrappedKey, KindMalformed, err)
	}
	// The keypair is single-use.
	memzero.Zero(keys.PrivatePEM)
	keys.PrivatePEM = nil
	if len(sessionKey) != crypto.SessionKeyBytes {
		memzero.Zero(sessionKey)
		return nil, fail(StepWrappedKey, KindMalformed, crypto.ErrInvalidKey)
	}
	log.Debug().Str("step", StepWrappedKey.String()).Msg("recovered session key")

	res, err := serverSelfTest(ctx, conn, cfg, sessionKey)
	if err != nil {
		memzero.Zero(sessionKey)
		return nil, err
	}
	res.KeyFingerprint = fp
	log.Debug().Str("step", StepTestResponse.String()).Msg("self-test verified")
	return res, nil
}

func serverSelfTest(ctx context.Context, conn FrameConn, cfg Config, sessionKey []byte) (*Result, error) {
	fill := make([]byte, FillBytes)
	if _, err := rand.Read(fill); err != nil {
		return nil, fail(StepTestMessage, KindInternal, err)
	}
	msg, err := TestMessage{Marker: TestMarker, Fill: fill}.Marshal()
	if err != nil {
		return nil, fail(StepTestMessage, KindInternal, err)
	}
	blob, err := crypto.Seal(sessionKey, msg)
	if err != nil {
		return nil, fail(StepTestMessage, KindInternal, err)
	}
	if err := conn.WriteFrame(blob); err != nil {
		return nil, fail(StepTestMessage, KindClosed, err)
	}

	frame, err := readFrame(ctx, conn, cfg.timeout())
	if err != nil {
		return nil, fail(StepTestResponse, kindOf(err), err)
	}
	pt, err := crypto.Open(sessionKey, frame)
	if err != nil {
		return nil, fail(StepTestResponse, kindOf(err), err)
	}
	resp, err := UnmarshalTestResponse(pt)
	if err != nil {
		return nil, fail(StepTestResponse, KindMalformed, err)
	}
	if resp.Marker != TestResponseMarker || !bytes.Equal(resp.Fill, reversed(fill)) {
		return nil, fail(StepTestResponse, KindVerification, ErrVerification)
	}
	return &Result{SessionKey: sessionKey}, nil
}

// Client runs the client half: wrap a fresh session key under the server's
// public key, check the server's test message and answer it with the fill
// reversed.
func Client(ctx context.Context, conn FrameConn, cfg Config) (*Result, error) {
	log := cfg.Logger.With().Str("role", "client").Logger()

	frame, err := readFrame(ctx, conn, cfg.timeout())
	if err != nil {
		return nil, fail(StepPublicKey, kindOf(err), err)
	}
	pk, err := UnmarshalPublicKey(frame)
	if err != nil {
		return nil, fail(StepPublicKey, KindMalformed, err)
	}
	fp := crypto.Fingerprint(pk.PEM)

	sessionKey, err := crypto.NewSessionKey()
	if err != nil {
		return nil, fail(StepWrappedKey, KindInternal, err)
	}
	wrapped, err := crypto.WrapKey(pk.PEM, sessionKey)
	if err != nil {
		memzero.Zero(sessionKey)
		if errors.Is(err, crypto.ErrInvalidPublicKey) {
			return nil, fail(StepPublicKey, KindMalformed, err)
		}
		return nil, fail(StepWrappedKey, KindInternal, err)
	}
	log.Debug().Str("step", StepPublicKey.String()).Str("key_fp", fp.String()).Msg("received public key")

	if err := clientSelfTest(ctx, conn, cfg, sessionKey, wrapped); err != nil {
		memzero.Zero(sessionKey)
		return nil, err
	}
	log.Debug().Str("step", StepTestResponse.String()).Msg("self-test answered")
	return &Result{SessionKey: sessionKey, KeyFingerprint: fp}, nil
}

func clientSelfTest(ctx context.Context, conn FrameConn, cfg Config, sessionKey, wrapped []byte) error {
	msg, err := WrappedKeyMessage{EncSessionKey: wrapped}.Marshal()
	if err != nil {
		return fail(StepWrappedKey, KindMalformed, err)
	}
	if err := conn.WriteFrame(msg); err != nil {
		return fail(StepWrappedKey, KindClosed, err)
	}

	frame, err := readFrame(ctx, conn, cfg.timeout())
	if err != nil {
		return fail(StepTestMessage, kindOf(err), err)
	}
	pt, err := crypto.Open(sessionKey, frame)
	if err != nil {
		return fail(StepTestMessage, kindOf(err), err)
	}
	tm, err := UnmarshalTestMessage(pt)
	if err != nil {
		return fail(StepTestMessage, KindMalformed, err)
	}
	if tm.Marker != TestMarker || len(tm.Fill) == 0 {
		return fail(StepTestMessage, KindVerification, ErrVerification)
	}

	resp, err := TestResponse{Marker: TestResponseMarker, Fill: reversed(tm.Fill)}.Marshal()
	if err != nil {
		return fail(StepTestResponse, KindInternal, err)
	}
	blob, err := crypto.Seal(sessionKey, resp)
	if err != nil {
		return fail(StepTestResponse, KindInternal, err)
	}
	if err := conn.WriteFrame(blob); err != nil {
		return fail(StepTestResponse, KindClosed, err)
	}
	return nil
}

// readFrame reads one frame with the read deadline set to the earlier of
// now+timeout and ctx's deadline. Cancelling ctx unblocks the read.
func readFrame(ctx context.Context, conn FrameConn, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := framing.InterruptRead(ctx, conn)
	defer func() {
		stop()
		_ = conn.SetReadDeadline(time.Time{})
	}()

	frame, err := conn.ReadFrame()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return frame, err
}

func kindOf(err error) ErrKind {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &ne) && ne.Timeout():
		return KindTimeout
	case errors.Is(err, framing.ErrStreamClosed):
		return KindClosed
	case errors.Is(err, crypto.ErrAuthenticationFailed):
		return KindVerification
	default:
		return KindMalformed
	}
}
