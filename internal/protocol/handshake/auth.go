package handshake

import (
	"context"
	"crypto/subtle"
	"errors"

	"ciphersock/internal/domain"
)

// ServerAuth challenges the client through p and, once the client's answer
// verifies, sends the server's own proof.
func ServerAuth(ctx context.Context, conn FrameConn, p domain.AuthProvider, cfg Config) error {
	challenge, err := p.ChallengeMessage()
	if err != nil {
		return fail(StepAuth, KindInternal, err)
	}
	if err := conn.WriteFrame(challenge); err != nil {
		return fail(StepAuth, KindClosed, err)
	}
	reply, err := readFrame(ctx, conn, cfg.timeout())
	if err != nil {
		return fail(StepAuth, kindOf(err), err)
	}
	if err := p.VerifyAuth(challenge, reply); err != nil {
		return fail(StepAuth, KindUnauthenticated, errors.Join(ErrUnauthenticated, err))
	}
	proof, err := p.AuthReplyMessage(challenge)
	if err != nil {
		return fail(StepAuth, KindInternal, err)
	}
	if err := conn.WriteFrame(proof); err != nil {
		return fail(StepAuth, KindClosed, err)
	}
	cfg.Logger.Debug().Str("role", "server").Str("step", StepAuth.String()).Msg("peer authenticated")
	return nil
}

// ClientAuth answers the server's challenge through p and checks the
// server's proof.
func ClientAuth(ctx context.Context, conn FrameConn, p domain.AuthProvider, cfg Config) error {
	challenge, err := readFrame(ctx, conn, cfg.timeout())
	if err != nil {
		return fail(StepAuth, kindOf(err), err)
	}
	answer, err := p.AuthMessage(challenge)
	if err != nil {
		return fail(StepAuth, KindMalformed, err)
	}
	if err := conn.WriteFrame(answer); err != nil {
		return fail(StepAuth, KindClosed, err)
	}
	proof, err := readFrame(ctx, conn, cfg.timeout())
	if err != nil {
		if kindOf(err) == KindClosed {
			// The server drops unauthenticated clients without a reply.
			return fail(StepAuth, KindUnauthenticated, errors.Join(ErrUnauthenticated, err))
		}
		return fail(StepAuth, kindOf(err), err)
	}
	want, err := p.AuthReplyMessage(challenge)
	if err != nil {
		return fail(StepAuth, KindInternal, err)
	}
	if subtle.ConstantTimeCompare(proof, want) != 1 {
		return fail(StepAuth, KindUnauthenticated, ErrUnauthenticated)
	}
	cfg.Logger.Debug().Str("role", "client").Str("step", StepAuth.String()).Msg("server authenticated")
	return nil
}
