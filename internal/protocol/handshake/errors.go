package handshake

import (
	"errors"
	"fmt"
)

// Step names the handshake stage at which a failure happened.
type Step uint8

const (
	StepAuth Step = iota + 1
	StepPublicKey
	StepWrappedKey
	StepTestMessage
	StepTestResponse
)

func (s Step) String() string {
	switch s {
	case StepAuth:
		return "auth"
	case StepPublicKey:
		return "public_key"
	case StepWrappedKey:
		return "wrapped_key"
	case StepTestMessage:
		return "test_message"
	case StepTestResponse:
		return "test_response"
	default:
		return "unknown"
	}
}

// ErrKind categorises handshake failures so callers can decide how to react
// and which metric to bump.
type ErrKind uint8

const (
	KindTimeout ErrKind = iota + 1
	KindClosed
	KindMalformed
	KindVerification
	KindUnauthenticated
	KindInternal
)

func (k ErrKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	case KindMalformed:
		return "malformed"
	case KindVerification:
		return "verification"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var (
	// ErrVerification is returned when the encryption self-test does not match.
	ErrVerification = errors.New("encryption self-test mismatch")
	// ErrUnauthenticated is returned when the auth exchange fails.
	ErrUnauthenticated = errors.New("peer not authenticated")
)

// Error is a handshake failure tagged with step and kind.
type Error struct {
	Step  Step
	Kind  ErrKind
	Inner error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Inner == nil {
		return fmt.Sprintf("handshake %s: %s", e.Step, e.Kind)
	}
	return fmt.Sprintf("handshake %s: %s: %v", e.Step, e.Kind, e.Inner)
}

func (e *Error) Unwrap() error { return e.Inner }

func fail(step Step, kind ErrKind, inner error) *Error {
	return &Error{Step: step, Kind: kind, Inner: inner}
}

// IsKind reports whether err is a handshake Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind == kind
	}
	return false
}

// StepOf returns the step recorded in err, or 0 if err is not a handshake
// Error.
func StepOf(err error) Step {
	var he *Error
	if errors.As(err, &he) {
		return he.Step
	}
	return 0
}

// KindOf returns the kind recorded in err, or 0 if err is not a handshake
// Error.
func KindOf(err error) ErrKind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return 0
}
