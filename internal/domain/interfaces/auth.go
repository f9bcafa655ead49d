package interfaces

// AuthProvider runs the optional challenge/response exchange that precedes the
// key exchange. Implementations must be safe for concurrent use: the listener
// shares one provider across every peer goroutine, so all per-connection state
// travels through the challenge argument.
type AuthProvider interface {
	// ChallengeMessage returns a fresh server challenge.
	ChallengeMessage() ([]byte, error)
	// AuthMessage returns the client's answer to challenge.
	AuthMessage(challenge []byte) ([]byte, error)
	// VerifyAuth checks the client's answer on the server.
	VerifyAuth(challenge, reply []byte) error
	// AuthReplyMessage returns the server's proof for challenge, checked by the
	// client before it continues.
	AuthReplyMessage(challenge []byte) ([]byte, error)
}
