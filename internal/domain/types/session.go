package types

import "time"

// State is the lifecycle position of a connection.
type State uint8

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateEncrypted
)

// String returns a lower-case name suitable for log fields.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateEncrypted:
		return "encrypted"
	default:
		return "unknown"
	}
}

// Connected reports whether a stream is open in this state.
func (s State) Connected() bool { return s != StateDisconnected }

// Encrypted reports whether application traffic is AEAD-wrapped in this state.
func (s State) Encrypted() bool { return s == StateEncrypted }

// PeerInfo is a read-only snapshot of one peer held by the listener. It never
// carries the stream or key material.
type PeerInfo struct {
	Addr      PeerAddr  `json:"addr"`
	State     State     `json:"state"`
	Encrypted bool      `json:"encrypted"`
	Connected bool      `json:"connected"`
	Since     time.Time `json:"since"`
}
