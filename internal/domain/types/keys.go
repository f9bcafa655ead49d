package types

// KeyData is the ephemeral per-peer key material.
//
// PublicPEM is the only field that may cross the wire in clear. The RSA pair
// is single-use and is wiped once SessionKey has been recovered; SessionKey
// lives until the connection closes.
type KeyData struct {
	PublicPEM  []byte
	PrivatePEM []byte
	SessionKey []byte
}

// HasSessionKey reports whether the handshake has produced a session key.
func (k *KeyData) HasSessionKey() bool { return k != nil && len(k.SessionKey) > 0 }
