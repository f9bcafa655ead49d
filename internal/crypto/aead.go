package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// SessionKeyBytes is the symmetric session key size mandated by the AEAD.
	SessionKeyBytes = chacha20poly1305.KeySize
	// NonceBytes is the per-envelope nonce size.
	NonceBytes = chacha20poly1305.NonceSize
	// TagBytes is the Poly1305 authentication tag size.
	TagBytes = chacha20poly1305.Overhead

	envelopeVersion    = 1
	envelopeHeaderSize = 3 // version, nonce length, tag length
)

var (
	// ErrAuthenticationFailed is returned when an envelope does not verify under
	// the given key. It deliberately carries no detail about the cause.
	ErrAuthenticationFailed = errors.New("message authentication failed")
	// ErrMalformedEnvelope is returned when a blob cannot be split into
	// nonce, tag and ciphertext.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrInvalidKey is returned for keys of the wrong size.
	ErrInvalidKey = errors.New("invalid session key size")
)

// Envelope is the parsed form of one sealed unit.
type Envelope struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// Marshal encodes e as
//
//	version:u8 | nonce_len:u8 | tag_len:u8 | nonce | tag | ciphertext
func (e Envelope) Marshal() []byte {
	out := make([]byte, 0, envelopeHeaderSize+len(e.Nonce)+len(e.Tag)+len(e.Ciphertext))
	out = append(out, envelopeVersion, byte(len(e.Nonce)), byte(len(e.Tag)))
	out = append(out, e.Nonce...)
	out = append(out, e.Tag...)
	return append(out, e.Ciphertext...)
}

// ParseEnvelope splits blob into its fields. The returned slices alias blob.
func ParseEnvelope(blob []byte) (Envelope, error) {
	if len(blob) < envelopeHeaderSize {
		return Envelope{}, ErrMalformedEnvelope
	}
	if blob[0] != envelopeVersion {
		return Envelope{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedEnvelope, blob[0])
	}
	nlen, tlen := int(blob[1]), int(blob[2])
	if nlen != NonceBytes || tlen != TagBytes {
		return Envelope{}, fmt.Errorf("%w: field sizes %d/%d", ErrMalformedEnvelope, nlen, tlen)
	}
	rest := blob[envelopeHeaderSize:]
	if len(rest) < nlen+tlen {
		return Envelope{}, ErrMalformedEnvelope
	}
	return Envelope{
		Nonce:      rest[:nlen],
		Tag:        rest[nlen : nlen+tlen],
		Ciphertext: rest[nlen+tlen:],
	}, nil
}

// NewSessionKey returns a fresh random session key.
func NewSessionKey() ([]byte, error) {
	key := make([]byte, SessionKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts and authenticates plaintext under key with a fresh random
// nonce and returns the marshalled envelope.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagBytes
	return Envelope{
		Nonce:      nonce,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}.Marshal(), nil
}

// Open parses blob, verifies its tag and returns the plaintext. Nothing is
// returned unless the tag verifies.
func Open(key, blob []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	env, err := ParseEnvelope(blob)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)
	pt, err := aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if pt == nil {
		pt = []byte{}
	}
	return pt, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != SessionKeyBytes {
		return nil, ErrInvalidKey
	}
	return chacha20poly1305.New(key)
}
