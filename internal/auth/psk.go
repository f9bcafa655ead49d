package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"ciphersock/internal/crypto"
	"ciphersock/internal/domain"
)

const (
	// SecretBytes is the size of secrets produced by NewSecret.
	SecretBytes = 32
	// MinSecretBytes is the shortest secret New accepts.
	MinSecretBytes = 16

	challengeRandBytes = 32
)

var challengePrefix = []byte("CSCH")

// PassphraseSalt is the salt both ends pass to FromPassphrase when no other
// salt has been agreed.
var PassphraseSalt = []byte("ciphersock/psk/1")

var (
	// ErrWeakSecret is returned for secrets shorter than MinSecretBytes.
	ErrWeakSecret = errors.New("auth secret too short")
	// ErrBadChallenge is returned when a challenge is not well-formed.
	ErrBadChallenge = errors.New("malformed auth challenge")
	// ErrBadProof is returned when an answer does not match the challenge.
	ErrBadProof = errors.New("auth proof mismatch")
)

// PSKProvider authenticates peers that share a secret.
type PSKProvider struct {
	clientKey []byte
	serverKey []byte
}

// NewSecret returns a fresh random secret.
func NewSecret() ([]byte, error) {
	s := make([]byte, SecretBytes)
	if _, err := rand.Read(s); err != nil {
		return nil, err
	}
	return s, nil
}

// New derives a provider from secret.
func New(secret []byte) (*PSKProvider, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	clientKey, err := expand(secret, "ciphersock auth client")
	if err != nil {
		return nil, err
	}
	serverKey, err := expand(secret, "ciphersock auth server")
	if err != nil {
		return nil, err
	}
	return &PSKProvider{clientKey: clientKey, serverKey: serverKey}, nil
}

// FromPassphrase derives the secret from a shared passphrase with Argon2id.
// Both ends must use the same salt.
func FromPassphrase(passphrase string, salt []byte) (*PSKProvider, error) {
	if passphrase == "" {
		return nil, ErrWeakSecret
	}
	secret, err := crypto.DeriveKEK(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return New(secret)
}

// ChallengeMessage returns a fresh random challenge.
func (p *PSKProvider) ChallengeMessage() ([]byte, error) {
	ch := make([]byte, len(challengePrefix)+challengeRandBytes)
	copy(ch, challengePrefix)
	if _, err := rand.Read(ch[len(challengePrefix):]); err != nil {
		return nil, err
	}
	return ch, nil
}

// AuthMessage answers challenge on the client.
func (p *PSKProvider) AuthMessage(challenge []byte) ([]byte, error) {
	if err := checkChallenge(challenge); err != nil {
		return nil, err
	}
	return mac(p.clientKey, challenge), nil
}

// VerifyAuth checks a client's answer on the server.
func (p *PSKProvider) VerifyAuth(challenge, reply []byte) error {
	if err := checkChallenge(challenge); err != nil {
		return err
	}
	if !hmac.Equal(reply, mac(p.clientKey, challenge)) {
		return ErrBadProof
	}
	return nil
}

// AuthReplyMessage returns the server's proof for challenge.
func (p *PSKProvider) AuthReplyMessage(challenge []byte) ([]byte, error) {
	if err := checkChallenge(challenge); err != nil {
		return nil, err
	}
	return mac(p.serverKey, challenge), nil
}

func checkChallenge(ch []byte) error {
	if len(ch) != len(challengePrefix)+challengeRandBytes || !bytes.HasPrefix(ch, challengePrefix) {
		return ErrBadChallenge
	}
	return nil
}

func expand(secret []byte, info string) ([]byte, error) {
	out := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), out); err != nil {
		return nil, err
	}
	return out, nil
}

func mac(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

// Compile-time assertion that PSKProvider implements domain.AuthProvider.
var _ domain.AuthProvider = (*PSKProvider)(nil)
