package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// RSABits is the modulus size of every ephemeral handshake keypair.
const RSABits = 2048

const (
	pemPublicType  = "PUBLIC KEY"
	pemPrivateType = "PRIVATE KEY"
)

var oaepLabel = []byte("ciphersock-session-key")

var (
	// ErrInvalidPublicKey is returned when the peer's public key does not
	// parse as an RSA public key.
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrUnwrapFailed is returned when a wrapped session key cannot be
	// recovered.
	ErrUnwrapFailed = errors.New("session key unwrap failed")
)

// GenerateKeyPair returns a fresh RSA keypair as PKIX public and PKCS#8
// private PEM blocks. A keypair must serve one peer only.
func GenerateKeyPair() (pubPEM, privPEM []byte, err error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSABits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: pemPublicType, Bytes: pubDER})
	privPEM = pem.EncodeToMemory(&pem.Block{Type: pemPrivateType, Bytes: privDER})
	return pubPEM, privPEM, nil
}

// WrapKey encrypts sessionKey under the RSA public key in pubPEM using
// OAEP with SHA-256.
func WrapKey(pubPEM, sessionKey []byte) ([]byte, error) {
	pub, err := parsePublicKey(pubPEM)
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, sessionKey, oaepLabel)
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey recovers a session key wrapped by WrapKey.
func UnwrapKey(privPEM, wrapped []byte) ([]byte, error) {
	block, _ := pem.Decode(privPEM)
	if block == nil || block.Type != pemPrivateType {
		return nil, ErrUnwrapFailed
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrUnwrapFailed
	}
	sk, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrapped, oaepLabel)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return sk, nil
}

func parsePublicKey(pubPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pubPEM)
	if block == nil || block.Type != pemPublicType {
		return nil, ErrInvalidPublicKey
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok || pub.N.BitLen() < RSABits {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}
