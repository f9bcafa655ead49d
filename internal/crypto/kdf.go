package crypto

import (
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	// KeyBytes is the size of keys derived from passphrases.
	KeyBytes = 32
	// SaltBytes is the required salt size for DeriveKEK.
	SaltBytes = 16
)

// ErrInvalidSalt is returned when a salt of the wrong size is supplied.
var ErrInvalidSalt = errors.New("invalid salt size")

// DeriveKEK derives a key from a passphrase and salt using Argon2id.
func DeriveKEK(passphrase string, salt []byte) ([]byte, error) {
	if len(salt) != SaltBytes {
		return nil, ErrInvalidSalt
	}
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, KeyBytes), nil
}
