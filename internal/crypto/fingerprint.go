package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"

	"ciphersock/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// PEM input is reduced to its DER body first so the fingerprint does not
// depend on line wrapping. It hashes with SHA-256 and truncates to 10 bytes
// (20 hex chars).
func Fingerprint(pub []byte) domain.Fingerprint {
	if block, _ := pem.Decode(pub); block != nil {
		pub = block.Bytes
	}
	sum := sha256.Sum256(pub)
	return domain.Fingerprint(hex.EncodeToString(sum[:10]))
}
