// Package crypto exposes the minimal primitives used by ciphersock.
//
// Contents
//
//   - ChaCha20-Poly1305 envelopes for session traffic (Seal, Open,
//     ParseEnvelope, NewSessionKey)
//   - Ephemeral RSA-2048 keypairs and OAEP key wrapping for the handshake
//     (GenerateKeyPair, WrapKey, UnwrapKey)
//   - Argon2id passphrase derivation (DeriveKEK)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Envelope layout
//
//	version:u8 | nonce_len:u8 | tag_len:u8 | nonce | tag | ciphertext
//
// Version is 1. Every Seal draws a fresh 12-byte nonce from crypto/rand.
//
// # Notes
//
// Open never returns partial plaintext: a tag mismatch yields only
// ErrAuthenticationFailed. Callers should wipe session keys with
// memzero.Zero once a connection ends.
package crypto
