// Package auth provides a pre-shared-key implementation of
// domain.AuthProvider.
//
// Both ends hold the same secret, either loaded from the passphrase-sealed
// keystore (store.AuthSecretFileStore) or derived from a shared passphrase
// with Argon2id. Two independent HMAC keys are expanded from it with HKDF,
// one per direction, so a server proof can never be replayed as a client
// answer.
//
// Exchange
//
//	server -> client  challenge = "CSCH" || 32 random bytes
//	client -> server  HMAC-SHA256(clientKey, challenge)
//	server -> client  HMAC-SHA256(serverKey, challenge)
package auth
