// Package store provides file-based persistence for ciphersock's local state.
//
// Files live under the configured home directory and are replaced atomically
// through a temp file and rename. The pre-shared auth secret is sealed under
// a passphrase (scrypt + ChaCha20-Poly1305); the allow-list is plain JSON.
// Stores are safe for concurrent use within one process.
package store
