package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"ciphersock/internal/domain"
)

const authSecretFilename = "auth_secret.json.enc"

// ErrNoAuthSecret is returned by LoadAuthSecret before one has been saved.
var ErrNoAuthSecret = errors.New("no auth secret saved")

// AuthSecretFileStore keeps the pre-shared auth secret sealed under a
// passphrase.
type AuthSecretFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewAuthSecretFileStore returns a store rooted at dir.
func NewAuthSecretFileStore(dir string) *AuthSecretFileStore {
	return &AuthSecretFileStore{dir: dir}
}

// Path is the sealed file's location.
func (s *AuthSecretFileStore) Path() string {
	return filepath.Join(s.dir, authSecretFilename)
}

// SaveAuthSecret seals secret and replaces any previous one.
func (s *AuthSecretFileStore) SaveAuthSecret(passphrase string, secret []byte) error {
	if passphrase == "" {
		return errors.New("empty passphrase")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	N, r, p := scryptParamsDefault()
	b, err := seal(passphrase, secret, N, r, p)
	if err != nil {
		return err
	}
	return writeFile(s.Path(), b, 0o600)
}

// LoadAuthSecret opens the sealed secret.
func (s *AuthSecretFileStore) LoadAuthSecret(passphrase string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.Path())
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoAuthSecret, s.dir)
	}
	return unseal(passphrase, b)
}

var _ domain.AuthSecretStore = (*AuthSecretFileStore)(nil)
