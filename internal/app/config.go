package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds runtime wiring options shared by both binaries.
type Config struct {
	Home string // state directory, e.g. $HOME/.ciphersock

	// Passphrase unseals the stored auth secret. PSKPassphrase derives the
	// auth secret directly and takes precedence. With neither set, peers are
	// not authenticated.
	Passphrase    string
	PSKPassphrase string

	LogLevel string // zerolog level name; empty means info
	LogJSON  bool   // JSON records instead of console output

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration

	// Registerer receives handshake metrics. Nil disables metrics.
	Registerer prometheus.Registerer
}

// DefaultHome returns ~/.ciphersock.
func DefaultHome() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".ciphersock"), nil
}

// ensureHome fills in Home and creates it with owner-only permissions.
func (c *Config) ensureHome() error {
	if c.Home == "" {
		h, err := DefaultHome()
		if err != nil {
			return err
		}
		c.Home = h
	}
	return os.MkdirAll(c.Home, 0o700)
}
