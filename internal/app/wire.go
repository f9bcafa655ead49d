package app

import (
	"github.com/rs/zerolog"

	"ciphersock/internal/auth"
	"ciphersock/internal/domain"
	"ciphersock/internal/metrics"
	"ciphersock/internal/services/listener"
	"ciphersock/internal/services/session"
	"ciphersock/internal/store"
)

// Wire bundles stores, metrics and logging for the commands.
type Wire struct {
	Config     Config
	Logger     zerolog.Logger
	AuthSecret domain.AuthSecretStore
	AllowList  domain.AllowListStore
	Metrics    *metrics.Handshake
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, logger zerolog.Logger) (*Wire, error) {
	if err := cfg.ensureHome(); err != nil {
		return nil, err
	}
	var m *metrics.Handshake
	if cfg.Registerer != nil {
		var err error
		if m, err = metrics.NewHandshake(cfg.Registerer); err != nil {
			return nil, err
		}
	}
	return &Wire{
		Config:     cfg,
		Logger:     logger,
		AuthSecret: store.NewAuthSecretFileStore(cfg.Home),
		AllowList:  store.NewAllowListFileStore(cfg.Home),
		Metrics:    m,
	}, nil
}

// AuthProvider returns the configured provider, or nil when authentication
// is off.
func (w *Wire) AuthProvider() (domain.AuthProvider, error) {
	switch {
	case w.Config.PSKPassphrase != "":
		return auth.FromPassphrase(w.Config.PSKPassphrase, auth.PassphraseSalt)
	case w.Config.Passphrase != "":
		secret, err := w.AuthSecret.LoadAuthSecret(w.Config.Passphrase)
		if err != nil {
			return nil, err
		}
		return auth.New(secret)
	default:
		return nil, nil
	}
}

// SessionOptions prepares a client session for addr.
func (w *Wire) SessionOptions(addr string) (session.Options, error) {
	p, err := w.AuthProvider()
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		Addr:             addr,
		Auth:             p,
		DialTimeout:      w.Config.DialTimeout,
		HandshakeTimeout: w.Config.HandshakeTimeout,
		Logger:           &w.Logger,
		Metrics:          w.Metrics,
	}, nil
}

// ListenerOptions prepares a listener on addr. When verify is set the stored
// allow-list gates peers.
func (w *Wire) ListenerOptions(addr string, verify bool) (listener.Options, error) {
	p, err := w.AuthProvider()
	if err != nil {
		return listener.Options{}, err
	}
	opts := listener.Options{
		Addr:                addr,
		VerifySourceAddress: verify,
		Auth:                p,
		HandshakeTimeout:    w.Config.HandshakeTimeout,
		Logger:              &w.Logger,
		Metrics:             w.Metrics,
	}
	if verify {
		if opts.AllowList, err = w.AllowList.LoadAllowList(); err != nil {
			return listener.Options{}, err
		}
	}
	return opts, nil
}
