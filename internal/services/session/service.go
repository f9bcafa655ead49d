package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ciphersock/internal/crypto"
	"ciphersock/internal/domain"
	"ciphersock/internal/framing"
	"ciphersock/internal/metrics"
	"ciphersock/internal/protocol/handshake"
	"ciphersock/internal/util/memzero"
)

const (
	DefaultAttempts    = 3
	DefaultBackoff     = time.Second
	DefaultDialTimeout = 5 * time.Second
)

// ErrNotConnected is returned by operations that need an established
// connection, and wraps every Connect failure.
var ErrNotConnected = errors.New("session not connected")

// DialFunc opens the raw transport connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options configures a Session. Zero values select the defaults.
type Options struct {
	// Addr is the server's host:port.
	Addr string
	// Auth, when set, runs the challenge/response exchange before the key
	// exchange.
	Auth domain.AuthProvider

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	// Attempts bounds dial attempts. Attempt n waits (n-1)*Backoff first.
	Attempts int
	Backoff  time.Duration

	MaxFrameSize int
	Logger       *zerolog.Logger
	Metrics      *metrics.Handshake
	// Dial overrides the dialer, mainly for tests.
	Dial DialFunc
}

func (o *Options) setDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = handshake.DefaultTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	} else if o.Backoff == 0 {
		o.Backoff = DefaultBackoff
	}
	if o.Logger == nil {
		o.Logger = &log.Logger
	}
	if o.Dial == nil {
		var d net.Dialer
		o.Dial = d.DialContext
	}
}

// Session is one client connection. All methods are safe for concurrent use;
// request/reply exchanges are serialised so a reply is never handed to the
// wrong caller.
type Session struct {
	opts Options
	log  zerolog.Logger

	xmu sync.Mutex // one exchange at a time

	mu      sync.Mutex
	conn    *framing.Conn
	key     []byte
	state   domain.State
	serverK domain.Fingerprint
}

// New returns a disconnected Session.
func New(opts Options) *Session {
	opts.setDefaults()
	return &Session{
		opts:  opts,
		log:   opts.Logger.With().Str("component", "session").Str("peer", opts.Addr).Logger(),
		state: domain.StateDisconnected,
	}
}

// Run connects, calls fn, and disconnects whatever fn returns.
func Run(ctx context.Context, opts Options, fn func(*Session) error) (err error) {
	s := New(opts)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if derr := s.Disconnect(); derr != nil && err == nil {
			err = derr
		}
	}()
	return fn(s)
}

// Connect dials the server and completes the handshake. Calling it on a
// connected session is a no-op. On failure the session is left disconnected
// and the error wraps ErrNotConnected.
func (s *Session) Connect(ctx context.Context) error {
	s.xmu.Lock()
	defer s.xmu.Unlock()

	s.mu.Lock()
	connected := s.conn != nil
	s.mu.Unlock()
	if connected {
		return nil
	}

	raw, err := s.dial(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("attempts", s.opts.Attempts).Msg("connect failed")
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	conn := framing.NewConn(raw, framing.WithMaxFrameSize(s.opts.MaxFrameSize))
	s.setState(conn, nil, domain.StateConnected)
	s.log.Debug().Str("local", raw.LocalAddr().String()).Msg("connected")

	started := time.Now()
	res, err := s.handshake(ctx, conn)
	s.opts.Metrics.ObserveHandshake("client", started, err,
		handshake.StepOf(err).String(), handshake.KindOf(err).String())
	if err != nil {
		s.log.Error().Err(err).
			Str("step", handshake.StepOf(err).String()).
			Str("kind", handshake.KindOf(err).String()).
			Msg("handshake failed")
		_ = s.Disconnect()
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	s.mu.Lock()
	s.key = res.SessionKey
	s.serverK = res.KeyFingerprint
	s.state = domain.StateEncrypted
	s.mu.Unlock()
	s.log.Info().Str("key_fp", res.KeyFingerprint.String()).Msg("session encrypted")
	return nil
}

func (s *Session) handshake(ctx context.Context, conn *framing.Conn) (*handshake.Result, error) {
	cfg := handshake.Config{Timeout: s.opts.HandshakeTimeout, Logger: s.log}
	if s.opts.Auth != nil {
		if err := handshake.ClientAuth(ctx, conn, s.opts.Auth, cfg); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.state = domain.StateAuthenticated
		s.mu.Unlock()
	}
	return handshake.Client(ctx, conn, cfg)
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < s.opts.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*s.opts.Backoff); err != nil {
				return nil, err
			}
		}
		dctx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
		conn, err := s.opts.Dial(dctx, "tcp", s.opts.Addr)
		cancel()
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("dial failed, retrying")
	}
	return nil, fmt.Errorf("gave up after %d attempts: %w", s.opts.Attempts, lastErr)
}

// retryable reports whether a dial error is transient: a timeout or a refused
// connection.
func retryable(err error) bool {
	var ne net.Error
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send writes payload, sealed under the session key, and optionally waits for
// the reply.
func (s *Session) Send(ctx context.Context, payload []byte, expectReply bool) ([]byte, error) {
	s.xmu.Lock()
	defer s.xmu.Unlock()

	conn, frame, err := s.seal(payload)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteFrame(frame); err != nil {
		s.lost(err)
		return nil, err
	}
	if !expectReply {
		return nil, nil
	}
	return s.receive(ctx, conn)
}

// Receive waits for the next frame from the server.
func (s *Session) Receive(ctx context.Context) ([]byte, error) {
	s.xmu.Lock()
	defer s.xmu.Unlock()

	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return s.receive(ctx, conn)
}

func (s *Session) receive(ctx context.Context, conn *framing.Conn) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := framing.InterruptRead(ctx, conn)
	frame, err := conn.ReadFrame()
	stop()
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.lost(err)
		return nil, err
	}
	pt, err := s.open(frame)
	if errors.Is(err, ErrNotConnected) {
		return nil, err
	}
	if err != nil {
		s.log.Error().Err(err).Msg("undecryptable frame, closing")
		_ = s.Disconnect()
		return nil, err
	}
	return pt, nil
}

// Disconnect half-closes then closes the stream and wipes the session key.
// It is safe to call more than once.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	memzero.Zero(s.key)
	s.conn, s.key = nil, nil
	s.state = domain.StateDisconnected
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.CloseWrite(); err != nil {
		s.log.Debug().Err(err).Msg("half-close failed")
	}
	err := conn.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	s.log.Debug().Msg("disconnected")
	return err
}

// Close implements io.Closer.
func (s *Session) Close() error { return s.Disconnect() }

// State returns the current lifecycle state.
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connected() bool { return s.State().Connected() }
func (s *Session) Encrypted() bool { return s.State().Encrypted() }

// ServerKey is the fingerprint of the server's ephemeral key for this
// connection, empty when disconnected.
func (s *Session) ServerKey() domain.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.serverK
}

// LocalAddr returns the local end of the connection, or nil.
func (s *Session) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Session) current() (*framing.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.key == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// seal and open use the key under mu so Disconnect cannot wipe it mid-use.
func (s *Session) seal(payload []byte) (*framing.Conn, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.key == nil {
		return nil, nil, ErrNotConnected
	}
	frame, err := crypto.Seal(s.key, payload)
	return s.conn, frame, err
}

func (s *Session) open(frame []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrNotConnected
	}
	return crypto.Open(s.key, frame)
}

func (s *Session) setState(conn *framing.Conn, key []byte, st domain.State) {
	s.mu.Lock()
	s.conn, s.key, s.state = conn, key, st
	s.mu.Unlock()
}

// lost tears the session down after a transport failure.
func (s *Session) lost(err error) {
	s.log.Warn().Err(err).Msg("connection lost")
	_ = s.Disconnect()
}
