package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marusama/semaphore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ciphersock/internal/domain"
	"ciphersock/internal/framing"
	"ciphersock/internal/metrics"
	"ciphersock/internal/protocol/handshake"
)

const (
	DefaultRejectDelay             = 3 * time.Second
	DefaultMaxConcurrentHandshakes = 64
	DefaultMaxAuthFailures         = 5
	DefaultLockoutTTL              = 10 * time.Minute
	DefaultQueueSize               = 1024
)

var (
	// ErrClosed is returned once the listener has been closed.
	ErrClosed = errors.New("listener closed")
	// ErrUnknownPeer is returned for an address not in the registry.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrPeerNotReady is returned when replying to a peer whose handshake has
	// not finished.
	ErrPeerNotReady = errors.New("peer handshake not complete")
)

// Options configures a Listener. Zero values select the defaults.
type Options struct {
	// Addr is the host:port to bind in Start.
	Addr string

	// VerifySourceAddress enables the allow-list gate.
	VerifySourceAddress bool
	// AllowList holds IPs, CIDR prefixes or host names.
	AllowList []string
	// RejectDelay is slept before closing a refused peer.
	RejectDelay time.Duration

	// Auth, when set, runs the challenge/response exchange before the key
	// exchange.
	Auth             domain.AuthProvider
	HandshakeTimeout time.Duration
	// MaxConcurrentHandshakes bounds key exchanges in flight.
	MaxConcurrentHandshakes int
	// MaxAuthFailures from one host locks it out for LockoutTTL. Negative
	// disables the lockout.
	MaxAuthFailures int
	LockoutTTL      time.Duration

	// QueueSize is the inbound queue capacity. A full queue pauses peer
	// read loops until the consumer catches up.
	QueueSize    int
	MaxFrameSize int

	Logger  *zerolog.Logger
	Metrics *metrics.Handshake
}

func (o *Options) setDefaults() {
	if o.RejectDelay < 0 {
		o.RejectDelay = 0
	} else if o.RejectDelay == 0 {
		o.RejectDelay = DefaultRejectDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = handshake.DefaultTimeout
	}
	if o.MaxConcurrentHandshakes <= 0 {
		o.MaxConcurrentHandshakes = DefaultMaxConcurrentHandshakes
	}
	if o.MaxAuthFailures == 0 {
		o.MaxAuthFailures = DefaultMaxAuthFailures
	}
	if o.LockoutTTL <= 0 {
		o.LockoutTTL = DefaultLockoutTTL
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = &log.Logger
	}
}

// Listener accepts peers and multiplexes their inbound messages.
type Listener struct {
	opts    Options
	log     zerolog.Logger
	allow   allowList
	lockout *lockout
	hsSem   semaphore.Semaphore
	queue   chan domain.Message
	done    chan struct{}

	mu     sync.Mutex
	ln     net.Listener
	peers  map[domain.PeerAddr]*peer
	closed bool

	wg sync.WaitGroup
}

// New returns an unstarted Listener.
func New(opts Options) *Listener {
	opts.setDefaults()
	l := &Listener{
		opts:  opts,
		log:   opts.Logger.With().Str("component", "listener").Logger(),
		allow: parseAllowList(opts.AllowList),
		hsSem: semaphore.New(opts.MaxConcurrentHandshakes),
		queue: make(chan domain.Message, opts.QueueSize),
		done:  make(chan struct{}),
		peers: make(map[domain.PeerAddr]*peer),
	}
	if opts.Auth != nil && opts.MaxAuthFailures > 0 {
		l.lockout = newLockout(opts.MaxAuthFailures, opts.LockoutTTL)
	}
	return l
}

// Start binds Options.Addr and runs the accept loop in the background.
func (l *Listener) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.opts.Addr, err)
	}
	if err := l.bind(ctx, ln); err != nil {
		_ = ln.Close()
		return err
	}
	go func() {
		defer l.wg.Done()
		if err := l.acceptLoop(ctx, ln); err != nil {
			l.log.Error().Err(err).Msg("accept loop stopped")
		}
	}()
	return nil
}

// Serve runs the accept loop on ln until Close is called, ctx is cancelled
// or Accept fails. It returns nil after Close.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	if err := l.bind(ctx, ln); err != nil {
		return err
	}
	defer l.wg.Done()
	return l.acceptLoop(ctx, ln)
}

// bind records ln and registers the accept loop with the wait group.
func (l *Listener) bind(ctx context.Context, ln net.Listener) error {
	if l.opts.VerifySourceAddress {
		l.allow.resolve(ctx, net.DefaultResolver, l.log)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.ln != nil {
		return errors.New("listener already serving")
	}
	l.ln = ln
	l.wg.Add(1)
	l.log.Info().Str("addr", ln.Addr().String()).
		Bool("verify_source", l.opts.VerifySourceAddress).
		Bool("auth", l.opts.Auth != nil).
		Msg("listening")
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		p := newPeer(raw, l.opts.MaxFrameSize)

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = raw.Close()
			return nil
		}
		if old, ok := l.peers[p.addr]; ok {
			old.close()
		}
		l.peers[p.addr] = p
		l.wg.Add(1)
		l.mu.Unlock()
		l.opts.Metrics.PeerAdded()

		go l.handle(ctx, p)
	}
}

// Addr returns the bound address, or nil before Start/Serve.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Close stops accepting, closes every peer and waits for their goroutines.
// Queued messages are discarded.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	ln := l.ln
	peers := make([]*peer, 0, len(l.peers))
	for _, p := range l.peers {
		peers = append(peers, p)
	}
	l.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	for _, p := range peers {
		p.close()
	}
	l.wg.Wait()
	l.log.Info().Msg("listener closed")
	return err
}

// ReceiveMessage returns the oldest queued inbound message, blocking until
// one arrives, ctx is done or the listener is closed.
func (l *Listener) ReceiveMessage(ctx context.Context) (domain.Message, error) {
	select {
	case m := <-l.queue:
		return m, nil
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case <-l.done:
		return domain.Message{}, ErrClosed
	}
}

// SendReply seals payload under the peer's session key and writes it.
func (l *Listener) SendReply(addr domain.PeerAddr, payload []byte) error {
	p, ok := l.lookup(addr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	frame, ok, err := p.seal(payload)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotReady, addr)
	}
	if err != nil {
		return err
	}
	if err := p.conn.WriteFrame(frame); err != nil {
		plog := p.log(l.log)
		plog.Warn().Err(err).Msg("reply failed, closing")
		p.close()
		return err
	}
	return nil
}

// Peer returns a snapshot of one registered peer.
func (l *Listener) Peer(addr domain.PeerAddr) (domain.PeerInfo, bool) {
	p, ok := l.lookup(addr)
	if !ok {
		return domain.PeerInfo{}, false
	}
	return p.info(), true
}

// Peers returns snapshots of every registered peer.
func (l *Listener) Peers() []domain.PeerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.PeerInfo, 0, len(l.peers))
	for _, p := range l.peers {
		out = append(out, p.info())
	}
	return out
}

// Disconnect closes one peer. Its goroutine removes it from the registry.
func (l *Listener) Disconnect(addr domain.PeerAddr) error {
	p, ok := l.lookup(addr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	p.close()
	return nil
}

func (l *Listener) lookup(addr domain.PeerAddr) (*peer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peers[addr]
	return p, ok
}

func (l *Listener) remove(p *peer) {
	l.mu.Lock()
	if l.peers[p.addr] == p {
		delete(l.peers, p.addr)
	}
	l.mu.Unlock()
	l.opts.Metrics.PeerRemoved()
}

// handle owns p for its whole life. Every exit closes the stream, wipes the
// key and drops the registry entry.
func (l *Listener) handle(ctx context.Context, p *peer) {
	defer l.wg.Done()
	defer l.remove(p)
	defer p.wipe()
	defer p.close()

	plog := p.log(l.log)
	plog.Debug().Msg("accepted")

	if !l.admit(ctx, p, plog) {
		return
	}
	if err := l.establish(ctx, p, plog); err != nil {
		plog.Warn().Err(err).
			Str("step", handshake.StepOf(err).String()).
			Str("kind", handshake.KindOf(err).String()).
			Msg("handshake failed, closing")
		return
	}
	plog.Info().Msg("peer encrypted")
	l.readLoop(p, plog)
}

// admit applies the allow-list and the auth lockout.
func (l *Listener) admit(ctx context.Context, p *peer, plog zerolog.Logger) bool {
	ip, ok := hostOf(p.conn.RemoteAddr())
	if l.opts.VerifySourceAddress && (!ok || !l.allow.allows(ip)) {
		plog.Warn().Msg("source address not allowed")
		l.opts.Metrics.Reject("allowlist")
		l.delayReject(ctx)
		return false
	}
	if ok && l.lockout.locked(ip.String()) {
		plog.Warn().Msg("source locked out after repeated auth failures")
		l.opts.Metrics.Reject("lockout")
		l.delayReject(ctx)
		return false
	}
	return true
}

func (l *Listener) delayReject(ctx context.Context) {
	if l.opts.RejectDelay <= 0 {
		return
	}
	t := time.NewTimer(l.opts.RejectDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-l.done:
	}
}

// establish runs auth and the server handshake, then installs the key.
func (l *Listener) establish(ctx context.Context, p *peer, plog zerolog.Logger) error {
	cfg := handshake.Config{Timeout: l.opts.HandshakeTimeout, Logger: plog}
	started := time.Now()
	res, err := l.serverHandshake(ctx, p, cfg)
	l.opts.Metrics.ObserveHandshake("server", started, err,
		handshake.StepOf(err).String(), handshake.KindOf(err).String())
	if err != nil {
		return err
	}
	p.encrypted(res.SessionKey)
	return nil
}

func (l *Listener) serverHandshake(ctx context.Context, p *peer, cfg handshake.Config) (*handshake.Result, error) {
	if l.opts.Auth != nil {
		err := handshake.ServerAuth(ctx, p.conn, l.opts.Auth, cfg)
		ip, ok := hostOf(p.conn.RemoteAddr())
		switch {
		case err == nil:
			if ok {
				l.lockout.clear(ip.String())
			}
			p.setState(domain.StateAuthenticated)
		case handshake.IsKind(err, handshake.KindUnauthenticated):
			if ok && l.lockout.fail(ip.String()) {
				plog := p.log(l.log)
				plog.Warn().Str("host", ip.String()).Msg("auth failure limit reached")
			}
			return nil, err
		default:
			return nil, err
		}
	}

	if err := l.hsSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.hsSem.Release(1)
	return handshake.ServerWithKeys(ctx, p.conn, cfg, &p.keys)
}

// readLoop decrypts frames into the queue until the stream ends or a frame
// fails to open.
func (l *Listener) readLoop(p *peer, plog zerolog.Logger) {
	for {
		frame, err := p.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, framing.ErrStreamClosed) {
				plog.Debug().Msg("peer disconnected")
			} else {
				plog.Warn().Err(err).Msg("read failed")
			}
			return
		}
		pt, err := p.open(frame)
		if err != nil {
			plog.Warn().Err(err).Msg("undecryptable frame, closing")
			return
		}
		msg := domain.Message{Peer: p.addr, Payload: pt, Received: time.Now()}
		select {
		case l.queue <- msg:
		case <-l.done:
			return
		}
	}
}
