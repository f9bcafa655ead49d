package listener

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ciphersock/internal/crypto"
	"ciphersock/internal/domain"
	"ciphersock/internal/framing"
	"ciphersock/internal/util/memzero"
)

// peer is the listener's per-connection state. Only the peer's own goroutine
// changes state or keys; other goroutines read snapshots, seal replies and
// close the stream.
type peer struct {
	addr  domain.PeerAddr
	conn  *framing.Conn
	since time.Time

	closeOnce sync.Once

	mu    sync.Mutex
	state domain.State
	// keys.SessionKey is guarded by mu. The keypair fields are written only
	// by the handshake on the peer's own goroutine.
	keys domain.KeyData
}

func newPeer(raw net.Conn, maxFrame int) *peer {
	return &peer{
		addr:  domain.PeerAddr(raw.RemoteAddr().String()),
		conn:  framing.NewConn(raw, framing.WithMaxFrameSize(maxFrame)),
		since: time.Now(),
		state: domain.StateConnected,
	}
}

func (p *peer) log(base zerolog.Logger) zerolog.Logger {
	return base.With().Str("peer", p.addr.String()).Logger()
}

func (p *peer) setState(s domain.State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *peer) encrypted(key []byte) {
	p.mu.Lock()
	p.keys.SessionKey = key
	p.state = domain.StateEncrypted
	p.mu.Unlock()
}

// seal encrypts payload for this peer. ok is false until the handshake has
// completed and after the key is wiped.
func (p *peer) seal(payload []byte) (frame []byte, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != domain.StateEncrypted || !p.keys.HasSessionKey() {
		return nil, false, nil
	}
	frame, err = crypto.Seal(p.keys.SessionKey, payload)
	return frame, true, err
}

func (p *peer) open(frame []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.keys.HasSessionKey() {
		return nil, crypto.ErrInvalidKey
	}
	return crypto.Open(p.keys.SessionKey, frame)
}

// wipe discards key material and marks the peer gone.
func (p *peer) wipe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	memzero.All(p.keys.SessionKey, p.keys.PrivatePEM)
	p.keys = domain.KeyData{}
	p.state = domain.StateDisconnected
}

// close tears down the stream. Safe from any goroutine and more than once.
func (p *peer) close() {
	p.closeOnce.Do(func() {
		_ = p.conn.CloseWrite()
		_ = p.conn.Close()
	})
}

func (p *peer) info() domain.PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.PeerInfo{
		Addr:      p.addr,
		State:     p.state,
		Encrypted: p.state.Encrypted(),
		Connected: p.state.Connected(),
		Since:     p.since,
	}
}
