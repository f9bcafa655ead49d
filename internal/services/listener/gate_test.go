package listener

import (
	"bytes"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciphersock/internal/domain"
)

func TestAllowList_Matches(t *testing.T) {
	a := parseAllowList([]string{"10.0.0.0/8", " 192.0.2.7 ", "", "2001:db8::/32", "gateway.local"})
	assert.Equal(t, []string{"gateway.local"}, a.hosts)

	cases := map[string]bool{
		"10.1.2.3":        true,
		"192.0.2.7":       true,
		"192.0.2.8":       false,
		"::ffff:10.9.9.9": true,
		"2001:db8::1":     true,
		"2001:db9::1":     false,
		"127.0.0.1":       false,
	}
	for ip, want := range cases {
		assert.Equal(t, want, a.allows(netip.MustParseAddr(ip)), ip)
	}
}

func TestAllowList_EmptyAllowsNothing(t *testing.T) {
	a := parseAllowList(nil)
	assert.False(t, a.allows(netip.MustParseAddr("127.0.0.1")))
}

func TestLockout_CountsPerHost(t *testing.T) {
	l := newLockout(3, time.Minute)
	assert.False(t, l.fail("192.0.2.1"))
	assert.False(t, l.fail("192.0.2.1"))
	assert.False(t, l.locked("192.0.2.1"))
	assert.True(t, l.fail("192.0.2.1"))
	assert.True(t, l.locked("192.0.2.1"))
	assert.False(t, l.locked("192.0.2.2"))

	l.clear("192.0.2.1")
	assert.False(t, l.locked("192.0.2.1"))
}

func TestLockout_NilIsDisabled(t *testing.T) {
	var l *lockout
	assert.False(t, l.fail("x"))
	assert.False(t, l.locked("x"))
	l.clear("x")
}

func TestHostOf(t *testing.T) {
	ip, ok := hostOf(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9})
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), ip)

	ip, ok = hostOf(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 9})
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("::1"), ip)

	_, ok = hostOf(&net.UnixAddr{Name: "/tmp/sock", Net: "unix"})
	assert.False(t, ok)
}

func TestPeer_WipeZeroesKeyMaterial(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	p := newPeer(a, 0)
	defer p.close()

	priv := []byte("private")
	key := bytes.Repeat([]byte{0xaa}, 32)
	p.keys.PublicPEM, p.keys.PrivatePEM = []byte("public"), priv
	p.encrypted(key)

	frame, ok, err := p.seal([]byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, frame)

	p.wipe()
	assert.Equal(t, make([]byte, 32), key)
	assert.Equal(t, make([]byte, len(priv)), priv)
	assert.Equal(t, domain.KeyData{}, p.keys)
	assert.Equal(t, domain.StateDisconnected, p.info().State)

	_, ok, err = p.seal([]byte("x"))
	assert.NoError(t, err)
	assert.False(t, ok)
}
