package listener

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	lrucache "github.com/cognusion/go-cache-lru"
	"github.com/rs/zerolog"
)

const lockoutCacheSize = 4096

// allowList matches peer addresses against literal IPs, CIDR prefixes and
// host names resolved when the listener starts.
type allowList struct {
	prefixes []netip.Prefix
	hosts    []string
}

func parseAllowList(entries []string) allowList {
	var a allowList
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			a.prefixes = append(a.prefixes, p.Masked())
			continue
		}
		if ip, err := netip.ParseAddr(e); err == nil {
			ip = ip.Unmap()
			a.prefixes = append(a.prefixes, netip.PrefixFrom(ip, ip.BitLen()))
			continue
		}
		a.hosts = append(a.hosts, e)
	}
	return a
}

// resolve turns host names into single-address prefixes. Names that fail to
// resolve are logged and skipped.
func (a *allowList) resolve(ctx context.Context, r *net.Resolver, log zerolog.Logger) {
	for _, h := range a.hosts {
		ips, err := r.LookupNetIP(ctx, "ip", h)
		if err != nil {
			log.Warn().Err(err).Str("host", h).Msg("allow-list host did not resolve")
			continue
		}
		for _, ip := range ips {
			ip = ip.Unmap()
			a.prefixes = append(a.prefixes, netip.PrefixFrom(ip, ip.BitLen()))
		}
	}
	a.hosts = nil
}

func (a allowList) allows(ip netip.Addr) bool {
	ip = ip.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// lockout counts authentication failures per source host and refuses hosts
// that reach the limit until their entry expires.
type lockout struct {
	mu    sync.Mutex
	limit int
	cache *lrucache.Cache
}

func newLockout(limit int, ttl time.Duration) *lockout {
	return &lockout{
		limit: limit,
		cache: lrucache.NewWithLRU(ttl, time.Minute, lockoutCacheSize),
	}
}

func (l *lockout) locked(host string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.cache.Get(host)
	return ok && v.(int) >= l.limit
}

// fail records one failure and reports whether host is now locked out.
func (l *lockout) fail(host string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 1
	if v, ok := l.cache.Get(host); ok {
		n = v.(int) + 1
	}
	l.cache.Set(host, n, lrucache.DefaultExpiration)
	return n >= l.limit
}

func (l *lockout) clear(host string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.cache.Delete(host)
	l.mu.Unlock()
}

// hostOf extracts the IP of a TCP remote address.
func hostOf(addr net.Addr) (netip.Addr, bool) {
	if ta, ok := addr.(*net.TCPAddr); ok {
		ip, ok := netip.AddrFromSlice(ta.IP)
		return ip.Unmap(), ok
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.Addr{}, false
	}
	return ap.Addr().Unmap(), true
}
