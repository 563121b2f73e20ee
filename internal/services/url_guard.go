package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"
)

var ErrUnsafeURL = errors.New("unsafe url")

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
}

// IsBlockedIP reports whether addr is loopback, private, link-local or
// otherwise not a public unicast address. IPv4-mapped IPv6 addresses are
// judged as the IPv4 address they carry.
func IsBlockedIP(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap().WithZone("")
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver is the subset of *net.Resolver the guard needs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLGuard decides whether a URL may be fetched server side.
type URLGuard struct {
	resolver Resolver
}

// NewURLGuard returns a guard using r, or the system resolver when r is nil.
func NewURLGuard(r Resolver) *URLGuard {
	if r == nil {
		r = net.DefaultResolver
	}
	return &URLGuard{resolver: r}
}

// Check parses raw and accepts it only if it is http(s) and every address its
// host resolves to is public.
func (g *URLGuard) Check(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q is not allowed", ErrUnsafeURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrUnsafeURL)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials in url", ErrUnsafeURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlockedIP(addr) {
			return nil, fmt.Errorf("%w: %s is not a public address", ErrUnsafeURL, host)
		}
		return u, nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrUnsafeURL, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s has no addresses", ErrUnsafeURL, host)
	}
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok || IsBlockedIP(addr) {
			return nil, fmt.Errorf("%w: %s resolves to non-public address %s", ErrUnsafeURL, host, a.IP)
		}
	}
	return u, nil
}

// CheckRedirect re-validates every redirect hop and stops after max hops.
func (g *URLGuard) CheckRedirect(max int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return fmt.Errorf("stopped after %d redirects", max)
		}
		_, err := g.Check(req.Context(), req.URL.String())
		return err
	}
}

// Client returns an HTTP client that re-checks redirects and refuses to dial
// non-public addresses, which also covers DNS answers that change between
// Check and the connection.
func (g *URLGuard) Client(timeout time.Duration, maxRedirects int) *http.Client {
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: dialControl,
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: g.CheckRedirect(maxRedirects),
	}
}

func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || IsBlockedIP(addr) {
		return fmt.Errorf("%w: refusing to dial %s", ErrUnsafeURL, host)
	}
	return nil
}
