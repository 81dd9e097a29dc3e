// Package urlsafety decides whether a URL may be contacted from this service.
// A URL passes only when its host resolves to a globally routable unicast address.
package urlsafety

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

var (
	ErrInvalidURL    = errors.New("invalid URL")
	ErrUnsafeAddress = errors.New("unsafe address")
	ErrResolve       = errors.New("DNS resolution failed")
)

// DefaultDNSTimeout bounds a single hostname lookup.
const DefaultDNSTimeout = 5 * time.Second

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Target is the address a validated URL must be fetched from.
// Hostname is empty when the URL carries an IP literal.
type Target struct {
	Hostname string
	Port     int
	IP       netip.Addr
}

// Addr returns the pinned ip:port dial address.
func (t Target) Addr() string {
	return netip.AddrPortFrom(t.IP, uint16(t.Port)).String()
}

// Validator resolves and classifies URL hosts.
type Validator struct {
	Resolver   Resolver
	DNSTimeout time.Duration
}

// NewValidator returns a Validator backed by the system resolver.
func NewValidator(dnsTimeout time.Duration) *Validator {
	return &Validator{Resolver: net.DefaultResolver, DNSTimeout: dnsTimeout}
}

// Validate parses rawURL, resolves its host to exactly one address and rejects the
// URL unless that address is publicly routable. The returned Target must be used
// for the connection; callers must not resolve the host again.
func (v *Validator) Validate(ctx context.Context, rawURL string) (Target, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := parsed.Hostname()
	if parsed.Host == "" || host == "" {
		return Target{}, fmt.Errorf("%w: URL must include a host: %s", ErrInvalidURL, rawURL)
	}

	port, err := effectivePort(parsed)
	if err != nil {
		return Target{}, err
	}

	var (
		hostname string
		ip       netip.Addr
	)
	if literal, ok := parseIPLiteral(host); ok {
		ip = literal
	} else {
		hostname, err = idna.Lookup.ToASCII(strings.ToLower(host))
		if err != nil {
			return Target{}, fmt.Errorf("%w: invalid hostname %q: %v", ErrInvalidURL, host, err)
		}
		ip, err = v.resolve(ctx, hostname)
		if err != nil {
			return Target{}, err
		}
	}

	if reason := Classify(ip); reason != "" {
		return Target{}, fmt.Errorf("%w: %s resolves to %s address %s", ErrUnsafeAddress, host, reason, ip)
	}

	return Target{Hostname: hostname, Port: port, IP: ip}, nil
}

func (v *Validator) resolve(ctx context.Context, hostname string) (netip.Addr, error) {
	resolver := v.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	timeout := v.DNSTimeout
	if timeout <= 0 {
		timeout = DefaultDNSTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := resolver.LookupIPAddr(lookupCtx, hostname)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: %v", ErrResolve, hostname, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s: no addresses", ErrResolve, hostname)
	}
	ip, ok := netip.AddrFromSlice(addrs[0].IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: %s: malformed address %v", ErrResolve, hostname, addrs[0].IP)
	}
	return ip.Unmap(), nil
}

func parseIPLiteral(host string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}

func effectivePort(parsed *url.URL) (int, error) {
	if raw := parsed.Port(); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return 0, fmt.Errorf("%w: port out of range: %s", ErrInvalidURL, raw)
		}
		return port, nil
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http":
		return 80, nil
	case "https":
		return 443, nil
	default:
		return 0, fmt.Errorf("%w: no default port for scheme %q", ErrInvalidURL, parsed.Scheme)
	}
}
