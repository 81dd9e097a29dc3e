// Package fetch retrieves remote resources without letting a URL, a DNS answer,
// or a redirect steer the request to a non-public address.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qbandev/safefetch/internal/filename"
	"github.com/qbandev/safefetch/internal/resilience"
	"github.com/qbandev/safefetch/internal/urlsafety"
)

const (
	DefaultMaxRedirects   = 3
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxBodyBytes   = 10 << 20
	DefaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

var (
	ErrInvalidURL            = urlsafety.ErrInvalidURL
	ErrUnsafeAddress         = urlsafety.ErrUnsafeAddress
	ErrRedirectLimitExceeded = errors.New("redirect limit exceeded")
	ErrTransport             = errors.New("transport error")
)

// DialFunc opens the connection for a hop. addr is always the pinned ip:port.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config bounds a fetch. Zero values fall back to the package defaults.
type Config struct {
	DNSTimeout     time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	UserAgent      string
	Retry          resilience.RetryPolicy
}

func (c Config) withDefaults() Config {
	if c.DNSTimeout <= 0 {
		c.DNSTimeout = urlsafety.DefaultDNSTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Retry.Attempts <= 0 {
		c.Retry = resilience.DefaultHopPolicy
	}
	return c
}

// Result is the terminal hop of a successful fetch.
type Result struct {
	Body []byte
	// Filename is sanitized; empty when neither the headers nor the URL yield one.
	Filename    string
	URL         string
	StatusCode  int
	ContentType string
	Redirects   int
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithResolver replaces the DNS resolver used for validation.
func WithResolver(resolver urlsafety.Resolver) Option {
	return func(f *Fetcher) { f.validator.Resolver = resolver }
}

// WithDialer replaces the function that opens pinned connections.
func WithDialer(dial DialFunc) Option {
	return func(f *Fetcher) { f.dial = dial }
}

// WithTLSConfig sets the client TLS configuration used for https hops.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(f *Fetcher) { f.tlsConfig = cfg }
}

// Fetcher performs guarded fetches. It holds no per-request state and is safe
// for concurrent use.
type Fetcher struct {
	cfg       Config
	validator *urlsafety.Validator
	dial      DialFunc
	tlsConfig *tls.Config
}

// New returns a Fetcher using the system resolver and a plain net.Dialer.
func New(cfg Config, opts ...Option) *Fetcher {
	cfg = cfg.withDefaults()
	dialer := &net.Dialer{Timeout: cfg.RequestTimeout, KeepAlive: -1}
	f := &Fetcher{
		cfg:       cfg,
		validator: urlsafety.NewValidator(cfg.DNSTimeout),
		dial:      dialer.DialContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type hopResponse struct {
	statusCode         int
	location           string
	contentType        string
	contentDisposition string
	body               []byte
}

func (h *hopResponse) isRedirect() bool {
	return h.statusCode >= 300 && h.statusCode < 400
}

// Fetch GETs rawURL, following at most maxRedirects redirects. Every hop is
// validated and connected to the address validated for it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxRedirects int) (*Result, error) {
	if maxRedirects < 0 {
		return nil, fmt.Errorf("%w: negative redirect budget", ErrRedirectLimitExceeded)
	}
	log := zerolog.Ctx(ctx)

	current := rawURL
	redirects := 0
	for {
		hop, err := f.fetchHop(ctx, current)
		if err != nil {
			return nil, err
		}

		if hop.isRedirect() {
			if maxRedirects == 0 {
				return nil, fmt.Errorf("%w: %s redirected again after %d redirects", ErrRedirectLimitExceeded, current, redirects)
			}
			log.Debug().
				Str("from", current).
				Str("to", hop.location).
				Int("status", hop.statusCode).
				Int("remaining_redirects", maxRedirects-1).
				Msg("Following redirect")
			current = hop.location
			maxRedirects--
			redirects++
			continue
		}

		name, truncated := filename.Sanitize(filename.Derive(hop.contentDisposition, current))
		if truncated {
			log.Warn().
				Str("url", current).
				Str("filename", name).
				Int("max_length", filename.MaxLength).
				Msg("Filename truncated, distinct names may collide")
		}

		return &Result{
			Body:        hop.body,
			Filename:    name,
			URL:         current,
			StatusCode:  hop.statusCode,
			ContentType: hop.contentType,
			Redirects:   redirects,
		}, nil
	}
}

func (f *Fetcher) fetchHop(ctx context.Context, rawURL string) (*hopResponse, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme %q", ErrInvalidURL, parsed.Scheme)
	}

	target, err := f.validator.Validate(ctx, rawURL)
	if err != nil {
		if errors.Is(err, urlsafety.ErrResolve) {
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().
		Str("url", rawURL).
		Str("pinned_addr", target.Addr()).
		Msg("Validated fetch target")

	transport := f.pinnedTransport(target)
	defer transport.CloseIdleConnections()
	client := &http.Client{
		Transport: transport,
		Timeout:   f.cfg.RequestTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	hop, err := resilience.RetryWithResult(ctx, f.cfg.Retry, resilience.IsTransientNetworkError, func(callCtx context.Context) (*hopResponse, error) {
		return f.do(callCtx, client, rawURL)
	})
	if err != nil {
		if errors.Is(err, ErrTransport) || errors.Is(err, ErrInvalidURL) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return hop, nil
}

// pinnedTransport dials target's address regardless of the host in the request,
// so the connection cannot be re-resolved after validation. TLS still verifies
// the certificate against the URL host.
func (f *Fetcher) pinnedTransport(target urlsafety.Target) *http.Transport {
	pinned := target.Addr()
	return &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return f.dial(ctx, network, pinned)
		},
		TLSClientConfig:       f.tlsConfig.Clone(),
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: f.cfg.RequestTimeout,
		DisableKeepAlives:     true,
		ForceAttemptHTTP2:     true,
	}
}

func (f *Fetcher) do(ctx context.Context, client *http.Client, rawURL string) (*hopResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := client.Do(req) // #nosec G107 -- target validated and pinned by fetchHop
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	hop := &hopResponse{
		statusCode:         resp.StatusCode,
		contentType:        resp.Header.Get("Content-Type"),
		contentDisposition: resp.Header.Get("Content-Disposition"),
	}

	if hop.isRedirect() {
		location, err := resp.Location()
		if err != nil {
			return nil, fmt.Errorf("%w: HTTP %d redirect without usable Location header: %v", ErrTransport, resp.StatusCode, err)
		}
		hop.location = location.String()
		return hop, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrTransport, f.cfg.MaxBodyBytes)
	}
	hop.body = body
	return hop, nil
}
