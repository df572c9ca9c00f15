// Package httpclient is the outbound HTTP transport for the execution backend
// and the synthesis service. It refuses requests aimed at loopback, private or
// otherwise non-routable addresses unless a collaborator is explicitly local.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/teranos/sentinel/errors"
)

const defaultMaxRedirects = 10

// nonRoutable covers the ranges netip's predicates do not.
var nonRoutable = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("fec0::/10"),     // site-local
	netip.MustParsePrefix("2001:db8::/32"), // documentation
}

// SaferClient is an http.Client that validates every destination.
type SaferClient struct {
	*http.Client
	schemes      []string
	allowPrivate bool
	maxRedirects int
}

// SaferClientOptions tunes destination checks. The zero value allows http
// and https, follows 10 redirects and blocks private addresses.
type SaferClientOptions struct {
	Schemes      []string
	MaxRedirects int
	AllowPrivate bool // a synthesis service on localhost needs this
}

// NewSaferClient creates a client with the default checks.
func NewSaferClient(timeout time.Duration) *SaferClient {
	return NewSaferClientWithOptions(timeout, SaferClientOptions{})
}

// NewSaferClientWithOptions creates a client with opts.
func NewSaferClientWithOptions(timeout time.Duration, opts SaferClientOptions) *SaferClient {
	c := &SaferClient{
		Client:       &http.Client{Timeout: timeout},
		schemes:      []string{"http", "https"},
		allowPrivate: opts.AllowPrivate,
		maxRedirects: defaultMaxRedirects,
	}
	if len(opts.Schemes) > 0 {
		c.schemes = opts.Schemes
	}
	if opts.MaxRedirects > 0 {
		c.maxRedirects = opts.MaxRedirects
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		return errors.Wrap(c.check(req.URL), "redirect blocked")
	}

	if !c.allowPrivate {
		c.Transport = guardedTransport()
	}
	return c
}

// WrapClient adopts an existing client with private addresses allowed, so
// tests can reach an httptest server.
func WrapClient(client *http.Client) *SaferClient {
	return &SaferClient{
		Client:       client,
		schemes:      []string{"http", "https"},
		allowPrivate: true,
		maxRedirects: defaultMaxRedirects,
	}
}

// guardedTransport resolves the host itself and refuses to dial if any
// address is blocked, so a DNS answer cannot smuggle in a private target.
func guardedTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid address %q", addr)
			}
			ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve %q", host)
			}
			for _, ip := range ips {
				if isBlocked(ip) {
					return nil, errors.Newf("private IP address blocked: %s resolves to %s", host, ip)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func (c *SaferClient) check(u *url.URL) error {
	if !slices.Contains(c.schemes, strings.ToLower(u.Scheme)) {
		return errors.Newf("scheme %q not allowed (allowed: %v)", u.Scheme, c.schemes)
	}
	if u.User != nil || strings.Contains(u.Host, "@") {
		return errors.New("URL contains @ character (userinfo is not accepted)")
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("URL missing hostname")
	}
	if c.allowPrivate {
		return nil
	}
	if isLocalhost(host) {
		return errors.Newf("localhost access blocked: %s", host)
	}
	if ip, err := netip.ParseAddr(host); err == nil && isBlocked(ip) {
		return errors.Newf("private IP address blocked: %s", host)
	}
	return nil
}

// ValidateURL parses raw and applies the destination checks.
func (c *SaferClient) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %q", raw)
	}
	if err := c.check(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do checks req's destination before sending it.
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.check(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked by SSRF protection")
	}
	return c.Client.Do(req)
}

func isBlocked(ip netip.Addr) bool {
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, p := range nonRoutable {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return host == "localhost" || host == "localhost.localdomain" || strings.HasSuffix(host, ".localhost")
}
