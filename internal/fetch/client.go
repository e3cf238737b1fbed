// Package fetch implements the Fetch Pipeline: per spec.md §4.5, it
// turns a popped Job into a request, classifies the response, and
// drives the follow-on save/parse/enqueue steps. Connection dialing
// goes through fastdialer so DNS resolution flows through the shared
// dnscache.Resolver; the HTTP round trip itself goes through
// retryablehttp-go with its own retry disabled, since job-level retry
// and per-host backoff are owned by the coordinator (hostregistry,
// jobqueue), not the HTTP client.
package fetch

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/projectdiscovery/fastdialer/fastdialer"
	retryablehttp "github.com/projectdiscovery/retryablehttp-go"

	"go-wget/internal/dnscache"
	"go-wget/internal/statssink"
)

// ClientOptions configures the Client's transport.
type ClientOptions struct {
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	TLSHandshakeSkip  bool // --no-check-certificate equivalent
	EnableHTTP2       bool
	TCPFastOpen       bool
	Resolver          *dnscache.Resolver
	FamilyPreference  dnscache.FamilyPreference
	Stats             statssink.Sink
}

// Client wraps a retryablehttp.Client whose dialer is fastdialer,
// configured to resolve through the coordinator's own DNS cache instead
// of fastdialer's built-in one, per spec.md §4.1's single shared cache
// requirement.
type Client struct {
	http  *retryablehttp.Client
	stats statssink.Sink
}

// NewClient builds a Client from opts. One Client is shared by the
// whole worker pool; per spec.md §4.5 connection reuse is keyed per
// worker by (scheme,host,port), which the standard transport's own
// connection pool already provides.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Stats == nil {
		opts.Stats = statssink.NoOp
	}

	fdOpts := fastdialer.DefaultOptions
	fdOpts.EnableFallback = true
	dialer, err := fastdialer.NewDialer(fdOpts)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			start := time.Now()
			conn, dialErr := dialWithResolver(ctx, dialer, opts.Resolver, network, addr, opts.ConnectTimeout, opts.FamilyPreference)
			if dialErr == nil {
				host, _, _ := net.SplitHostPort(addr)
				opts.Stats.TCPConnected(host, time.Since(start))
			}
			return conn, dialErr
		},
		TLSHandshakeTimeout: opts.ConnectTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.TLSHandshakeSkip,
		},
		ForceAttemptHTTP2:   opts.EnableHTTP2,
		MaxIdleConnsPerHost: 1, // one reusable connection per (scheme,host,port), per spec.md §4.5
	}

	retryOpts := retryablehttp.DefaultOptionsSingle
	retryOpts.RetryMax = 0 // the coordinator owns retry/backoff (hostregistry, jobqueue)
	retryOpts.Timeout = opts.ReadTimeout

	client := retryablehttp.NewClient(retryOpts)
	client.HTTPClient.Transport = transport
	client.HTTPClient.Timeout = opts.ReadTimeout
	// 3xx responses are handed back to the pipeline, which turns them
	// into redirect jobs, instead of being followed inside the client.
	client.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{http: client, stats: opts.Stats}, nil
}

// dialWithResolver resolves addr's host through resolver (falling back
// to fastdialer's own resolution if resolver is nil) before handing the
// concrete address to fastdialer's dialer, so every connection in the
// process shares one DNS cache.
func dialWithResolver(ctx context.Context, dialer *fastdialer.Dialer, resolver *dnscache.Resolver, network, addr string, timeout time.Duration, pref dnscache.FamilyPreference) (net.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if resolver == nil {
		return dialer.Dial(ctx, network, addr)
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return dialer.Dial(ctx, network, addr)
	}

	addrs, err := resolver.Resolve(ctx, host, port, pref)
	if err != nil || len(addrs) == 0 {
		return dialer.Dial(ctx, network, addr)
	}

	return dialer.Dial(ctx, network, net.JoinHostPort(addrs[0].IP.String(), port))
}

// Do performs req, returning the raw *http.Response for classification
// by the pipeline.
func (c *Client) Do(req *retryablehttp.Request) (*http.Response, error) {
	return c.http.Do(req)
}
