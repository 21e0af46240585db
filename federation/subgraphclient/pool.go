// Package subgraphclient provides a per-subgraph HTTP client pool: request
// timeouts, TLS policy, and retries keyed by host, plus an optional
// header-expression override for dynamically rewriting a step's destination
// URL at request time.
package subgraphclient

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config is one subgraph's transport policy, the same shape the schema
// source uses to fetch SDL, reused here so a single configuration block
// governs both introspection and execution traffic to a subgraph.
type Config struct {
	Host               string
	RequestTimeout     time.Duration
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
	RetryAttempts      int
}

// Pool holds the transport policy for every configured subgraph host behind
// a single shared *http.Client, so the executor's request path never has to
// pick a client itself.
type Pool struct {
	client *http.Client
}

// NewPool builds a Pool backed by a single shared *http.Client whose
// transport dispatches per-host timeout, TLS, and retry policy according to
// configs. A host with no matching Config falls back to http.DefaultClient's
// behavior, unretried.
func NewPool(configs []Config) *Pool {
	rt := &routingTransport{byHost: make(map[string]Config, len(configs))}
	for _, c := range configs {
		rt.byHost[c.Host] = c
	}
	return &Pool{client: &http.Client{Transport: rt}}
}

// WrapTransport rewraps the pool's underlying transport with wrap, e.g. to
// add otelhttp instrumentation around routingTransport. Must be called
// before the pool's client serves any request.
func (p *Pool) WrapTransport(wrap func(http.RoundTripper) http.RoundTripper) {
	p.client.Transport = wrap(p.client.Transport)
}

// HTTPClient returns the pool's shared client. Every request it sends is
// routed by routingTransport according to the request's host.
func (p *Pool) HTTPClient() *http.Client {
	return p.client
}

// routingTransport picks per-host timeout/TLS/retry policy and retries a
// request on transport-level failure, the same retry discipline
// schema-fetching uses for SDL polling, extended here to cover every
// subgraph execution request rather than just introspection.
type routingTransport struct {
	byHost map[string]Config
}

func (rt *routingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cfg, ok := rt.byHost[req.URL.Host]
	if !ok {
		return http.DefaultTransport.RoundTrip(req)
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body for retry: %w", err)
		}
		req.Body.Close()
	}

	attemptClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			DialContext: (&net.Dialer{
				Timeout: connectTimeoutOrDefault(cfg.ConnectTimeout),
			}).DialContext,
		},
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	// Retries only ever cover transport-level failures (dial/timeout/reset);
	// a subgraph's own GraphQL error response is a 200 with a body and never
	// reaches this retry loop at all.
	var resp *http.Response
	err := retry.Do(
		func() error {
			attemptReq := req.Clone(req.Context())
			if bodyBytes != nil {
				attemptReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
				attemptReq.ContentLength = int64(len(bodyBytes))
			}
			r, err := attemptClient.Do(attemptReq)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.Context(req.Context()),
	)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed after %d attempt(s): %w", req.URL.Host, attempts, err)
	}

	return resp, nil
}

func connectTimeoutOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return 5 * time.Second
}
