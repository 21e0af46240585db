package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Endpoint is one candidate `{_service{sdl}}` address for a subgraph, with
// its own timeout and retry policy. EndpointList order is failover order:
// the first endpoint to answer wins.
type Endpoint struct {
	URL                string
	RequestTimeout     time.Duration
	ConnectTimeout     time.Duration
	AcceptInvalidCerts bool
	RetryAttempts      int
}

// URLSpec is a subgraph discovered by polling an ordered endpoint list.
type URLSpec struct {
	Name      string
	Endpoints []Endpoint
}

// URLSource polls each subgraph's endpoint list for its SDL via the
// federation introspection query and recomposes the supergraph.
type URLSource struct {
	specs     []URLSpec
	publisher *Publisher
	interval  time.Duration
}

// NewURLSource builds a URLSource publishing to publisher on the given poll
// interval.
func NewURLSource(publisher *Publisher, specs []URLSpec, interval time.Duration) *URLSource {
	return &URLSource{specs: specs, publisher: publisher, interval: interval}
}

type serviceSDLResponse struct {
	Data struct {
		Service struct {
			SDL string `json:"sdl"`
		} `json:"_service"`
	} `json:"data"`
}

// fetchSDL tries each endpoint in order, retrying each up to its configured
// attempt count, and returns the SDL and winning host from the first
// endpoint to answer.
func fetchSDL(ctx context.Context, endpoints []Endpoint) (sdl string, host string, err error) {
	var lastErr error
	for _, ep := range endpoints {
		attempts := ep.RetryAttempts
		if attempts <= 0 {
			attempts = 1
		}

		for i := 0; i < attempts; i++ {
			sdl, err := doFetchSDL(ctx, ep)
			if err == nil {
				return sdl, ep.URL, nil
			}
			lastErr = err
		}
	}
	return "", "", fmt.Errorf("all endpoints exhausted: %w", lastErr)
}

func doFetchSDL(ctx context.Context, ep Endpoint) (string, error) {
	transport := http.DefaultTransport
	if ep.AcceptInvalidCerts || ep.ConnectTimeout > 0 {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: ep.AcceptInvalidCerts},
			DialContext:     (&net.Dialer{Timeout: ep.ConnectTimeout}).DialContext,
		}
	}

	client := &http.Client{
		Timeout:   ep.RequestTimeout,
		Transport: transport,
	}

	body := []byte(`{"query":"{_service{sdl}}"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", ep.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, ep.URL)
	}

	var svcResp serviceSDLResponse
	if err := json.NewDecoder(resp.Body).Decode(&svcResp); err != nil {
		return "", fmt.Errorf("failed to decode SDL response from %s: %w", ep.URL, err)
	}
	if svcResp.Data.Service.SDL == "" {
		return "", fmt.Errorf("empty SDL returned from %s", ep.URL)
	}

	return svcResp.Data.Service.SDL, nil
}

// Reload polls every subgraph's endpoint list and republishes the
// supergraph. The last good snapshot remains published if this errors.
func (u *URLSource) Reload(ctx context.Context) error {
	specs := make([]SubgraphSpec, 0, len(u.specs))
	sdls := make(map[string]string, len(u.specs))

	for _, spec := range u.specs {
		sdl, host, err := fetchSDL(ctx, spec.Endpoints)
		if err != nil {
			return fmt.Errorf("failed to fetch SDL for subgraph %q: %w", spec.Name, err)
		}

		specs = append(specs, SubgraphSpec{Name: spec.Name, Host: host})
		sdls[spec.Name] = sdl
	}

	superGraph, err := Compose(specs, sdls)
	if err != nil {
		return err
	}

	u.publisher.Publish(&Snapshot{SuperGraph: superGraph, Specs: specs, BuiltAt: time.Now()})
	return nil
}

// Run performs an initial Reload, then polls on the configured interval
// until ctx is canceled.
func (u *URLSource) Run(ctx context.Context) error {
	if err := u.Reload(ctx); err != nil {
		return err
	}
	if u.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = u.Reload(ctx)
		}
	}
}
