// Package transport provides the pooled HTTP client used to reach provider
// endpoints, with the three timeout layers the resilience core depends on:
// connect, per-request deadline, and inter-chunk idle on streaming bodies.
package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultConnectTimeout bounds TCP/TLS handshake time.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultRequestTimeout bounds a full non-streaming round trip.
	DefaultRequestTimeout = 60 * time.Second
	// DefaultIdleChunkTimeout bounds the gap between consecutive reads on a
	// streaming response body.
	DefaultIdleChunkTimeout = 30 * time.Second
)

// Config controls the pooled client's timeouts and proxy behavior.
type Config struct {
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	IdleChunkTimeout time.Duration
	// TrustEnv mirrors AI_HTTP_TRUST_ENV: whether to honor HTTP_PROXY/
	// HTTPS_PROXY/NO_PROXY environment variables.
	TrustEnv bool
}

// ConfigFromEnv reads AI_HTTP_TIMEOUT_SECS and AI_HTTP_TRUST_ENV, falling
// back to the package defaults when unset or unparsable.
func ConfigFromEnv() Config {
	cfg := Config{
		ConnectTimeout:   DefaultConnectTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		IdleChunkTimeout: DefaultIdleChunkTimeout,
		TrustEnv:         true,
	}

	if v := os.Getenv("AI_HTTP_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.RequestTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("AI_HTTP_TRUST_ENV"); v != "" {
		cfg.TrustEnv = v != "0"
	}

	return cfg
}

// Client wraps a pooled *http.Client with inter-chunk idle enforcement on
// streaming bodies. The connection pooling defaults mirror the teacher's
// own client construction.
type Client struct {
	http   *http.Client
	config Config
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.TrustEnv {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
		},
		config: cfg,
	}
}

// Do executes req under the request-timeout deadline for non-streaming
// calls; the returned response body has no further idle enforcement.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// DoStream executes req with no overall request-timeout deadline (the
// caller's context still bounds total lifetime); instead the returned body
// enforces an inter-chunk idle timeout, resetting on every successful Read.
func (c *Client) DoStream(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body = newIdleTimeoutBody(resp.Body, c.config.IdleChunkTimeout)
	return resp, nil
}

type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
