// Package probe checks whether a peer answers at a base URL and fetches
// what it reports about itself.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
)

// Peer HTTP surface paths, relative to a base URL.
const (
	InfoPath     = "api/public/info/"
	ChannelsPath = "api/content/channel/?available=true"
)

// DefaultTimeout bounds every call unless configured otherwise.
const DefaultTimeout = 5 * time.Second

// maxBody caps decoded response bodies.
const maxBody = 4 << 20

// ErrUnreachable wraps every failure to get a usable answer from a peer.
var ErrUnreachable = errors.New("peer unreachable")

// Config configures a Client.
type Config struct {
	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// HTTPClient overrides the transport. Its own Timeout is ignored.
	HTTPClient *http.Client

	Metrics *metric.Registry
}

// Client probes peers. It never retries; retry policy belongs to callers.
type Client struct {
	timeout   time.Duration
	userAgent string
	client    *http.Client
	metrics   *metric.Registry
}

// NewClient creates a probe client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "peerscout"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		client:    hc,
		metrics:   cfg.Metrics,
	}
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Info fetches the identity a peer reports about itself.
func (c *Client) Info(ctx context.Context, baseURL string) (domain.DeviceInfo, error) {
	var info domain.DeviceInfo
	err := c.getJSON(ctx, "info", baseURL, InfoPath, &info)
	if err == nil && info.Application == "" {
		err = fmt.Errorf("%w: info response without application", ErrUnreachable)
	}
	if err != nil {
		return domain.DeviceInfo{}, err
	}
	return info, nil
}

// Probe reports whether the peer answers, with its identity when it does.
func (c *Client) Probe(ctx context.Context, baseURL string) (domain.DeviceInfo, bool) {
	info, err := c.Info(ctx, baseURL)
	return info, err == nil
}

// Channels fetches the peer's available content channels.
func (c *Client) Channels(ctx context.Context, baseURL string) ([]domain.Channel, error) {
	var channels []domain.Channel
	if err := c.getJSON(ctx, "channels", baseURL, ChannelsPath, &channels); err != nil {
		return nil, err
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return channels, nil
}

func (c *Client) getJSON(ctx context.Context, kind, baseURL, path string, target any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveProbe(kind, err == nil, time.Since(start))
	}()

	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return fmt.Errorf("%w: status %d from %s", ErrUnreachable, resp.StatusCode, base+path)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(target); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnreachable, base+path, err)
	}
	return nil
}

// NormalizeBaseURL adds an http scheme when missing and guarantees a
// trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty base url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}
