// Package mdns implements the discovery transport over multicast DNS
// using github.com/grandcat/zeroconf.
package mdns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/grandcat/zeroconf"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
)

// Defaults for Config.
const (
	DefaultBrowseInterval = 10 * time.Second
	DefaultLookupTimeout  = time.Second
)

// Config configures the mDNS transport.
type Config struct {
	// Interfaces restricts multicast to these interfaces. Empty means all.
	Interfaces []net.Interface

	// BrowseInterval is the length of one browse round. An announcement
	// missing from a whole round is reported as withdrawn.
	BrowseInterval time.Duration

	// LookupTimeout bounds the conflict check done before registering.
	LookupTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Transport is an mDNS transport.
type Transport struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	// round runs one browse round; replaced in tests.
	round func(ctx context.Context, service, domain, serviceType string, h transport.Handler) (map[string]struct{}, error)

	mu      sync.Mutex
	servers map[string]*zeroconf.Server
	closed  bool
	done    chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New creates an mDNS transport.
func New(cfg Config) *Transport {
	if cfg.BrowseInterval <= 0 {
		cfg.BrowseInterval = DefaultBrowseInterval
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	t := &Transport{
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("transport", "mdns"),
		servers: make(map[string]*zeroconf.Server),
		done:    make(chan struct{}),
	}
	t.round = t.browseRound
	return t
}

// Register implements transport.Transport.
func (t *Transport) Register(ctx context.Context, a transport.Announcement, ttl time.Duration) (transport.Registration, error) {
	if t.isClosed() {
		return nil, transport.ErrClosed
	}

	instance, service, domain, err := splitName(a.Name)
	if err != nil {
		return nil, err
	}

	taken, err := t.lookup(ctx, instance, service, domain)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, transport.ErrNameConflict
	}

	addr := a.Addr
	if addr == nil {
		addr = transport.OutboundIP()
	}
	host := a.Host
	if host == "" {
		host = instance + "." + domain
	}

	server, err := zeroconf.RegisterProxy(
		instance,
		service,
		domain,
		a.Port,
		host,
		[]string{addr.String()},
		encodeText(a.Text),
		t.cfg.Interfaces,
	)
	if err != nil {
		return nil, fmt.Errorf("mdns register %s: %w", a.Name, err)
	}
	if ttl > 0 {
		server.TTL(uint32(ttl / time.Second))
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		server.Shutdown()
		return nil, transport.ErrClosed
	}
	t.servers[a.Name] = server
	t.mu.Unlock()

	t.logger.Info("service registered", "name", a.Name, "host", host, "addr", addr.String(), "port", a.Port)
	return &registration{t: t, name: a.Name, server: server}, nil
}

// lookup reports whether instance is already announced.
func (t *Transport) lookup(ctx context.Context, instance, service, domain string) (bool, error) {
	resolver, err := zeroconf.NewResolver(zeroconf.SelectIfaces(t.cfg.Interfaces))
	if err != nil {
		return false, fmt.Errorf("mdns resolver: %w", err)
	}

	lctx, cancel := context.WithTimeout(ctx, t.cfg.LookupTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Lookup(lctx, instance, service, domain, entries); err != nil {
		return false, fmt.Errorf("mdns lookup %s: %w", instance, err)
	}

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return false, ctx.Err()
			}
			if e.Instance == instance && e.TTL > 0 {
				return true, nil
			}
		case <-lctx.Done():
			return false, ctx.Err()
		}
	}
}

// Browse implements transport.Transport.
func (t *Transport) Browse(ctx context.Context, serviceType string, h transport.Handler) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	service, domain := transport.SplitServiceType(serviceType)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var previous map[string]struct{}
	for ctx.Err() == nil {
		seen, err := t.round(ctx, service, domain, serviceType, h)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			t.logger.Warn("browse round failed", "error", err)
			select {
			case <-ctx.Done():
			case <-t.clock.After(t.cfg.BrowseInterval):
			}
			continue
		}
		if ctx.Err() != nil {
			// A cancelled round is partial; do not expire from it.
			break
		}
		for name := range previous {
			if _, ok := seen[name]; !ok {
				h.Withdrawn(name)
			}
		}
		previous = seen
	}
	return nil
}

func (t *Transport) browseRound(ctx context.Context, service, domain, serviceType string, h transport.Handler) (map[string]struct{}, error) {
	resolver, err := zeroconf.NewResolver(zeroconf.SelectIfaces(t.cfg.Interfaces))
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, t.cfg.BrowseInterval)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(rctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	seen := make(map[string]struct{})
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return seen, nil
			}
			name := e.Instance + "." + strings.TrimSuffix(serviceType, ".") + "."
			if e.TTL == 0 {
				delete(seen, name)
				h.Withdrawn(name)
				continue
			}
			a, ok := toAnnouncement(name, e)
			if !ok {
				t.logger.Debug("entry without address dropped", "name", name)
				continue
			}
			seen[name] = struct{}{}
			h.Observed(a)
		case <-rctx.Done():
			return seen, nil
		}
	}
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	servers := t.servers
	t.servers = nil
	close(t.done)
	t.mu.Unlock()

	for name, s := range servers {
		s.Shutdown()
		t.logger.Info("service withdrawn", "name", name)
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type registration struct {
	t      *Transport
	name   string
	server *zeroconf.Server
	once   sync.Once
}

func (r *registration) Withdraw() error {
	r.once.Do(func() {
		r.t.mu.Lock()
		owned := r.t.servers != nil && r.t.servers[r.name] == r.server
		if owned {
			delete(r.t.servers, r.name)
		}
		r.t.mu.Unlock()
		if owned {
			r.server.Shutdown()
			r.t.logger.Info("service withdrawn", "name", r.name)
		}
	})
	return nil
}

// splitName splits "node._svc._tcp.local." into its zeroconf parts.
func splitName(name string) (instance, service, domain string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(name, "."), ".", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", "", fmt.Errorf("mdns: malformed service name %q", name)
	}
	service, domain = transport.SplitServiceType(parts[1])
	if service == "" {
		return "", "", "", fmt.Errorf("mdns: malformed service name %q", name)
	}
	return parts[0], service, domain, nil
}

func encodeText(text map[string][]byte) []string {
	out := make([]string, 0, len(text))
	for k, v := range text {
		out = append(out, k+"="+string(v))
	}
	return out
}

func decodeText(txt []string) map[string][]byte {
	out := make(map[string][]byte, len(txt))
	for _, kv := range txt {
		k, v, _ := strings.Cut(kv, "=")
		if k == "" {
			continue
		}
		out[k] = []byte(v)
	}
	return out
}

func toAnnouncement(name string, e *zeroconf.ServiceEntry) (transport.Announcement, bool) {
	var addr net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		addr = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		addr = e.AddrIPv6[0]
	default:
		return transport.Announcement{}, false
	}
	return transport.Announcement{
		Name: name,
		Host: e.HostName,
		Addr: addr,
		Port: e.Port,
		Text: decodeText(e.Text),
	}, true
}
