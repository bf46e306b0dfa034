package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/discovery/transport"
	"github.com/yndnr/peerscout-go/internal/discovery/transport/memnet"
)

var errUnreachable = errors.New("unreachable")

// fakeFetcher serves channels per base URL and counts calls.
type fakeFetcher struct {
	mu       sync.Mutex
	channels map[string][]domain.Channel
	down     map[string]bool
	calls    atomic.Int32
	gate     chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		channels: make(map[string][]domain.Channel),
		down:     make(map[string]bool),
	}
}

func (f *fakeFetcher) Channels(ctx context.Context, baseURL string) ([]domain.Channel, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[baseURL] {
		return nil, errUnreachable
	}
	return f.channels[baseURL], nil
}

func announce(n *memnet.Network, id, ip string, port int, text map[string][]byte) {
	n.Announce(transport.Announcement{
		Name: ServiceName(id),
		Host: HostName(id),
		Addr: net.ParseIP(ip),
		Port: port,
		Text: text,
	})
}

func noLocalAddrs() ([]net.IP, error) { return nil, nil }

// startListener browses n with a fresh listener until the test ends.
func startListener(t *testing.T, n *memnet.Network, cfg ListenerConfig) *Listener {
	t.Helper()
	if cfg.LocalAddrs == nil {
		cfg.LocalAddrs = noLocalAddrs
	}
	l := NewListener(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	before := n.Subscribers()
	go func() {
		defer close(done)
		_ = l.Run(ctx, n.Join(nil))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return n.Subscribers() > before }, time.Second, time.Millisecond)
	return l
}

func TestServiceAndHostName(t *testing.T) {
	require.Equal(t, "node-a._peerscout._tcp.local.", ServiceName("node-a"))
	require.Equal(t, "node-a.peerscout.local.", HostName("node-a"))
	require.Equal(t, "node-a", idFromName(ServiceName("node-a")))
	require.Equal(t, "", idFromName("a.b._peerscout._tcp.local."))
	require.Equal(t, "", idFromName("node-a._http._tcp.local."))
}

func TestBaseURL(t *testing.T) {
	require.Equal(t, "http://10.0.0.5:8080/", BaseURL(net.ParseIP("10.0.0.5"), 8080))
	require.Equal(t, "http://[fe80::1]:8080/", BaseURL(net.ParseIP("fe80::1"), 8080))
}

func TestPeerClone(t *testing.T) {
	p := Peer{ID: "a", Data: map[string]any{"nested": map[string]any{"k": "v"}, "list": []any{"x"}}}
	c := p.Clone()
	c.Data["nested"].(map[string]any)["k"] = "changed"
	c.Data["list"].([]any)[0] = "y"

	require.Equal(t, "v", p.Data["nested"].(map[string]any)["k"])
	require.Equal(t, "x", p.Data["list"].([]any)[0])
}

type countingHandler struct {
	mu        sync.Mutex
	last      transport.Announcement
	observed  atomic.Int32
	withdrawn atomic.Int32
}

func (h *countingHandler) Observed(a transport.Announcement) {
	h.mu.Lock()
	h.last = a
	h.mu.Unlock()
	h.observed.Add(1)
}

func (h *countingHandler) Withdrawn(string) { h.withdrawn.Add(1) }

func browseWith(t *testing.T, n *memnet.Network, h transport.Handler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	before := n.Subscribers()
	go func() { _ = n.Join(nil).Browse(ctx, ServiceType, h) }()
	require.Eventually(t, func() bool { return n.Subscribers() > before }, time.Second, time.Millisecond)
	return cancel
}
