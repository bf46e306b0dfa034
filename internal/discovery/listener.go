package discovery

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
	"github.com/yndnr/peerscout-go/pkg/cmap"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	State   *State
	Logger  *slog.Logger
	Metrics *metric.Registry
	Clock   clock.Clock

	// LocalAddrs lists the addresses of this host. Defaults to the
	// addresses of all network interfaces.
	LocalAddrs func() ([]net.IP, error)
}

// Listener keeps the live table of announced peers. It implements
// transport.Handler and performs no network calls of its own.
type Listener struct {
	state      *State
	table      *cmap.Map[string, Peer]
	logger     *slog.Logger
	metrics    *metric.Registry
	clock      clock.Clock
	localAddrs func() ([]net.IP, error)

	mu        sync.Mutex
	startedAt time.Time
}

var _ transport.Handler = (*Listener)(nil)

// NewListener creates a listener with an empty table.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.LocalAddrs == nil {
		cfg.LocalAddrs = interfaceAddrs
	}
	return &Listener{
		state:      cfg.State,
		table:      cmap.New[string, Peer](),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		localAddrs: cfg.LocalAddrs,
	}
}

// Run browses t until ctx is done.
func (l *Listener) Run(ctx context.Context, t transport.Transport) error {
	l.mu.Lock()
	l.startedAt = l.clock.Now()
	l.mu.Unlock()

	l.logger.Info("discovery listener started", "service_type", ServiceType)
	defer l.logger.Info("discovery listener stopped")
	return t.Browse(ctx, ServiceType, l)
}

// StartedAt returns when Run was last called, or the zero time.
func (l *Listener) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startedAt
}

// Observed implements transport.Handler.
func (l *Listener) Observed(a transport.Announcement) {
	id := idFromName(a.Name)
	if id == "" || a.Addr == nil || a.Port <= 0 {
		l.logger.Warn("dropping malformed announcement", "name", a.Name)
		l.metrics.Announcement("malformed")
		return
	}
	data, err := decodeProperties(a.Text)
	if err != nil {
		l.logger.Warn("dropping announcement with undecodable properties", "name", a.Name, "error", err)
		l.metrics.Announcement("malformed")
		return
	}

	peer := Peer{
		ID:      id,
		IP:      a.Addr.String(),
		Port:    a.Port,
		Host:    strings.TrimSuffix(a.Host, "."),
		BaseURL: BaseURL(a.Addr, a.Port),
		Local:   l.isLocal(a.Addr),
		Data:    data,
	}
	_, existed := l.table.Swap(id, peer)
	l.metrics.Announcement("observed")
	l.metrics.SetPeers(l.table.Len())

	if !existed {
		l.logger.Info("instance joined discovery network",
			"id", id,
			"base_url", peer.BaseURL,
			"local", peer.Local)
	}
}

// Withdrawn implements transport.Handler.
func (l *Listener) Withdrawn(name string) {
	id := idFromName(name)
	if id == "" {
		return
	}
	if _, ok := l.table.Pop(id); ok {
		l.logger.Info("instance left discovery network", "id", id)
	}
	l.metrics.Announcement("withdrawn")
	l.metrics.SetPeers(l.table.Len())
}

// Peers returns copies of all table entries sorted by id.
func (l *Listener) Peers() []Peer {
	self := l.state.SelfID()
	peers := l.table.Values()
	for i := range peers {
		peers[i] = peers[i].Clone()
		peers[i].Self = self != "" && peers[i].ID == self
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// Peer returns a copy of the entry for id.
func (l *Listener) Peer(id string) (Peer, bool) {
	p, ok := l.table.Get(id)
	if !ok {
		return Peer{}, false
	}
	p = p.Clone()
	self := l.state.SelfID()
	p.Self = self != "" && p.ID == self
	return p, true
}

// Len returns the number of table entries.
func (l *Listener) Len() int {
	return l.table.Len()
}

func (l *Listener) isLocal(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	addrs, err := l.localAddrs()
	if err != nil {
		l.logger.Debug("listing interface addresses failed", "error", err)
		return false
	}
	for _, a := range addrs {
		if a.Equal(ip) {
			return true
		}
	}
	return false
}

func interfaceAddrs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		switch v := a.(type) {
		case *net.IPNet:
			ips = append(ips, v.IP)
		case *net.IPAddr:
			ips = append(ips, v.IP)
		}
	}
	return ips, nil
}
