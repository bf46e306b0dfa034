package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Transport transport.Transport
	Fetcher   ChannelFetcher

	AnnounceTTL time.Duration
	SnapshotTTL time.Duration
	Warmup      time.Duration

	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *metric.Registry
	LocalAddrs func() ([]net.IP, error)
}

// Manager runs the advertiser, listener and snapshot cache of one process
// on a single transport.
type Manager struct {
	transport  transport.Transport
	state      *State
	advertiser *Advertiser
	listener   *Listener
	cache      *SnapshotCache
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewManager creates a manager. Nothing touches the network until
// Listen or Start is called.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	logger := cfg.Logger.With("component", "discovery")
	state := NewState()

	listener := NewListener(ListenerConfig{
		State:      state,
		Logger:     logger,
		Metrics:    cfg.Metrics,
		Clock:      cfg.Clock,
		LocalAddrs: cfg.LocalAddrs,
	})
	return &Manager{
		transport: cfg.Transport,
		state:     state,
		advertiser: NewAdvertiser(AdvertiserConfig{
			Transport: cfg.Transport,
			State:     state,
			TTL:       cfg.AnnounceTTL,
			Logger:    logger,
			Metrics:   cfg.Metrics,
		}),
		listener: listener,
		cache: NewSnapshotCache(SnapshotConfig{
			Listener: listener,
			State:    state,
			Fetcher:  cfg.Fetcher,
			TTL:      cfg.SnapshotTTL,
			Warmup:   cfg.Warmup,
			Clock:    cfg.Clock,
			Logger:   logger,
			Metrics:  cfg.Metrics,
		}),
		logger: logger,
	}
}

// Listen starts the listener in the background. It is a no-op when the
// listener already runs.
func (m *Manager) Listen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		if err := m.listener.Run(ctx, m.transport); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("discovery listener failed", "error", err)
		}
	}()
	return nil
}

// Start starts the listener and registers this instance. It returns the
// id actually registered.
func (m *Manager) Start(ctx context.Context, id string, port int, props map[string]any) (string, error) {
	if err := m.Listen(); err != nil {
		return "", err
	}
	return m.advertiser.Register(ctx, id, port, props)
}

// Reregister withdraws any active registration and registers anew.
func (m *Manager) Reregister(ctx context.Context, id string, port int, props map[string]any) (string, error) {
	if err := m.advertiser.Unregister(); err != nil && !errors.Is(err, ErrNotRegistered) {
		return "", err
	}
	return m.advertiser.Register(ctx, id, port, props)
}

// Peers lists visible peers through the snapshot cache.
func (m *Manager) Peers(ctx context.Context, includeLocal bool) ([]PeerSnapshot, error) {
	return m.cache.List(ctx, includeLocal)
}

// Peer retrieves one visible peer through the snapshot cache.
func (m *Manager) Peer(ctx context.Context, id string) (PeerSnapshot, error) {
	return m.cache.Retrieve(ctx, id)
}

// Invalidate drops cached snapshots.
func (m *Manager) Invalidate() {
	m.cache.Invalidate()
}

// SelfID returns the registered id, or "".
func (m *Manager) SelfID() string {
	return m.state.SelfID()
}

// Listener returns the live table.
func (m *Manager) Listener() *Listener {
	return m.listener
}

// Close withdraws the registration, stops the listener and closes the
// transport. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	err := m.advertiser.Close()
	if cancel != nil {
		cancel()
		<-done
	}
	return multierr.Append(err, m.transport.Close())
}
