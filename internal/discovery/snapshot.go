package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
)

// ChannelFetcher fetches the available channels of a peer. A failure
// means the peer is unreachable.
type ChannelFetcher interface {
	Channels(ctx context.Context, baseURL string) ([]domain.Channel, error)
}

// SnapshotConfig configures a SnapshotCache.
type SnapshotConfig struct {
	Listener *Listener
	State    *State
	Fetcher  ChannelFetcher

	// TTL is how long a computed snapshot is served. Defaults to DefaultSnapshotTTL.
	TTL time.Duration

	// Warmup is how long after the listener starts the first List waits
	// for announcements. Defaults to DefaultWarmup; negative disables it.
	Warmup time.Duration

	// Concurrency bounds parallel enrichment calls. Defaults to 8.
	Concurrency int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metric.Registry
}

type snapshot struct {
	peers   []PeerSnapshot
	expires time.Time
}

// SnapshotCache serves enriched, reachability-filtered views of the
// listener's table for a fixed TTL.
type SnapshotCache struct {
	listener    *Listener
	state       *State
	fetcher     ChannelFetcher
	ttl         time.Duration
	warmup      time.Duration
	concurrency int
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metric.Registry

	group singleflight.Group

	mu    sync.Mutex
	cache map[bool]*snapshot
	gen   uint64
}

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache(cfg SnapshotConfig) *SnapshotCache {
	if cfg.State == nil {
		cfg.State = cfg.Listener.state
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSnapshotTTL
	}
	if cfg.Warmup == 0 {
		cfg.Warmup = DefaultWarmup
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SnapshotCache{
		listener:    cfg.Listener,
		state:       cfg.State,
		fetcher:     cfg.Fetcher,
		ttl:         cfg.TTL,
		warmup:      cfg.Warmup,
		concurrency: cfg.Concurrency,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		cache:       make(map[bool]*snapshot),
	}
}

// List returns the currently visible peers. Peers on this host are
// skipped unless includeLocal is set. Unreachable peers are left out.
func (c *SnapshotCache) List(ctx context.Context, includeLocal bool) ([]PeerSnapshot, error) {
	if err := c.waitWarmup(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	s, ok := c.cache[includeLocal]
	gen := c.gen
	c.mu.Unlock()
	if ok && c.clock.Now().Before(s.expires) {
		c.metrics.SnapshotLookup(true)
		return cloneSnapshots(s.peers), nil
	}
	c.metrics.SnapshotLookup(false)

	key := "remote"
	if includeLocal {
		key = "local"
	}
	ch := c.group.DoChan(key, func() (any, error) {
		peers := c.compute(context.WithoutCancel(ctx), includeLocal)
		expires := c.clock.Now().Add(c.ttl)

		c.mu.Lock()
		if c.gen == gen {
			c.cache[includeLocal] = &snapshot{peers: peers, expires: expires}
			c.state.setSnapshotExpiry(expires)
		}
		c.mu.Unlock()
		return peers, nil
	})

	select {
	case res := <-ch:
		return cloneSnapshots(res.Val.([]PeerSnapshot)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Retrieve returns the snapshot entry for id.
func (c *SnapshotCache) Retrieve(ctx context.Context, id string) (PeerSnapshot, error) {
	peers, err := c.List(ctx, true)
	if err != nil {
		return PeerSnapshot{}, err
	}
	for _, p := range peers {
		if p.ID == id {
			return p, nil
		}
	}
	return PeerSnapshot{}, ErrPeerNotFound
}

// Invalidate drops every cached snapshot.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[bool]*snapshot)
	c.gen++
	c.mu.Unlock()
	c.state.setSnapshotExpiry(time.Time{})
}

func (c *SnapshotCache) waitWarmup(ctx context.Context) error {
	if c.warmup <= 0 {
		return nil
	}
	started := c.listener.StartedAt()
	if started.IsZero() {
		return nil
	}
	remaining := started.Add(c.warmup).Sub(c.clock.Now())
	if remaining <= 0 {
		return nil
	}
	timer := c.clock.Timer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// compute builds a snapshot from the listener's table. Table entries are
// copies, so no listener lock is held during enrichment.
func (c *SnapshotCache) compute(ctx context.Context, includeLocal bool) []PeerSnapshot {
	var candidates []Peer
	for _, p := range c.listener.Peers() {
		if p.Local && !includeLocal {
			continue
		}
		candidates = append(candidates, p)
	}

	results := make([]*PeerSnapshot, len(candidates))
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, p := range candidates {
		if p.Self {
			results[i] = &PeerSnapshot{Peer: p}
			continue
		}
		g.Go(func() error {
			channels, err := c.fetcher.Channels(ctx, p.BaseURL)
			if err != nil {
				c.logger.Info("peer could no longer be reached", "id", p.ID, "base_url", p.BaseURL, "error", err)
				return nil
			}
			if channels == nil {
				channels = []domain.Channel{}
			}
			results[i] = &PeerSnapshot{Peer: p, Channels: channels}
			return nil
		})
	}
	_ = g.Wait()

	peers := make([]PeerSnapshot, 0, len(results))
	for _, r := range results {
		if r != nil {
			peers = append(peers, *r)
		}
	}
	return peers
}

func cloneSnapshots(in []PeerSnapshot) []PeerSnapshot {
	out := make([]PeerSnapshot, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}
