package discovery

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/discovery/transport/memnet"
)

type snapshotFixture struct {
	net     *memnet.Network
	clock   *clock.Mock
	state   *State
	fetcher *fakeFetcher
	cache   *SnapshotCache
}

func newSnapshotFixture(t *testing.T, localIPs ...string) *snapshotFixture {
	t.Helper()
	f := &snapshotFixture{
		net:     memnet.NewNetwork(),
		clock:   clock.NewMock(),
		state:   NewState(),
		fetcher: newFakeFetcher(),
	}
	l := startListener(t, f.net, ListenerConfig{
		State: f.state,
		Clock: f.clock,
		LocalAddrs: func() ([]net.IP, error) {
			var ips []net.IP
			for _, s := range localIPs {
				ips = append(ips, net.ParseIP(s))
			}
			return ips, nil
		},
	})
	f.cache = NewSnapshotCache(SnapshotConfig{
		Listener: l,
		Fetcher:  f.fetcher,
		Clock:    f.clock,
		Warmup:   -1,
	})
	return f
}

func (f *snapshotFixture) peer(id, ip string, channels ...domain.Channel) {
	announce(f.net, id, ip, 8080, nil)
	f.fetcher.mu.Lock()
	f.fetcher.channels[BaseURL(net.ParseIP(ip), 8080)] = channels
	f.fetcher.mu.Unlock()
}

func (f *snapshotFixture) setDown(ip string, down bool) {
	f.fetcher.mu.Lock()
	f.fetcher.down[BaseURL(net.ParseIP(ip), 8080)] = down
	f.fetcher.mu.Unlock()
}

func ids(peers []PeerSnapshot) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.ID)
	}
	return out
}

func TestSnapshot_EnrichesAndFiltersUnreachable(t *testing.T) {
	f := newSnapshotFixture(t)
	f.peer("b", "10.0.0.2", domain.Channel{ID: "c1", Name: "Science", Version: 3})
	f.peer("c", "10.0.0.3")
	f.peer("a", "10.0.0.1")
	f.setDown("10.0.0.3", true)

	peers, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(peers))
	assert.Equal(t, []domain.Channel{{ID: "c1", Name: "Science", Version: 3}}, peers[1].Channels)
	assert.NotNil(t, peers[0].Channels, "reachable peer with no channels has an empty list")
}

func TestSnapshot_CacheHitWithinTTL(t *testing.T) {
	f := newSnapshotFixture(t)
	f.peer("a", "10.0.0.1", domain.Channel{ID: "c1"})

	first, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	calls := f.fetcher.calls.Load()
	assert.Equal(t, f.clock.Now().Add(DefaultSnapshotTTL), f.state.SnapshotExpiry())

	// Table changes inside the TTL are not visible.
	f.peer("b", "10.0.0.2")
	f.clock.Add(19 * time.Second)

	second, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, calls, f.fetcher.calls.Load(), "cache hit performs no network calls")

	b1, _ := json.Marshal(first)
	b2, _ := json.Marshal(second)
	assert.Equal(t, b1, b2)

	f.clock.Add(2 * time.Second)
	third, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(third))
	assert.Greater(t, f.fetcher.calls.Load(), calls)
}

func TestSnapshot_ResultsAreCopies(t *testing.T) {
	f := newSnapshotFixture(t)
	f.peer("a", "10.0.0.1", domain.Channel{ID: "c1"})

	first, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	first[0].Channels[0].ID = "mutated"
	first[0].ID = "mutated"

	second, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "a", second[0].ID)
	assert.Equal(t, "c1", second[0].Channels[0].ID)
}

func TestSnapshot_ExcludeLocal(t *testing.T) {
	f := newSnapshotFixture(t, "10.0.0.1")
	f.peer("a", "10.0.0.1")
	f.peer("b", "10.0.0.2")

	all, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(all))

	remote, err := f.cache.List(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(remote), "a cached list with local peers is not reused")
}

func TestSnapshot_SelfIsNotEnriched(t *testing.T) {
	f := newSnapshotFixture(t)
	a := NewAdvertiser(AdvertiserConfig{Transport: f.net.Join(net.ParseIP("10.0.0.1")), State: f.state})
	_, err := a.Register(context.Background(), "node-a", 8080, map[string]any{"version": "1.0"})
	require.NoError(t, err)
	f.peer("node-b", "10.0.0.2", domain.Channel{ID: "c1"})

	peers, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, []string{"node-a", "node-b"}, ids(peers))
	assert.True(t, peers[0].Self)
	assert.Nil(t, peers[0].Channels)
	assert.Equal(t, int32(1), f.fetcher.calls.Load(), "only the other peer is probed")
}

func TestSnapshot_EmptyChannelsSurviveCopyAndJSON(t *testing.T) {
	f := newSnapshotFixture(t)
	a := NewAdvertiser(AdvertiserConfig{Transport: f.net.Join(net.ParseIP("10.0.0.1")), State: f.state})
	_, err := a.Register(context.Background(), "node-a", 8080, nil)
	require.NoError(t, err)
	f.peer("node-b", "10.0.0.2")

	// The second call is served from the cache, through another copy.
	for i := 0; i < 2; i++ {
		peers, err := f.cache.List(context.Background(), true)
		require.NoError(t, err)
		require.Equal(t, []string{"node-a", "node-b"}, ids(peers))
		assert.Nil(t, peers[0].Channels)
		require.NotNil(t, peers[1].Channels)
		assert.Empty(t, peers[1].Channels)

		var self, other map[string]any
		b, err := json.Marshal(peers[0])
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &self))
		b, err = json.Marshal(peers[1])
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &other))
		assert.Contains(t, self, "channels")
		assert.Nil(t, self["channels"])
		assert.Equal(t, []any{}, other["channels"])
	}
}

func TestSnapshot_Retrieve(t *testing.T) {
	f := newSnapshotFixture(t)
	f.peer("a", "10.0.0.1", domain.Channel{ID: "c1"})
	f.peer("gone", "10.0.0.9")
	f.setDown("10.0.0.9", true)

	p, err := f.cache.Retrieve(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080/", p.BaseURL)

	_, err = f.cache.Retrieve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPeerNotFound)
	_, err = f.cache.Retrieve(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestSnapshot_Invalidate(t *testing.T) {
	f := newSnapshotFixture(t)
	f.peer("a", "10.0.0.1")

	_, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	f.peer("b", "10.0.0.2")

	f.cache.Invalidate()
	assert.True(t, f.state.SnapshotExpiry().IsZero())

	peers, err := f.cache.List(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(peers))
}

func TestSnapshot_ConcurrentMissesShareOneComputation(t *testing.T) {
	f := newSnapshotFixture(t)
	f.peer("a", "10.0.0.1")
	f.peer("b", "10.0.0.2")
	f.fetcher.gate = make(chan struct{})

	var wg sync.WaitGroup
	results := make([][]PeerSnapshot, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			peers, err := f.cache.List(context.Background(), true)
			assert.NoError(t, err)
			results[i] = peers
		}(i)
	}

	require.Eventually(t, func() bool { return f.fetcher.calls.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.fetcher.gate)
	wg.Wait()

	assert.Equal(t, int32(2), f.fetcher.calls.Load())
	for _, r := range results {
		assert.Equal(t, []string{"a", "b"}, ids(r))
	}
}

func TestSnapshot_Warmup(t *testing.T) {
	f := newSnapshotFixture(t)
	cache := NewSnapshotCache(SnapshotConfig{
		Listener: f.cache.listener,
		Fetcher:  f.fetcher,
		Clock:    f.clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.List(ctx, true)
	assert.ErrorIs(t, err, context.Canceled, "warm-up is bounded by the context")

	f.peer("a", "10.0.0.1")
	done := make(chan []PeerSnapshot, 1)
	go func() {
		peers, _ := cache.List(context.Background(), true)
		done <- peers
	}()

	select {
	case <-done:
		t.Fatal("List returned before the warm-up elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	f.clock.Add(DefaultWarmup)
	select {
	case peers := <-done:
		assert.Equal(t, []string{"a"}, ids(peers))
	case <-time.After(time.Second):
		t.Fatal("List blocked past the warm-up")
	}
}
