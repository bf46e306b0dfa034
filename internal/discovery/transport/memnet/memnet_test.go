package memnet

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
)

const svc = "_peerscout._tcp.local."

type recorder struct {
	mu        sync.Mutex
	observed  []transport.Announcement
	withdrawn []string
}

func (r *recorder) Observed(a transport.Announcement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed = append(r.observed, a)
}

func (r *recorder) Withdrawn(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawn = append(r.withdrawn, name)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observed), len(r.withdrawn)
}

func browse(t *testing.T, n *Network, tr *Transport, h transport.Handler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	before := n.Subscribers()
	go func() { _ = tr.Browse(ctx, svc, h) }()
	require.Eventually(t, func() bool { return n.Subscribers() > before }, time.Second, time.Millisecond)
	return cancel
}

func TestRegister_Conflict(t *testing.T) {
	n := NewNetwork()
	a := n.Join(net.ParseIP("10.0.0.1"))
	b := n.Join(net.ParseIP("10.0.0.2"))

	_, err := a.Register(context.Background(), transport.Announcement{Name: "x." + svc, Port: 1}, time.Minute)
	require.NoError(t, err)

	_, err = b.Register(context.Background(), transport.Announcement{Name: "x." + svc, Port: 2}, time.Minute)
	assert.ErrorIs(t, err, transport.ErrNameConflict)
}

func TestRegister_FillsAddress(t *testing.T) {
	n := NewNetwork()
	tr := n.Join(net.ParseIP("10.0.0.9"))
	rec := &recorder{}
	cancel := browse(t, n, n.Join(nil), rec)
	defer cancel()

	_, err := tr.Register(context.Background(), transport.Announcement{Name: "x." + svc, Port: 1}, time.Minute)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.observed, 1)
	assert.True(t, rec.observed[0].Addr.Equal(net.ParseIP("10.0.0.9")))
}

func TestBrowse_ReplayAndWithdraw(t *testing.T) {
	n := NewNetwork()
	tr := n.Join(nil)
	reg, err := tr.Register(context.Background(), transport.Announcement{Name: "x." + svc, Port: 1}, time.Minute)
	require.NoError(t, err)
	n.Announce(transport.Announcement{Name: "other._http._tcp.local.", Port: 2})

	rec := &recorder{}
	cancel := browse(t, n, n.Join(nil), rec)
	defer cancel()

	obs, wd := rec.counts()
	assert.Equal(t, 1, obs, "only matching service type is replayed")
	assert.Equal(t, 0, wd)

	require.NoError(t, reg.Withdraw())
	require.NoError(t, reg.Withdraw())
	_, wd = rec.counts()
	assert.Equal(t, 1, wd)
	assert.Equal(t, []string{"other._http._tcp.local."}, n.Names())
}

func TestClose_WithdrawsAndStopsBrowse(t *testing.T) {
	n := NewNetwork()
	tr := n.Join(nil)
	_, err := tr.Register(context.Background(), transport.Announcement{Name: "x." + svc, Port: 1}, time.Minute)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tr.Browse(context.Background(), svc, &recorder{}) }()
	require.Eventually(t, func() bool { return n.Subscribers() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Browse did not return after Close")
	}
	assert.Empty(t, n.Names())

	_, err = tr.Register(context.Background(), transport.Announcement{Name: "y." + svc}, time.Minute)
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestWithdraw_External(t *testing.T) {
	n := NewNetwork()
	rec := &recorder{}
	cancel := browse(t, n, n.Join(nil), rec)
	defer cancel()

	n.Announce(transport.Announcement{Name: "peer." + svc, Addr: net.ParseIP("10.0.0.3"), Port: 8080})
	n.Withdraw("peer." + svc)
	n.Withdraw("peer." + svc)

	obs, wd := rec.counts()
	assert.Equal(t, 1, obs)
	assert.Equal(t, 1, wd)
}
