package discovery

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
	"github.com/yndnr/peerscout-go/internal/discovery/transport/memnet"
)

func newAdvertiser(n *memnet.Network, ip string) (*Advertiser, *State) {
	state := NewState()
	return NewAdvertiser(AdvertiserConfig{
		Transport: n.Join(net.ParseIP(ip)),
		State:     state,
	}), state
}

func TestAdvertiser_CollisionSuffix(t *testing.T) {
	n := memnet.NewNetwork()
	a, stateA := newAdvertiser(n, "10.0.0.1")
	b, stateB := newAdvertiser(n, "10.0.0.2")
	c, _ := newAdvertiser(n, "10.0.0.3")

	id, err := a.Register(context.Background(), "node-a", 8080, map[string]any{"version": "1.0"})
	require.NoError(t, err)
	assert.Equal(t, "node-a", id)

	id, err = b.Register(context.Background(), "node-a", 8080, nil)
	require.NoError(t, err)
	assert.Equal(t, "node-a-2", id)

	id, err = c.Register(context.Background(), "node-a", 8080, nil)
	require.NoError(t, err)
	assert.Equal(t, "node-a-3", id)

	assert.Equal(t, "node-a", stateA.SelfID())
	assert.Equal(t, "node-a-2", stateB.SelfID())
	assert.Equal(t, "node-a-2", b.ID())
}

func TestAdvertiser_TooManyAttempts(t *testing.T) {
	n := memnet.NewNetwork()
	announce(n, "busy", "10.0.0.9", 1, nil)
	for i := 2; i < MaxRegisterAttempts; i++ {
		announce(n, fmt.Sprintf("busy-%d", i), "10.0.0.9", 1, nil)
	}

	a, _ := newAdvertiser(n, "10.0.0.1")
	id, err := a.Register(context.Background(), "busy", 8080, nil)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("busy-%d", MaxRegisterAttempts), id)

	b, state := newAdvertiser(n, "10.0.0.2")
	_, err = b.Register(context.Background(), "busy", 8080, nil)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Empty(t, state.SelfID())
}

func TestAdvertiser_MaxAttemptsConfig(t *testing.T) {
	n := memnet.NewNetwork()
	announce(n, "x", "10.0.0.9", 1, nil)
	announce(n, "x-2", "10.0.0.9", 1, nil)

	a := NewAdvertiser(AdvertiserConfig{Transport: n.Join(nil), MaxAttempts: 2})
	_, err := a.Register(context.Background(), "x", 8080, nil)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestAdvertiser_Contract(t *testing.T) {
	n := memnet.NewNetwork()
	a, state := newAdvertiser(n, "10.0.0.1")

	assert.ErrorIs(t, a.Unregister(), ErrNotRegistered)

	_, err := a.Register(context.Background(), "node-a", 8080, nil)
	require.NoError(t, err)

	_, err = a.Register(context.Background(), "node-b", 8080, nil)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	require.NoError(t, a.Unregister())
	assert.Empty(t, n.Names())
	assert.Empty(t, state.SelfID())
	assert.ErrorIs(t, a.Unregister(), ErrNotRegistered)
}

func TestAdvertiser_CloseWithdrawsOnce(t *testing.T) {
	n := memnet.NewNetwork()
	a, state := newAdvertiser(n, "10.0.0.1")
	rec := &countingHandler{}
	cancel := browseWith(t, n, rec)
	defer cancel()

	_, err := a.Register(context.Background(), "node-a", 8080, nil)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.Empty(t, n.Names())
	assert.Empty(t, state.SelfID())
	assert.Equal(t, int32(1), rec.withdrawn.Load())

	_, err = a.Register(context.Background(), "node-a", 8080, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAdvertiser_InvalidID(t *testing.T) {
	tests := []string{"", "has.dot", "has space and a very long label that goes beyond the sixty three octet limit of dns"}

	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			a, _ := newAdvertiser(memnet.NewNetwork(), "10.0.0.1")
			_, err := a.Register(context.Background(), id, 8080, nil)
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}
}

func TestAdvertiser_EncodesProperties(t *testing.T) {
	n := memnet.NewNetwork()
	rec := &countingHandler{}
	cancel := browseWith(t, n, rec)
	defer cancel()

	a, _ := newAdvertiser(n, "10.0.0.1")
	_, err := a.Register(context.Background(), "node-a", 8080, map[string]any{"version": "1.2.0", "n": 3})
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.last.Text, 2)
	assert.Equal(t, `"1.2.0"`, string(rec.last.Text["version"]))
	assert.Equal(t, `3`, string(rec.last.Text["n"]))
	assert.Equal(t, "node-a.peerscout.local.", rec.last.Host)

	_, err = NewAdvertiser(AdvertiserConfig{Transport: n.Join(nil)}).
		Register(context.Background(), "node-b", 8080, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

var _ transport.Handler = (*countingHandler)(nil)
