package mdns

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
)

func TestSplitName(t *testing.T) {
	instance, service, domain, err := splitName("node-a._peerscout._tcp.local.")
	require.NoError(t, err)
	assert.Equal(t, "node-a", instance)
	assert.Equal(t, "_peerscout._tcp", service)
	assert.Equal(t, "local.", domain)

	_, _, _, err = splitName("nodots")
	assert.Error(t, err)
	_, _, _, err = splitName("._peerscout._tcp.local.")
	assert.Error(t, err)
}

func TestTextRoundTrip(t *testing.T) {
	in := map[string][]byte{
		"version": []byte(`"1.4.0"`),
		"extra":   []byte(`{"a=b":1}`),
	}
	txt := encodeText(in)
	sort.Strings(txt)
	assert.Equal(t, []string{`extra={"a=b":1}`, `version="1.4.0"`}, txt)
	assert.Equal(t, in, decodeText(append(txt, "=orphan")))
}

func TestToAnnouncement(t *testing.T) {
	e := zeroconf.NewServiceEntry("node-a", "_peerscout._tcp", "local.")
	e.HostName = "node-a.peerscout.local."
	e.Port = 8080
	e.Text = []string{"version=\"1\""}

	_, ok := toAnnouncement("node-a._peerscout._tcp.local.", e)
	assert.False(t, ok, "entry without address")

	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	a, ok := toAnnouncement("node-a._peerscout._tcp.local.", e)
	require.True(t, ok)
	assert.True(t, a.Addr.Equal(net.ParseIP("192.168.1.20")), "IPv4 preferred")
	assert.Equal(t, 8080, a.Port)
	assert.Equal(t, "node-a.peerscout.local.", a.Host)
	assert.Equal(t, []byte(`"1"`), a.Text["version"])
}

func TestNew_Defaults(t *testing.T) {
	tr := New(Config{})
	assert.Equal(t, DefaultBrowseInterval, tr.cfg.BrowseInterval)
	assert.Equal(t, DefaultLookupTimeout, tr.cfg.LookupTimeout)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
}

type withdrawals struct {
	mu    sync.Mutex
	names []string
}

func (w *withdrawals) Observed(transport.Announcement) {}

func (w *withdrawals) Withdrawn(name string) {
	w.mu.Lock()
	w.names = append(w.names, name)
	w.mu.Unlock()
}

func (w *withdrawals) get() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.names...)
}

// scriptRounds makes tr run the given rounds in order, then block until
// the browse is cancelled. Each started round is reported on the channel.
func scriptRounds(tr *Transport, rounds ...func() (map[string]struct{}, error)) <-chan int {
	started := make(chan int, len(rounds)+1)
	n := 0
	tr.round = func(ctx context.Context, _, _, _ string, _ transport.Handler) (map[string]struct{}, error) {
		n++
		started <- n
		if n > len(rounds) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return rounds[n-1]()
	}
	return started
}

func browse(t *testing.T, tr *Transport, h transport.Handler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Browse(ctx, "_peerscout._tcp.local.", h) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("Browse did not return after cancel")
		}
	})
	return cancel
}

func waitRound(t *testing.T, started <-chan int, want int) {
	t.Helper()
	select {
	case n := <-started:
		require.Equal(t, want, n)
	case <-time.After(time.Second):
		t.Fatalf("round %d did not start", want)
	}
}

func TestBrowse_FailedRoundRetriesAfterInterval(t *testing.T) {
	mock := clock.NewMock()
	tr := New(Config{BrowseInterval: 5 * time.Second, Clock: mock})
	defer tr.Close()
	errNoMulticast := errors.New("no multicast interface")
	started := scriptRounds(tr,
		func() (map[string]struct{}, error) { return nil, errNoMulticast },
		func() (map[string]struct{}, error) { return nil, errNoMulticast },
	)
	browse(t, tr, &withdrawals{})

	waitRound(t, started, 1)
	select {
	case n := <-started:
		t.Fatalf("round %d started before the interval elapsed", n)
	case <-time.After(50 * time.Millisecond):
	}

	mock.Add(5 * time.Second)
	waitRound(t, started, 2)

	time.Sleep(20 * time.Millisecond)
	mock.Add(5 * time.Second)
	waitRound(t, started, 3)
}

func TestBrowse_MissingFromRoundIsWithdrawn(t *testing.T) {
	tr := New(Config{Clock: clock.NewMock()})
	defer tr.Close()
	started := scriptRounds(tr,
		func() (map[string]struct{}, error) {
			return map[string]struct{}{"a": {}, "b": {}}, nil
		},
		func() (map[string]struct{}, error) {
			return map[string]struct{}{"a": {}}, nil
		},
	)
	h := &withdrawals{}
	browse(t, tr, h)

	waitRound(t, started, 1)
	waitRound(t, started, 2)
	waitRound(t, started, 3)
	assert.Equal(t, []string{"b"}, h.get())
}
