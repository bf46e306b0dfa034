// Package memnet is an in-process announcement network.
//
// Every Transport joined to the same Network sees the same announcements,
// and name conflicts are detected exactly. It backs tests and the
// "memory" discovery transport for single-host use.
package memnet

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
)

// Network is a simulated local network.
type Network struct {
	mu    sync.Mutex
	anns  map[string]*entry
	subs  map[*subscriber]struct{}
	order []string
}

type entry struct {
	owner *Transport
	ann   transport.Announcement
}

type subscriber struct {
	serviceType string
	handler     transport.Handler
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		anns: make(map[string]*entry),
		subs: make(map[*subscriber]struct{}),
	}
}

// Join attaches a new transport whose default address is ip.
func (n *Network) Join(ip net.IP) *Transport {
	if ip == nil {
		ip = net.IPv4(127, 0, 0, 1)
	}
	return &Transport{
		network: n,
		ip:      ip,
		done:    make(chan struct{}),
	}
}

// Announce publishes an announcement that no transport owns, as a peer
// outside this process would. An existing announcement with the same name
// is replaced.
func (n *Network) Announce(a transport.Announcement) {
	a = a.Clone()
	n.mu.Lock()
	if _, ok := n.anns[a.Name]; !ok {
		n.order = append(n.order, a.Name)
	}
	n.anns[a.Name] = &entry{ann: a}
	subs := n.matching(a.Name)
	n.mu.Unlock()

	for _, s := range subs {
		s.handler.Observed(a.Clone())
	}
}

// Withdraw removes an announcement regardless of owner, as an expiry would.
func (n *Network) Withdraw(name string) {
	n.remove(name, nil, true)
}

// Names returns the currently announced names in announcement order.
func (n *Network) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.order...)
}

// Subscribers returns the number of active browsers.
func (n *Network) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *Network) register(owner *Transport, a transport.Announcement) error {
	n.mu.Lock()
	if _, ok := n.anns[a.Name]; ok {
		n.mu.Unlock()
		return transport.ErrNameConflict
	}
	n.anns[a.Name] = &entry{owner: owner, ann: a}
	n.order = append(n.order, a.Name)
	subs := n.matching(a.Name)
	n.mu.Unlock()

	for _, s := range subs {
		s.handler.Observed(a.Clone())
	}
	return nil
}

// remove deletes name when owned by owner, or unconditionally when force is set.
func (n *Network) remove(name string, owner *Transport, force bool) {
	n.mu.Lock()
	e, ok := n.anns[name]
	if !ok || (!force && e.owner != owner) {
		n.mu.Unlock()
		return
	}
	delete(n.anns, name)
	for i, nm := range n.order {
		if nm == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	subs := n.matching(name)
	n.mu.Unlock()

	for _, s := range subs {
		s.handler.Withdrawn(name)
	}
}

// matching must be called with mu held.
func (n *Network) matching(name string) []*subscriber {
	var out []*subscriber
	for s := range n.subs {
		if transport.InstanceName(name, s.serviceType) != "" {
			out = append(out, s)
		}
	}
	return out
}

func (n *Network) subscribe(s *subscriber) []transport.Announcement {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[s] = struct{}{}
	var existing []transport.Announcement
	for _, name := range n.order {
		if transport.InstanceName(name, s.serviceType) != "" {
			existing = append(existing, n.anns[name].ann.Clone())
		}
	}
	return existing
}

func (n *Network) unsubscribe(s *subscriber) {
	n.mu.Lock()
	delete(n.subs, s)
	n.mu.Unlock()
}

// Transport is one participant on a Network.
type Transport struct {
	network *Network
	ip      net.IP

	mu     sync.Mutex
	owned  map[string]struct{}
	closed bool
	done   chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// Register implements transport.Transport. The ttl is ignored; memnet
// announcements live until withdrawn.
func (t *Transport) Register(ctx context.Context, a transport.Announcement, _ time.Duration) (transport.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	t.mu.Unlock()

	a = a.Clone()
	if a.Addr == nil {
		a.Addr = append(net.IP(nil), t.ip...)
	}
	if err := t.network.register(t, a); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.owned == nil {
		t.owned = make(map[string]struct{})
	}
	t.owned[a.Name] = struct{}{}
	t.mu.Unlock()

	return &registration{t: t, name: a.Name}, nil
}

// Browse implements transport.Transport. Existing announcements are
// replayed before live events.
func (t *Transport) Browse(ctx context.Context, serviceType string, h transport.Handler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.mu.Unlock()

	s := &subscriber{serviceType: serviceType, handler: h}
	for _, a := range t.network.subscribe(s) {
		h.Observed(a)
	}
	defer t.network.unsubscribe(s)

	select {
	case <-ctx.Done():
	case <-t.done:
	}
	return nil
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	names := make([]string, 0, len(t.owned))
	for name := range t.owned {
		names = append(names, name)
	}
	t.owned = nil
	close(t.done)
	t.mu.Unlock()

	for _, name := range names {
		t.network.remove(name, t, false)
	}
	return nil
}

type registration struct {
	t    *Transport
	name string
	once sync.Once
}

func (r *registration) Withdraw() error {
	r.once.Do(func() {
		r.t.mu.Lock()
		delete(r.t.owned, r.name)
		r.t.mu.Unlock()
		r.t.network.remove(r.name, r.t, false)
	})
	return nil
}
