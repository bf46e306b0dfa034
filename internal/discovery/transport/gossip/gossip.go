// Package gossip implements the discovery transport over a memberlist
// gossip cluster. Each member carries its announcements as node metadata,
// which lets discovery span networks where multicast is filtered.
package gossip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
)

// updateTimeout bounds how long metadata updates wait for broadcast.
const updateTimeout = 5 * time.Second

// ErrMetaTooLarge is returned when the announcements do not fit in the
// member metadata.
var ErrMetaTooLarge = errors.New("gossip: announcements exceed metadata limit")

// Config configures the gossip transport.
type Config struct {
	// NodeName is the unique member name. Defaults to "<hostname>-<port>".
	NodeName string

	// BindAddr is the address to bind for gossip communication.
	BindAddr string

	// BindPort is the port to bind for gossip communication.
	BindPort int

	// Seeds are the initial members to join.
	Seeds []string

	Logger *slog.Logger
}

// wireAnnouncement is the metadata encoding of an announcement.
type wireAnnouncement struct {
	Name string            `json:"n"`
	Host string            `json:"h,omitempty"`
	Addr string            `json:"a"`
	Port int               `json:"p"`
	Text map[string][]byte `json:"t,omitempty"`
}

// Transport is a memberlist-backed transport.
type Transport struct {
	ml     *memberlist.Memberlist
	logger *slog.Logger

	mu     sync.Mutex
	local  map[string]wireAnnouncement
	nodes  map[string][]wireAnnouncement
	subs   map[*subscriber]struct{}
	closed bool
	done   chan struct{}
}

type subscriber struct {
	serviceType string
	handler     transport.Handler
}

var _ transport.Transport = (*Transport)(nil)

// New creates the memberlist and joins the seeds.
func New(cfg Config) (*Transport, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NodeName == "" {
		host, _ := os.Hostname()
		cfg.NodeName = host + "-" + strconv.Itoa(cfg.BindPort)
	}

	t := &Transport{
		logger: cfg.Logger.With("transport", "gossip"),
		local:  make(map[string]wireAnnouncement),
		nodes:  make(map[string][]wireAnnouncement),
		subs:   make(map[*subscriber]struct{}),
		done:   make(chan struct{}),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeName
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	mlConfig.BindPort = cfg.BindPort
	if cfg.BindPort != 0 {
		mlConfig.AdvertisePort = cfg.BindPort
	}
	mlConfig.Delegate = &metadataDelegate{t: t}
	mlConfig.Events = &eventDelegate{t: t}
	mlConfig.LogOutput = nil
	mlConfig.Logger = newHCLogger(cfg.Logger, "memberlist").StandardLogger(nil)

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	t.ml = ml

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			_ = ml.Shutdown()
			return nil, fmt.Errorf("join seed nodes: %w", err)
		}
		t.logger.Info("joined gossip cluster",
			"node", cfg.NodeName,
			"seeds", cfg.Seeds,
			"joined_count", n)
	} else {
		t.logger.Info("started gossip transport (bootstrap mode)", "node", cfg.NodeName)
	}
	return t, nil
}

// Members returns the number of live members, including this one.
func (t *Transport) Members() int {
	return t.ml.NumMembers()
}

// Register implements transport.Transport. The ttl is not used: gossip
// failure detection expires announcements of dead members.
func (t *Transport) Register(ctx context.Context, a transport.Announcement, _ time.Duration) (transport.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	self := t.ml.LocalNode().Name
	w := toWire(a, t.ml.LocalNode().Addr)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	if _, ok := t.local[a.Name]; ok {
		t.mu.Unlock()
		return nil, transport.ErrNameConflict
	}
	for node, anns := range t.nodes {
		if node == self {
			continue
		}
		for _, other := range anns {
			if other.Name == a.Name {
				t.mu.Unlock()
				return nil, transport.ErrNameConflict
			}
		}
	}
	t.local[a.Name] = w
	if len(t.encodeLocalLocked()) > memberlist.MetaMaxSize {
		delete(t.local, a.Name)
		t.mu.Unlock()
		return nil, ErrMetaTooLarge
	}
	t.mu.Unlock()

	if err := t.ml.UpdateNode(updateTimeout); err != nil {
		t.mu.Lock()
		delete(t.local, a.Name)
		t.mu.Unlock()
		return nil, fmt.Errorf("gossip update node: %w", err)
	}

	t.logger.Info("service registered", "name", a.Name, "addr", w.Addr, "port", w.Port)
	return &registration{t: t, name: a.Name}, nil
}

// Browse implements transport.Transport.
func (t *Transport) Browse(ctx context.Context, serviceType string, h transport.Handler) error {
	s := &subscriber{serviceType: serviceType, handler: h}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.subs[s] = struct{}{}
	var existing []transport.Announcement
	for _, anns := range t.nodes {
		for _, w := range anns {
			if transport.InstanceName(w.Name, serviceType) != "" {
				if a, ok := fromWire(w); ok {
					existing = append(existing, a)
				}
			}
		}
	}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.subs, s)
		t.mu.Unlock()
	}()

	for _, a := range existing {
		h.Observed(a)
	}

	select {
	case <-ctx.Done():
	case <-t.done:
	}
	return nil
}

// Close implements transport.Transport. It leaves the cluster gracefully
// so peers see the announcements withdrawn immediately.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.local = make(map[string]wireAnnouncement)
	close(t.done)
	t.mu.Unlock()

	if err := t.ml.Leave(updateTimeout); err != nil {
		t.logger.Warn("failed to leave gossip cluster", "error", err)
	}
	if err := t.ml.Shutdown(); err != nil {
		return fmt.Errorf("shutdown memberlist: %w", err)
	}
	t.logger.Info("gossip transport shutdown complete")
	return nil
}

func (t *Transport) withdraw(name string) error {
	t.mu.Lock()
	if _, ok := t.local[name]; !ok || t.closed {
		t.mu.Unlock()
		return nil
	}
	delete(t.local, name)
	t.mu.Unlock()

	if err := t.ml.UpdateNode(updateTimeout); err != nil {
		return fmt.Errorf("gossip update node: %w", err)
	}
	t.logger.Info("service withdrawn", "name", name)
	return nil
}

// encodeLocalLocked must be called with mu held.
func (t *Transport) encodeLocalLocked() []byte {
	anns := make([]wireAnnouncement, 0, len(t.local))
	for _, w := range t.local {
		anns = append(anns, w)
	}
	sort.Slice(anns, func(i, j int) bool { return anns[i].Name < anns[j].Name })
	data, err := json.Marshal(anns)
	if err != nil {
		return nil
	}
	return data
}

// nodeChanged applies the metadata of node and notifies subscribers.
func (t *Transport) nodeChanged(node *memberlist.Node, left bool) {
	var anns []wireAnnouncement
	if !left && len(node.Meta) > 0 {
		if err := json.Unmarshal(node.Meta, &anns); err != nil {
			t.logger.Warn("dropping malformed member metadata", "node", node.Name, "error", err)
			anns = nil
		}
	}

	current := make(map[string]struct{}, len(anns))
	for _, w := range anns {
		current[w.Name] = struct{}{}
	}

	t.mu.Lock()
	previous := t.nodes[node.Name]
	if len(anns) == 0 {
		delete(t.nodes, node.Name)
	} else {
		t.nodes[node.Name] = anns
	}
	// A name this node dropped may still be announced by another member
	// during a join race; that holder replaces it instead of a withdrawal.
	var gone []string
	var replaced []wireAnnouncement
	for _, w := range previous {
		if _, ok := current[w.Name]; ok {
			continue
		}
		if holder, ok := t.holderLocked(w.Name); ok {
			replaced = append(replaced, holder)
		} else {
			gone = append(gone, w.Name)
		}
	}
	subs := make([]*subscriber, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	observed := append(replaced, anns...)
	for _, s := range subs {
		for _, name := range gone {
			if transport.InstanceName(name, s.serviceType) != "" {
				s.handler.Withdrawn(name)
			}
		}
		for _, w := range observed {
			if transport.InstanceName(w.Name, s.serviceType) == "" {
				continue
			}
			a, ok := fromWire(w)
			if !ok {
				t.logger.Debug("announcement without address dropped", "name", w.Name)
				continue
			}
			s.handler.Observed(a)
		}
	}
}

// holderLocked returns an announcement of name by any known member.
// Must be called with mu held.
func (t *Transport) holderLocked(name string) (wireAnnouncement, bool) {
	for _, anns := range t.nodes {
		for _, w := range anns {
			if w.Name == name {
				return w, true
			}
		}
	}
	return wireAnnouncement{}, false
}

func toWire(a transport.Announcement, fallback net.IP) wireAnnouncement {
	addr := a.Addr
	if addr == nil {
		addr = fallback
	}
	w := wireAnnouncement{Name: a.Name, Host: a.Host, Port: a.Port, Text: a.Text}
	if addr != nil {
		w.Addr = addr.String()
	}
	return w
}

func fromWire(w wireAnnouncement) (transport.Announcement, bool) {
	ip := net.ParseIP(w.Addr)
	if ip == nil {
		return transport.Announcement{}, false
	}
	return transport.Announcement{
		Name: w.Name,
		Host: w.Host,
		Addr: ip,
		Port: w.Port,
		Text: w.Text,
	}.Clone(), true
}

type registration struct {
	t    *Transport
	name string
	once sync.Once
	err  error
}

func (r *registration) Withdraw() error {
	r.once.Do(func() {
		r.err = r.t.withdraw(r.name)
	})
	return r.err
}

// eventDelegate implements memberlist.EventDelegate.
type eventDelegate struct {
	t *Transport
}

// NotifyJoin is called when a node joins.
func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	e.t.logger.Debug("member joined", "node", node.Name, "addr", node.Addr.String())
	e.t.nodeChanged(node, false)
}

// NotifyLeave is called when a node leaves or is declared dead.
func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	e.t.logger.Debug("member left", "node", node.Name, "addr", node.Addr.String())
	e.t.nodeChanged(node, true)
}

// NotifyUpdate is called when a node's metadata changes.
func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.t.logger.Debug("member updated", "node", node.Name)
	e.t.nodeChanged(node, false)
}

// metadataDelegate publishes the local announcements as node metadata.
type metadataDelegate struct {
	t *Transport
}

// NodeMeta returns the encoded announcements (up to limit bytes).
func (m *metadataDelegate) NodeMeta(limit int) []byte {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	if len(m.t.local) == 0 {
		return nil
	}
	data := m.t.encodeLocalLocked()
	if len(data) > limit {
		return nil
	}
	return data
}

// NotifyMsg is called when a user message is received (not used).
func (m *metadataDelegate) NotifyMsg([]byte) {}

// GetBroadcasts is called to get broadcasts to send (not used).
func (m *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState returns the local state for synchronization (not used).
func (m *metadataDelegate) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState merges remote state (not used).
func (m *metadataDelegate) MergeRemoteState(buf []byte, join bool) {
}
