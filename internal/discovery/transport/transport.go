// Package transport abstracts the local-network announcement medium used
// for peer discovery.
//
// A Transport publishes announcements for this process and delivers
// observed/withdrawn events for every announcement of a service type.
// Implementations live in subpackages: mdns (multicast DNS), gossip
// (memberlist) and memnet (in-process, for tests and single-host use).
package transport

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

var (
	// ErrNameConflict is returned by Register when the name is already
	// announced by another registrant.
	ErrNameConflict = errors.New("transport: name already announced")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: closed")
)

// Announcement is one service announcement.
type Announcement struct {
	// Name is the fully-qualified service instance name, "<id>.<service-type>".
	Name string

	// Host is the announced host name, "<id>.<local-domain>.".
	Host string

	// Addr is the announced address. On Register a nil Addr means the
	// address of the outgoing interface.
	Addr net.IP

	Port int

	// Text carries opaque metadata values.
	Text map[string][]byte
}

// Clone returns a copy that shares no mutable state with a.
func (a Announcement) Clone() Announcement {
	c := a
	if a.Addr != nil {
		c.Addr = append(net.IP(nil), a.Addr...)
	}
	if a.Text != nil {
		c.Text = make(map[string][]byte, len(a.Text))
		for k, v := range a.Text {
			c.Text[k] = append([]byte(nil), v...)
		}
	}
	return c
}

// Handler receives announcement events. Implementations must be safe for
// concurrent use.
type Handler interface {
	Observed(a Announcement)
	Withdrawn(name string)
}

// Registration is an active announcement.
type Registration interface {
	// Withdraw removes the announcement. Calling it more than once is a no-op.
	Withdraw() error
}

// Transport publishes and browses announcements.
type Transport interface {
	// Register publishes a. It returns ErrNameConflict when a.Name is
	// already announced by someone else.
	Register(ctx context.Context, a Announcement, ttl time.Duration) (Registration, error)

	// Browse delivers events for serviceType to h until ctx is done.
	Browse(ctx context.Context, serviceType string, h Handler) error

	// Close withdraws every registration and releases resources.
	Close() error
}

// SplitServiceType splits "_svc._tcp.local." into ("_svc._tcp", "local.").
func SplitServiceType(serviceType string) (service, domain string) {
	st := strings.TrimSuffix(serviceType, ".")
	i := strings.LastIndex(st, ".")
	if i < 0 {
		return st, "local."
	}
	return st[:i], st[i+1:] + "."
}

// InstanceName returns the instance label of name for serviceType, or ""
// when name does not belong to serviceType.
func InstanceName(name, serviceType string) string {
	name = strings.TrimSuffix(name, ".")
	st := strings.TrimSuffix(serviceType, ".")
	suffix := "." + st
	if !strings.HasSuffix(name, suffix) {
		return ""
	}
	return strings.TrimSuffix(name, suffix)
}

// OutboundIP returns the address of the interface used for outgoing
// traffic. It falls back to loopback when no route exists.
func OutboundIP() net.IP {
	conn, err := net.Dial("udp4", "224.0.0.251:5353")
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP
	}
	return net.IPv4(127, 0, 0, 1)
}
