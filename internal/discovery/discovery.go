// Package discovery finds other PeerScout instances on the local network.
//
// An Advertiser announces this instance under a unique name, a Listener
// keeps the live table of announced peers, and a SnapshotCache serves
// short-lived, enriched and reachability-filtered views of that table.
// All three share one State created at startup. Manager wires them to a
// transport.Transport.
package discovery

import (
	"encoding/json"
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/discovery/transport"
)

// Defaults.
const (
	ServiceType = "_peerscout._tcp.local."
	LocalDomain = "peerscout.local"

	DefaultAnnounceTTL  = 60 * time.Second
	MaxRegisterAttempts = 100
	DefaultSnapshotTTL  = 20 * time.Second
	DefaultWarmup       = 3 * time.Second
)

var (
	// ErrPeerNotFound is returned when a peer is not in the snapshot.
	ErrPeerNotFound = errors.New("discovery: peer not found")

	// ErrAlreadyRegistered is returned by Register on a registered advertiser.
	ErrAlreadyRegistered = errors.New("discovery: service is already registered")

	// ErrNotRegistered is returned by Unregister on an idle advertiser.
	ErrNotRegistered = errors.New("discovery: service is not registered")

	// ErrTooManyAttempts is returned when no free name was found within
	// MaxRegisterAttempts. It is a startup-fatal misconfiguration.
	ErrTooManyAttempts = errors.New("discovery: no unique service name available")

	// ErrInvalidID is returned when an id does not form a valid DNS name.
	ErrInvalidID = errors.New("discovery: invalid instance id")

	// ErrClosed is returned by operations on a closed component.
	ErrClosed = errors.New("discovery: closed")
)

// ServiceName returns the announced service name for id.
func ServiceName(id string) string {
	return id + "." + ServiceType
}

// HostName returns the announced host name for id.
func HostName(id string) string {
	return id + "." + LocalDomain + "."
}

// Peer is one entry of the live peer table.
type Peer struct {
	ID      string         `json:"id"`
	IP      string         `json:"ip"`
	Port    int            `json:"port"`
	Host    string         `json:"host"`
	BaseURL string         `json:"base_url"`
	Local   bool           `json:"local"`
	Self    bool           `json:"self"`
	Data    map[string]any `json:"data"`
}

// Clone returns a deep copy of p.
func (p Peer) Clone() Peer {
	c := p
	if p.Data != nil {
		c.Data = cloneValue(p.Data).(map[string]any)
	}
	return c
}

// PeerSnapshot is a Peer enriched with its available channels.
// Channels is nil (JSON null) for this instance's own entry and non-nil
// for every enriched peer, even one with no channels.
type PeerSnapshot struct {
	Peer
	Channels []domain.Channel `json:"channels"`
}

func (s PeerSnapshot) clone() PeerSnapshot {
	return PeerSnapshot{Peer: s.Peer.Clone(), Channels: slices.Clone(s.Channels)}
}

// BaseURL returns "http://<ip>:<port>/".
func BaseURL(ip net.IP, port int) string {
	return "http://" + net.JoinHostPort(ip.String(), strconv.Itoa(port)) + "/"
}

// encodeProperties JSON-encodes each property value.
func encodeProperties(props map[string]any) (map[string][]byte, error) {
	text := make(map[string][]byte, len(props))
	for k, v := range props {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		text[k] = b
	}
	return text, nil
}

// decodeProperties JSON-decodes each announced value.
func decodeProperties(text map[string][]byte) (map[string]any, error) {
	data := make(map[string]any, len(text))
	for k, raw := range text {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		data[k] = v
	}
	return data, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

func idFromName(name string) string {
	id := transport.InstanceName(name, ServiceType)
	if strings.Contains(id, ".") {
		return ""
	}
	return id
}
