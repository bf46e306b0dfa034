package domain

import (
	"crypto/rand"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultExpirationWindow is how long a probe outcome is trusted.
const DefaultExpirationWindow = 10 * time.Second

// DeviceInfo is the identity a peer reports from its info endpoint.
type DeviceInfo struct {
	Application     string `json:"application"`
	SoftwareVersion string `json:"software_version"`
	InstanceID      string `json:"instance_id"`
	DeviceName      string `json:"device_name"`
	OperatingSystem string `json:"operating_system"`
}

// Channel is one entry of a peer's available content listing.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// Location is a persisted peer address.
//
// Static locations are entered by an operator and get a generated id.
// Dynamic locations are learned from discovery and are keyed by the
// peer's own instance id.
type Location struct {
	ID       string `json:"id"`
	BaseURL  string `json:"base_url"`
	Nickname string `json:"nickname,omitempty"`

	Application     string `json:"application,omitempty"`
	SoftwareVersion string `json:"software_version,omitempty"`
	InstanceID      string `json:"instance_id,omitempty"`
	DeviceName      string `json:"device_name,omitempty"`
	OperatingSystem string `json:"operating_system,omitempty"`

	Added           time.Time  `json:"added"`
	LastAccessed    time.Time  `json:"last_accessed"`
	LastAvailable   *time.Time `json:"last_available,omitempty"`
	LastUnavailable *time.Time `json:"last_unavailable,omitempty"`

	Dynamic bool `json:"dynamic"`
}

// NewStaticLocation creates an operator-entered location with a fresh id.
func NewStaticLocation(baseURL, nickname string, now time.Time) (*Location, error) {
	id, err := GenerateLocationID(now)
	if err != nil {
		return nil, err
	}
	loc := &Location{
		ID:           id,
		BaseURL:      baseURL,
		Nickname:     nickname,
		Added:        now,
		LastAccessed: now,
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

// NewDynamicLocation creates a discovered location keyed by the peer's
// reported instance id.
func NewDynamicLocation(baseURL string, info DeviceInfo, now time.Time) (*Location, error) {
	loc := &Location{
		ID:           info.InstanceID,
		BaseURL:      baseURL,
		Added:        now,
		LastAccessed: now,
		Dynamic:      true,
	}
	loc.ApplyInfo(info)
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

// GenerateLocationID returns a lowercase ULID.
func GenerateLocationID(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return strings.ToLower(id.String()), nil
}

// Validate checks the location invariants.
func (l *Location) Validate() error {
	if l.BaseURL == "" {
		return ErrBaseURLRequired
	}
	u, err := url.Parse(l.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidBaseURL.WithDetails(l.BaseURL)
	}
	if !l.Dynamic {
		return nil
	}
	if l.InstanceID == "" {
		return ErrInstanceIDRequired
	}
	if l.ID != "" && l.ID != l.InstanceID {
		return ErrInstanceIDMismatch.WithDetails("id: " + l.ID + ", instance_id: " + l.InstanceID)
	}
	return nil
}

// ApplyInfo overwrites the self-reported fields.
func (l *Location) ApplyInfo(info DeviceInfo) {
	l.Application = info.Application
	l.SoftwareVersion = info.SoftwareVersion
	l.InstanceID = info.InstanceID
	l.DeviceName = info.DeviceName
	l.OperatingSystem = info.OperatingSystem
}

// MarkAvailable records a successful probe.
func (l *Location) MarkAvailable(info DeviceInfo, now time.Time) {
	l.ApplyInfo(info)
	t := now
	l.LastAvailable = &t
}

// MarkUnavailable records a failed probe.
func (l *Location) MarkUnavailable(now time.Time) {
	t := now
	l.LastUnavailable = &t
}

// Availability is the state derived from the probe timestamps.
type Availability int

const (
	// NeedsProbe means no outcome inside the window can be trusted.
	NeedsProbe Availability = iota
	// RecentlyAvailable means a fresh positive probe is on record.
	RecentlyAvailable
	// RecentlyUnavailable means a fresh negative probe is on record.
	RecentlyUnavailable
)

func (a Availability) String() string {
	switch a {
	case RecentlyAvailable:
		return "available"
	case RecentlyUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Availability evaluates the cached probe outcomes at now.
// An absent timestamp never counts as recent.
func (l *Location) Availability(now time.Time, window time.Duration) Availability {
	expiry := now.Add(-window)
	availableRecently := l.LastAvailable != nil && l.LastAvailable.After(expiry)
	unavailableRecently := l.LastUnavailable != nil && l.LastUnavailable.After(expiry)

	if availableRecently && (l.LastUnavailable == nil || l.LastAvailable.After(*l.LastUnavailable)) {
		return RecentlyAvailable
	}
	if unavailableRecently {
		return RecentlyUnavailable
	}
	return NeedsProbe
}

// Clone returns a deep copy.
func (l *Location) Clone() *Location {
	c := *l
	if l.LastAvailable != nil {
		t := *l.LastAvailable
		c.LastAvailable = &t
	}
	if l.LastUnavailable != nil {
		t := *l.LastUnavailable
		c.LastUnavailable = &t
	}
	return &c
}
