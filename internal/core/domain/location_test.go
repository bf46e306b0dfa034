package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewStaticLocation(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	loc, err := NewStaticLocation("http://10.0.0.5:8080/", "kitchen", now)
	if err != nil {
		t.Fatalf("NewStaticLocation() error = %v", err)
	}
	if len(loc.ID) != 26 {
		t.Errorf("ID length = %d, want 26", len(loc.ID))
	}
	if loc.Dynamic {
		t.Error("static location should not be dynamic")
	}
	if !loc.Added.Equal(now) || !loc.LastAccessed.Equal(now) {
		t.Error("Added and LastAccessed should be set to now")
	}
	if loc.LastAvailable != nil || loc.LastUnavailable != nil {
		t.Error("probe timestamps should start absent")
	}
}

func TestNewStaticLocation_InvalidURL(t *testing.T) {
	_, err := NewStaticLocation("", "", time.Now())
	if !errors.Is(err, ErrBaseURLRequired) {
		t.Errorf("error = %v, want ErrBaseURLRequired", err)
	}
	_, err = NewStaticLocation("ftp://host/", "", time.Now())
	if !errors.Is(err, ErrInvalidBaseURL) {
		t.Errorf("error = %v, want ErrInvalidBaseURL", err)
	}
}

func TestNewDynamicLocation(t *testing.T) {
	info := DeviceInfo{
		Application:     "peerscout",
		SoftwareVersion: "1.2.0",
		InstanceID:      "abc123",
		DeviceName:      "pi",
		OperatingSystem: "linux",
	}
	loc, err := NewDynamicLocation("http://10.0.0.7:8080/", info, time.Now())
	if err != nil {
		t.Fatalf("NewDynamicLocation() error = %v", err)
	}
	if loc.ID != "abc123" || loc.InstanceID != "abc123" {
		t.Errorf("ID = %q, InstanceID = %q, want abc123", loc.ID, loc.InstanceID)
	}
	if !loc.Dynamic {
		t.Error("dynamic location should be dynamic")
	}
	if loc.DeviceName != "pi" {
		t.Errorf("DeviceName = %q, want pi", loc.DeviceName)
	}
}

func TestLocation_Validate(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		want error
	}{
		{"static ok", Location{BaseURL: "http://h:1/"}, nil},
		{"dynamic missing instance", Location{BaseURL: "http://h:1/", Dynamic: true}, ErrInstanceIDRequired},
		{"dynamic mismatch", Location{ID: "a", InstanceID: "b", BaseURL: "http://h:1/", Dynamic: true}, ErrInstanceIDMismatch},
		{"dynamic match", Location{ID: "a", InstanceID: "a", BaseURL: "http://h:1/", Dynamic: true}, nil},
		{"dynamic instance only", Location{InstanceID: "a", BaseURL: "http://h:1/", Dynamic: true}, nil},
		{"no base url", Location{InstanceID: "a", Dynamic: true}, ErrBaseURLRequired},
		{"no host", Location{BaseURL: "http:///x"}, ErrInvalidBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLocation_Availability(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	tests := []struct {
		name        string
		available   *time.Time
		unavailable *time.Time
		want        Availability
	}{
		{"never probed", nil, nil, NeedsProbe},
		{"recent available", at(2 * time.Second), nil, RecentlyAvailable},
		{"recent unavailable", nil, at(2 * time.Second), RecentlyUnavailable},
		{"available newer than unavailable", at(1 * time.Second), at(3 * time.Second), RecentlyAvailable},
		{"unavailable newer than available", at(3 * time.Second), at(1 * time.Second), RecentlyUnavailable},
		{"stale available", at(30 * time.Second), nil, NeedsProbe},
		{"stale unavailable", nil, at(30 * time.Second), NeedsProbe},
		{"stale both", at(30 * time.Second), at(20 * time.Second), NeedsProbe},
		{"stale unavailable recent available", at(1 * time.Second), at(30 * time.Second), RecentlyAvailable},
		{"stale available recent unavailable", at(30 * time.Second), at(1 * time.Second), RecentlyUnavailable},
		{"exactly at window edge", at(DefaultExpirationWindow), nil, NeedsProbe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := Location{LastAvailable: tt.available, LastUnavailable: tt.unavailable}
			if got := loc.Availability(now, DefaultExpirationWindow); got != tt.want {
				t.Errorf("Availability() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocation_MarkAvailable(t *testing.T) {
	now := time.Now()
	loc := Location{ID: "x", BaseURL: "http://h:1/"}
	loc.MarkAvailable(DeviceInfo{Application: "peerscout", InstanceID: "i-1"}, now)

	if loc.LastAvailable == nil || !loc.LastAvailable.Equal(now) {
		t.Error("LastAvailable should be set")
	}
	if loc.InstanceID != "i-1" {
		t.Errorf("InstanceID = %q, want i-1", loc.InstanceID)
	}

	loc.MarkUnavailable(now.Add(time.Second))
	if loc.LastUnavailable == nil {
		t.Fatal("LastUnavailable should be set")
	}
	if got := loc.Availability(now.Add(2*time.Second), DefaultExpirationWindow); got != RecentlyUnavailable {
		t.Errorf("Availability() = %v, want unavailable", got)
	}
}

func TestLocation_Clone(t *testing.T) {
	ts := time.Now()
	loc := &Location{ID: "x", LastAvailable: &ts}
	c := loc.Clone()
	*c.LastAvailable = ts.Add(time.Hour)
	if !loc.LastAvailable.Equal(ts) {
		t.Error("Clone should not share timestamp pointers")
	}
}

func TestLocation_JSONOmitsAbsentTimestamps(t *testing.T) {
	loc := Location{ID: "x", BaseURL: "http://h:1/"}
	data, err := json.Marshal(loc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := m["last_available"]; ok {
		t.Error("last_available should be omitted when absent")
	}
	if _, ok := m["last_unavailable"]; ok {
		t.Error("last_unavailable should be omitted when absent")
	}
}
