package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/peerscout-go/internal/core/domain"
)

func peerServer(t *testing.T, info string, channels string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/info/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(info))
	})
	mux.HandleFunc("/api/content/channel/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("available") != "true" {
			http.Error(w, "available filter missing", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(channels))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Info(t *testing.T) {
	srv := peerServer(t, `{"application":"peerscout","software_version":"1.2.0","instance_id":"abc","device_name":"pi","operating_system":"linux"}`, `[]`)
	c := NewClient(Config{})

	info, err := c.Info(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceInfo{
		Application:     "peerscout",
		SoftwareVersion: "1.2.0",
		InstanceID:      "abc",
		DeviceName:      "pi",
		OperatingSystem: "linux",
	}, info)

	info, ok := c.Probe(context.Background(), srv.URL+"/")
	assert.True(t, ok)
	assert.Equal(t, "abc", info.InstanceID)
}

func TestClient_Channels(t *testing.T) {
	srv := peerServer(t, `{}`, `[{"id":"c1","name":"Science","version":4}]`)
	c := NewClient(Config{})

	channels, err := c.Channels(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []domain.Channel{{ID: "c1", Name: "Science", Version: 4}}, channels)
}

func TestClient_Unreachable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
		{"missing application", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"instance_id":"x"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(Config{}).Info(context.Background(), srv.URL)
			assert.ErrorIs(t, err, ErrUnreachable)

			_, ok := NewClient(Config{}).Probe(context.Background(), srv.URL)
			assert.False(t, ok)
		})
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewClient(Config{}).Info(context.Background(), "http://"+addr+"/")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_TimeoutIsBounded(t *testing.T) {
	// Accepts connections but never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	c := NewClient(Config{Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, ok := c.Probe(context.Background(), ln.Addr().String())
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"10.0.0.5:8080", "http://10.0.0.5:8080/", false},
		{"http://10.0.0.5:8080", "http://10.0.0.5:8080/", false},
		{"https://peer.example/sub", "https://peer.example/sub/", false},
		{" http://host/ ", "http://host/", false},
		{"http://host/?q=1#x", "http://host/", false},
		{"", "", true},
		{"ftp://host/", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
