package command

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/server/httpserver/handler"
)

// runApp runs the CLI with args and captures stdout and stderr.
func runApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	app := App()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	err = app.Run(append([]string{"peerscout-cli"}, args...))
	return out.String(), errOut.String(), err
}

// newPeer starts an HTTP peer answering the info and channel endpoints.
func newPeer(t *testing.T, instanceID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler.New(handler.Config{
		Info: domain.DeviceInfo{
			Application:     "peerscout",
			SoftwareVersion: "1.2.3",
			InstanceID:      instanceID,
			DeviceName:      "kitchen",
			OperatingSystem: "linux",
		},
		Channels: []domain.Channel{{ID: "news", Name: "News", Version: 2}},
	}))
	t.Cleanup(srv.Close)
	return srv
}

// deadURL returns the address of a server that has been shut down.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	return url
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peerscout.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func wantNoError(t *testing.T, err error, stderr string) {
	t.Helper()
	if err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			t.Fatalf("exit %d: %v\nstderr: %s", exit.ExitCode(), err, stderr)
		}
		t.Fatalf("unexpected error: %v\nstderr: %s", err, stderr)
	}
}
