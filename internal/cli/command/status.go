package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/peerscout-go/internal/cli/connection"
	"github.com/yndnr/peerscout-go/internal/core/domain"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show health and identity of a running server (requires --server)",
		Action: statusAction,
	}
}

type statusResult struct {
	Server          string `json:"server" yaml:"server"`
	Healthy         bool   `json:"healthy" yaml:"healthy"`
	Ready           bool   `json:"ready" yaml:"ready"`
	NotReadyReason  string `json:"not_ready_reason,omitempty" yaml:"not_ready_reason,omitempty"`
	InstanceID      string `json:"instance_id" yaml:"instance_id"`
	DeviceName      string `json:"device_name" yaml:"device_name"`
	SoftwareVersion string `json:"software_version" yaml:"software_version"`
	OperatingSystem string `json:"operating_system" yaml:"operating_system"`
}

func statusAction(c *cli.Context) error {
	client, err := EnsureServer(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	res := statusResult{Server: client.BaseURL()}

	resp, err := client.Get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	res.Healthy = true

	resp, err = client.Get(ctx, "/ready")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var apiErr *connection.APIError
	switch err := connection.ParseResponse(resp, nil); {
	case err == nil:
		res.Ready = true
	case errors.As(err, &apiErr):
		res.NotReadyReason = apiErr.Error()
	default:
		return fmt.Errorf("ready: %w", err)
	}

	resp, err = client.Get(ctx, "/api/public/info/")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var info domain.DeviceInfo
	if err := connection.ParseRaw(resp, &info); err != nil {
		return fmt.Errorf("info: %w", err)
	}
	res.InstanceID = info.InstanceID
	res.DeviceName = info.DeviceName
	res.SoftwareVersion = info.SoftwareVersion
	res.OperatingSystem = info.OperatingSystem

	return render(c, res)
}
