package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/peerscout-go/internal/cli/output"
	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/probe"
	"github.com/yndnr/peerscout-go/internal/server/bootstrap"
)

// ProbeCommand returns the probe command.
func ProbeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Check that an address answers as a peer",
		ArgsUsage: "URL",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Probe timeout (defaults to probe.timeout)",
			},
			&cli.BoolFlag{
				Name:  "channels",
				Usage: "Also fetch the peer's available channels",
			},
		},
		Action: probeAction,
	}
}

type probeResult struct {
	BaseURL         string           `json:"base_url" yaml:"base_url"`
	Application     string           `json:"application" yaml:"application"`
	SoftwareVersion string           `json:"software_version" yaml:"software_version"`
	InstanceID      string           `json:"instance_id" yaml:"instance_id"`
	DeviceName      string           `json:"device_name" yaml:"device_name"`
	OperatingSystem string           `json:"operating_system" yaml:"operating_system"`
	Channels        []domain.Channel `json:"channels,omitempty" yaml:"channels,omitempty" table:"-"`
}

func probeAction(c *cli.Context) error {
	raw := c.Args().First()
	if raw == "" {
		return fmt.Errorf("URL required")
	}
	base, err := probe.NormalizeBaseURL(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if d := c.Duration("timeout"); d > 0 {
		cfg.Probe.Timeout = d
	}
	client, _, err := bootstrap.ProbeClients(cfg, nil)
	if err != nil {
		return err
	}

	spinner := output.NewSpinner(c.App.ErrWriter, "Probing "+base)
	spinner.Start()

	ctx := context.Background()
	info, err := client.Info(ctx, base)
	if err != nil {
		spinner.Fail(base + " is unreachable")
		return err
	}

	res := probeResult{
		BaseURL:         base,
		Application:     info.Application,
		SoftwareVersion: info.SoftwareVersion,
		InstanceID:      info.InstanceID,
		DeviceName:      info.DeviceName,
		OperatingSystem: info.OperatingSystem,
	}
	if c.Bool("channels") {
		res.Channels, err = client.Channels(ctx, base)
		if err != nil {
			spinner.Fail("channel listing failed")
			return err
		}
	}
	spinner.Stop()

	if err := render(c, res); err != nil {
		return err
	}
	if tableOutput(c) && len(res.Channels) > 0 {
		fmt.Fprintln(c.App.Writer)
		return render(c, res.Channels)
	}
	return nil
}
