package command

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/peerscout-go/internal/cli/connection"
	"github.com/yndnr/peerscout-go/internal/cli/output"
	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/discovery"
	"github.com/yndnr/peerscout-go/internal/server/bootstrap"
)

// PeersCommand returns the peers command.
func PeersCommand() *cli.Command {
	return &cli.Command{
		Name:  "peers",
		Usage: "List announced peers",
		Description: "Without --server the CLI listens on the configured transport itself " +
			"for the warmup period. With --server it asks that server for its snapshot.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "exclude-local",
				Usage: "Hide peers announced from this host",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "How long to listen before answering (defaults to discovery.warmup)",
			},
		},
		Action: peersAction,
	}
}

type peerRow struct {
	ID       string           `json:"id" yaml:"id"`
	BaseURL  string           `json:"base_url" yaml:"base_url"`
	Host     string           `json:"host" yaml:"host" table:"wide"`
	Local    bool             `json:"local" yaml:"local"`
	Self     bool             `json:"self" yaml:"self"`
	Channels []domain.Channel `json:"channels,omitempty" yaml:"channels,omitempty" table:"wide"`
	Data     map[string]any   `json:"data,omitempty" yaml:"data,omitempty" table:"-"`
}

func toPeerRows(peers []discovery.PeerSnapshot) []peerRow {
	rows := make([]peerRow, 0, len(peers))
	for _, p := range peers {
		rows = append(rows, peerRow{
			ID:       p.ID,
			BaseURL:  p.BaseURL,
			Host:     p.Host,
			Local:    p.Local,
			Self:     p.Self,
			Channels: p.Channels,
			Data:     p.Data,
		})
	}
	return rows
}

func peersAction(c *cli.Context) error {
	includeLocal := !c.Bool("exclude-local")

	var (
		peers []discovery.PeerSnapshot
		err   error
	)
	if ParseGlobalFlags(c).Server != "" {
		peers, err = remotePeers(c, includeLocal)
	} else {
		peers, err = listenPeers(c, includeLocal)
	}
	if err != nil {
		return err
	}

	if len(peers) == 0 && tableOutput(c) {
		fmt.Fprintln(c.App.Writer, "No peers found.")
		return nil
	}
	return render(c, toPeerRows(peers))
}

func remotePeers(c *cli.Context, includeLocal bool) ([]discovery.PeerSnapshot, error) {
	client, err := EnsureServer(c)
	if err != nil {
		return nil, err
	}

	path := "/api/peers/"
	if !includeLocal {
		path += "?" + url.Values{"exclude_local": {"true"}}.Encode()
	}
	resp, err := client.Get(c.Context, path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Peers []discovery.PeerSnapshot `json:"peers"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Peers, nil
}

// listenPeers joins the configured transport without registering and
// returns what was announced during the warmup.
func listenPeers(c *cli.Context, includeLocal bool) ([]discovery.PeerSnapshot, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if d := c.Duration("wait"); d > 0 {
		cfg.Discovery.Warmup = d
	}

	log := slog.Default()
	tr, err := bootstrap.Transport(cfg, fmt.Sprintf("peerscout-cli-%d", os.Getpid()), log)
	if err != nil {
		return nil, err
	}
	_, enricher, err := bootstrap.ProbeClients(cfg, nil)
	if err != nil {
		tr.Close()
		return nil, err
	}

	mgr := bootstrap.DiscoveryManager(cfg, tr, enricher, log, nil)
	defer mgr.Close()
	if err := mgr.Listen(); err != nil {
		return nil, err
	}

	spinner := output.NewSpinner(c.App.ErrWriter, "Listening for announcements")
	spinner.Start()
	defer spinner.Stop()

	ctx, cancel := context.WithTimeout(c.Context, cfg.Discovery.Warmup+cfg.Probe.EnrichTimeout+5*time.Second)
	defer cancel()
	return mgr.Peers(ctx, includeLocal)
}
