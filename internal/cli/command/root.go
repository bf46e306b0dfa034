package command

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/peerscout-go/internal/cli/connection"
	"github.com/yndnr/peerscout-go/internal/cli/output"
	"github.com/yndnr/peerscout-go/internal/core/service"
	"github.com/yndnr/peerscout-go/internal/infra/buildinfo"
	"github.com/yndnr/peerscout-go/internal/server/bootstrap"
	"github.com/yndnr/peerscout-go/internal/server/config"
	"github.com/yndnr/peerscout-go/internal/storage"
	"github.com/yndnr/peerscout-go/internal/telemetry/logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "peerscout-cli",
		Usage:   "Inspect local-network peers and manage known locations",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ProbeCommand(),
			PeersCommand(),
			LocationCommand(),
			StatusCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before: before,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Server configuration file shared with peerscout-server",
			EnvVars: []string{"PEERSCOUT_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Override storage.data_dir",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Address of a running peerscout-server (e.g., localhost:8080)",
			EnvVars: []string{"PEERSCOUT_SERVER"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging on stderr",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Config  string
	DataDir string
	Server  string

	// Output format
	Output string // table, json, yaml
	Wide   bool

	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:  c.String("config"),
		DataDir: c.String("data-dir"),
		Server:  c.String("server"),
		Output:  c.String("output"),
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
	}
}

func before(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	if _, err := output.ParseFormat(flags.Output); err != nil {
		return err
	}

	level := "warn"
	if flags.Verbose {
		level = "debug"
	}
	_, err := logger.New(logger.Config{Level: level, Format: "text", Output: c.App.ErrWriter})
	return err
}

// render writes data to stdout in the selected format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, flags.Wide).Format(c.App.Writer, data)
}

func tableOutput(c *cli.Context) bool {
	format, _ := output.ParseFormat(ParseGlobalFlags(c).Output)
	return format == output.FormatTable
}

// loadConfig loads the server configuration the CLI shares with the server.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	flags := ParseGlobalFlags(c)
	cfg, _, err := bootstrap.LoadConfig(flags.Config, map[string]any{
		"storage.data_dir": flags.DataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStorage opens the badger store in the configured data directory.
func openStorage(c *cli.Context) (*config.ServerConfig, *storage.BadgerEngine, *storage.LocationStore, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	engine, store, err := bootstrap.OpenStorage(cfg, slog.Default(), nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, engine, store, nil
}

// openLocations opens the location registry on the configured data
// directory. The returned func closes the storage.
func openLocations(c *cli.Context) (*service.LocationService, func() error, error) {
	cfg, engine, store, err := openStorage(c)
	if err != nil {
		return nil, nil, err
	}
	prober, _, err := bootstrap.ProbeClients(cfg, nil)
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	return bootstrap.LocationService(cfg, store, prober, slog.Default(), nil), engine.Close, nil
}

// EnsureServer returns a client for --server or an error when it is unset.
func EnsureServer(c *cli.Context) (*connection.HTTPClient, error) {
	server := ParseGlobalFlags(c).Server
	if server == "" {
		return nil, fmt.Errorf("--server is required for %s", c.Command.Name)
	}
	return connection.NewHTTPClient(server, 0), nil
}

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			return render(c, buildinfo.Get())
		},
	}
}
