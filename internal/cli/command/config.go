package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/peerscout-go/internal/cli/output"
	"github.com/yndnr/peerscout-go/internal/server/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration (defaults, file, environment)",
				Action: configShow,
			},
			{
				Name:      "validate",
				Usage:     "Validate a configuration file",
				ArgsUsage: "[FILE]",
				Action:    configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	sanitized := config.Sanitize(cfg)
	// Nested sections do not fit a table.
	if tableOutput(c) {
		return (&output.YAMLFormatter{}).Format(c.App.Writer, sanitized)
	}
	return render(c, sanitized)
}

func configValidate(c *cli.Context) error {
	if file := c.Args().First(); file != "" {
		if err := c.Set("config", file); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := config.Verify(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	source := ParseGlobalFlags(c).Config
	if source == "" {
		source = "defaults and environment"
	}
	fmt.Fprintf(c.App.Writer, "✓ Configuration is valid: %s\n", source)
	return nil
}
