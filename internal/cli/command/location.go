package command

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/peerscout-go/internal/cli/output"
	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/core/service"
)

// LocationCommand returns the location subcommand group.
func LocationCommand() *cli.Command {
	return &cli.Command{
		Name:    "location",
		Aliases: []string{"loc"},
		Usage:   "Manage remembered peer locations",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a static location",
				ArgsUsage: "URL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "nickname",
						Aliases: []string{"n"},
						Usage:   "Display name for the location",
					},
				},
				Action: withLocations(locationAdd),
			},
			{
				Name:  "list",
				Usage: "List locations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Usage: "all, static or dynamic",
						Value: "all",
					},
				},
				Action: withLocations(locationList),
			},
			{
				Name:      "get",
				Usage:     "Show one location",
				ArgsUsage: "ID",
				Action:    withLocations(locationGet),
			},
			{
				Name:      "rm",
				Usage:     "Delete a static location",
				ArgsUsage: "ID",
				Action:    withLocations(locationRemove),
			},
			{
				Name:      "check",
				Usage:     "Report whether a location is available",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Probe even when a recent outcome is cached",
					},
				},
				Action: withLocations(locationCheck),
			},
			{
				Name:      "log",
				Usage:     "Probe an address and remember it as a dynamic location",
				ArgsUsage: "URL",
				Action:    withLocations(locationLog),
			},
			{
				Name:   "purge",
				Usage:  "Delete every dynamic location",
				Action: withLocations(locationPurge),
			},
			{
				Name:   "sweep",
				Usage:  "Probe every location once",
				Action: withLocations(locationSweep),
			},
			{
				Name:      "backup",
				Usage:     "Write the location store to a file",
				ArgsUsage: "FILE",
				Action:    locationBackup,
			},
			{
				Name:      "restore",
				Usage:     "Load locations from a backup file",
				ArgsUsage: "FILE",
				Action:    locationRestore,
			},
		},
	}
}

type locationAction func(c *cli.Context, svc *service.LocationService) error

// withLocations opens the registry for the duration of one action.
func withLocations(fn locationAction) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		svc, closeFn, err := openLocations(c)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeFn(); cerr != nil && err == nil {
				err = fmt.Errorf("close storage: %w", cerr)
			}
		}()
		return fn(c, svc)
	}
}

type locationRow struct {
	ID              string     `json:"id" yaml:"id"`
	Kind            string     `json:"kind" yaml:"kind"`
	BaseURL         string     `json:"base_url" yaml:"base_url"`
	Name            string     `json:"name" yaml:"name"`
	Status          string     `json:"status" yaml:"status"`
	Application     string     `json:"application,omitempty" yaml:"application,omitempty" table:"wide"`
	SoftwareVersion string     `json:"software_version,omitempty" yaml:"software_version,omitempty" table:"wide"`
	InstanceID      string     `json:"instance_id,omitempty" yaml:"instance_id,omitempty" table:"wide"`
	Added           time.Time  `json:"added" yaml:"added" table:"wide"`
	LastAccessed    time.Time  `json:"last_accessed" yaml:"last_accessed" table:"wide"`
	LastAvailable   *time.Time `json:"last_available,omitempty" yaml:"last_available,omitempty" table:"wide"`
	LastUnavailable *time.Time `json:"last_unavailable,omitempty" yaml:"last_unavailable,omitempty" table:"wide"`
}

func toLocationRow(svc *service.LocationService, loc *domain.Location) locationRow {
	kind := "static"
	if loc.Dynamic {
		kind = "dynamic"
	}
	name := loc.Nickname
	if name == "" {
		name = loc.DeviceName
	}
	return locationRow{
		ID:              loc.ID,
		Kind:            kind,
		BaseURL:         loc.BaseURL,
		Name:            name,
		Status:          svc.Status(loc).String(),
		Application:     loc.Application,
		SoftwareVersion: loc.SoftwareVersion,
		InstanceID:      loc.InstanceID,
		Added:           loc.Added,
		LastAccessed:    loc.LastAccessed,
		LastAvailable:   loc.LastAvailable,
		LastUnavailable: loc.LastUnavailable,
	}
}

func requireArg(c *cli.Context, name string) (string, error) {
	v := c.Args().First()
	if v == "" {
		return "", fmt.Errorf("%s required", name)
	}
	return v, nil
}

func locationAdd(c *cli.Context, svc *service.LocationService) error {
	raw, err := requireArg(c, "URL")
	if err != nil {
		return err
	}
	loc, err := svc.AddStatic(c.Context, raw, c.String("nickname"))
	if err != nil {
		return err
	}
	return render(c, toLocationRow(svc, loc))
}

func parseKind(s string) (service.Kind, error) {
	switch s {
	case "", "all":
		return service.KindAll, nil
	case "static":
		return service.KindStatic, nil
	case "dynamic":
		return service.KindDynamic, nil
	default:
		return 0, fmt.Errorf("unknown kind %q: want all, static or dynamic", s)
	}
}

func locationList(c *cli.Context, svc *service.LocationService) error {
	kind, err := parseKind(c.String("kind"))
	if err != nil {
		return err
	}
	locs, err := svc.List(c.Context, kind)
	if err != nil {
		return err
	}
	if len(locs) == 0 && tableOutput(c) {
		fmt.Fprintln(c.App.Writer, "No locations found.")
		return nil
	}

	rows := make([]locationRow, 0, len(locs))
	for _, loc := range locs {
		rows = append(rows, toLocationRow(svc, loc))
	}
	return render(c, rows)
}

func locationGet(c *cli.Context, svc *service.LocationService) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}
	loc, err := svc.Get(c.Context, id)
	if err != nil {
		return err
	}
	return render(c, toLocationRow(svc, loc))
}

func locationRemove(c *cli.Context, svc *service.LocationService) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}
	if err := svc.DeleteStatic(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted location %s\n", id)
	return nil
}

type availabilityRow struct {
	ID        string `json:"id" yaml:"id"`
	Available bool   `json:"available" yaml:"available"`
}

func locationCheck(c *cli.Context, svc *service.LocationService) error {
	id, err := requireArg(c, "ID")
	if err != nil {
		return err
	}

	var ok bool
	if c.Bool("force") {
		_, ok, err = svc.Probe(c.Context, id)
	} else {
		ok, err = svc.Available(c.Context, id)
	}
	if err != nil {
		return err
	}
	return render(c, availabilityRow{ID: id, Available: ok})
}

func locationLog(c *cli.Context, svc *service.LocationService) error {
	raw, err := requireArg(c, "URL")
	if err != nil {
		return err
	}

	spinner := output.NewSpinner(c.App.ErrWriter, "Probing "+raw)
	spinner.Start()
	loc, err := svc.LogDynamic(c.Context, raw)
	if err != nil {
		spinner.Fail(raw + " could not be logged")
		return err
	}
	spinner.Stop()
	return render(c, toLocationRow(svc, loc))
}

func locationPurge(c *cli.Context, svc *service.LocationService) error {
	n, err := svc.PurgeDynamic(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Purged %d dynamic locations\n", n)
	return nil
}

func locationSweep(c *cli.Context, svc *service.LocationService) error {
	bar := output.NewProgressBar(c.App.ErrWriter, "Sweeping")
	res, err := svc.Sweep(c.Context, bar.Update)
	bar.Finish()
	if err != nil {
		return err
	}
	return render(c, res)
}

func locationBackup(c *cli.Context) (err error) {
	path, err := requireArg(c, "FILE")
	if err != nil {
		return err
	}
	_, engine, _, err := openStorage(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := engine.Backup(c.Context, f); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Backup written to %s\n", path)
	return nil
}

func locationRestore(c *cli.Context) error {
	path, err := requireArg(c, "FILE")
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, engine, _, err := openStorage(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Restore(c.Context, f); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Restored %s\n", path)
	return nil
}
