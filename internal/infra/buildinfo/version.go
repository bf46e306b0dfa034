package buildinfo

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Application is the name peers report in their info endpoint.
const Application = "peerscout"

// Set with -ldflags "-X github.com/yndnr/peerscout-go/internal/infra/buildinfo.Version=v1.0.0".
// Commit and BuildTime fall back to the VCS stamp the go tool embeds.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info describes the running binary.
type Info struct {
	Application string `json:"application" yaml:"application"`
	Version     string `json:"version" yaml:"version"`
	Commit      string `json:"commit" yaml:"commit"`
	BuildTime   string `json:"build_time" yaml:"build_time"`
	Modified    bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	GoVersion   string `json:"go_version" yaml:"go_version"`
	Platform    string `json:"platform" yaml:"platform"`
}

type vcsStamp struct {
	revision string
	time     string
	modified bool
}

var readVCS = sync.OnceValue(func() vcsStamp {
	var s vcsStamp
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return s
	}
	for _, kv := range bi.Settings {
		switch kv.Key {
		case "vcs.revision":
			s.revision = kv.Value
		case "vcs.time":
			s.time = kv.Value
		case "vcs.modified":
			s.modified = kv.Value == "true"
		}
	}
	return s
})

// Get returns the build information.
func Get() Info {
	return resolve(Version, Commit, BuildTime, readVCS())
}

func resolve(version, commit, built string, vcs vcsStamp) Info {
	info := Info{
		Application: Application,
		Version:     version,
		Commit:      commit,
		BuildTime:   built,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Commit == "" {
		info.Commit = vcs.revision
		info.Modified = vcs.modified
	}
	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = vcs.time
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

// String returns a one-line version for --version output.
func String() string {
	return Get().String()
}

func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return i.Version + " (" + commit + ") built at " + i.BuildTime
}

// UserAgent is sent with outgoing probes.
func UserAgent() string {
	return Application + "/" + Version
}
