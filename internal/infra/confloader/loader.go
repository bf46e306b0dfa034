package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "PEERSCOUT_"

const envNestingSeparator = "__"

// Loader reads the configuration layers into a struct with koanf tags.
// Every Load starts from scratch, so it doubles as a reload.
type Loader struct {
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the YAML file. Without one only the environment
// and overrides apply.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides sets values, keyed by dotted path, that win over every
// other layer. Empty strings are skipped so unset flags can be passed
// as is.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		if l.overrides == nil {
			l.overrides = make(map[string]any, len(values))
		}
		for k, v := range values {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			l.overrides[k] = v
		}
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configured file, or "" when there is none.
func (l *Loader) FilePath() string {
	return l.filePath
}

// Load reads all layers and unmarshals them over target. Fields no layer
// mentions keep their current values, so target is usually prefilled
// with defaults.
func (l *Loader) Load(target any) error {
	k := koanf.New(".")

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	prefix := l.envPrefix
	envLayer := env.Provider(prefix, ".", func(name string) string {
		return EnvKey(prefix, name)
	})
	if err := k.Load(envLayer, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := k.Load(mapProvider(l.overrides), nil); err != nil {
			return fmt.Errorf("load overrides: %w", err)
		}
	}

	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// EnvKey converts an environment variable name to a dotted config key.
//
//	PEERSCOUT_SERVER__HTTP__ADDR -> server.http.addr
func EnvKey(prefix, name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, prefix))
	return strings.ReplaceAll(name, envNestingSeparator, ".")
}
