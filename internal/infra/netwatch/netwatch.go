package netwatch

import (
	"context"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
)

// Defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultSettle       = 2 * time.Second
)

// Change describes an address set transition. Both sets are sorted.
type Change struct {
	Old []string
	New []string
}

// Config configures a Watcher.
type Config struct {
	// PollInterval is used when no event source is available.
	PollInterval time.Duration

	// Settle is how long to wait after an event before comparing, so a
	// burst of updates yields one change.
	Settle time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Watcher calls a function whenever the host's address set changes.
type Watcher struct {
	interval time.Duration
	settle   time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	onChange func(Change)

	// Replaced in tests.
	addrs  func() ([]string, error)
	events func(ctx context.Context, logger *slog.Logger) (<-chan struct{}, error)
}

// New creates a Watcher that calls onChange from its Run goroutine.
func New(cfg Config, onChange func(Change)) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	} else if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		interval: cfg.PollInterval,
		settle:   cfg.Settle,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "netwatch"),
		onChange: onChange,
		addrs:    Addresses,
		events:   subscribe,
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	current, err := w.addrs()
	if err != nil {
		return err
	}
	w.logger.Info("network watcher started", "addresses", current)

	events, err := w.events(ctx, w.logger)
	if err != nil {
		w.logger.Info("address events unavailable, polling", "interval", w.interval, "error", err)
		events = nil
	}

	var ticker *clock.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	var poll <-chan time.Time
	if events == nil {
		ticker = w.clock.Ticker(w.interval)
		poll = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				w.logger.Warn("address event stream closed, polling", "interval", w.interval)
				events = nil
				ticker = w.clock.Ticker(w.interval)
				poll = ticker.C
				continue
			}
			if !w.wait(ctx, events) {
				return nil
			}
		case <-poll:
		}

		next, err := w.addrs()
		if err != nil {
			w.logger.Warn("list interface addresses", "error", err)
			continue
		}
		if slices.Equal(current, next) {
			continue
		}
		change := Change{Old: current, New: next}
		current = next
		w.logger.Info("network addresses changed", "old", change.Old, "new", change.New)
		if w.onChange != nil {
			w.onChange(change)
		}
	}
}

// wait lets the address set settle, absorbing events that arrive meanwhile.
func (w *Watcher) wait(ctx context.Context, events <-chan struct{}) bool {
	if w.settle == 0 {
		return true
	}
	timer := w.clock.Timer(w.settle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-events:
		case <-timer.C:
			return true
		}
	}
}

// Addresses returns the host's non-loopback unicast addresses, sorted.
func Addresses() ([]string, error) {
	ifaddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, a := range ifaddrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
			continue
		}
		out = append(out, ip.String())
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
