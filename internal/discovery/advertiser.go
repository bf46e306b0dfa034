package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/yndnr/peerscout-go/internal/discovery/transport"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
)

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	Transport transport.Transport
	State     *State
	TTL       time.Duration

	// MaxAttempts caps registration attempts. Defaults to MaxRegisterAttempts.
	MaxAttempts int

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Advertiser owns this instance's announcement.
type Advertiser struct {
	transport   transport.Transport
	state       *State
	ttl         time.Duration
	maxAttempts int
	logger      *slog.Logger
	metrics     *metric.Registry

	mu     sync.Mutex
	reg    transport.Registration
	id     string
	closed bool
}

// NewAdvertiser creates an idle advertiser.
func NewAdvertiser(cfg AdvertiserConfig) *Advertiser {
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultAnnounceTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = MaxRegisterAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Advertiser{
		transport:   cfg.Transport,
		state:       cfg.State,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Register announces this instance as id on port with props as metadata.
// On a name conflict it retries as "<id>-2", "<id>-3" and so on. It
// returns the id actually registered.
func (a *Advertiser) Register(ctx context.Context, id string, port int, props map[string]any) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return "", ErrClosed
	}
	if a.reg != nil {
		return "", ErrAlreadyRegistered
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrInvalidID)
	}

	text, err := encodeProperties(props)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}

	candidate := id
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if attempt > 1 {
			candidate = fmt.Sprintf("%s-%d", id, attempt)
		}
		name := ServiceName(candidate)
		if _, ok := dns.IsDomainName(name); !ok || idFromName(name) != candidate {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, candidate)
		}

		a.metrics.RegistrationAttempt()
		reg, err := a.transport.Register(ctx, transport.Announcement{
			Name: name,
			Host: HostName(candidate),
			Port: port,
			Text: text,
		}, a.ttl)
		if errors.Is(err, transport.ErrNameConflict) {
			a.logger.Debug("service name taken, retrying", "name", name, "attempt", attempt)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("register %s: %w", name, err)
		}

		a.reg = reg
		a.id = candidate
		a.state.setSelfID(candidate)
		a.logger.Info("registered on discovery network", "id", candidate, "port", port)
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %q after %d attempts", ErrTooManyAttempts, id, a.maxAttempts)
}

// Unregister withdraws the announcement.
func (a *Advertiser) Unregister() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reg == nil {
		return ErrNotRegistered
	}
	return a.withdrawLocked()
}

// ID returns the registered id, or "" when idle.
func (a *Advertiser) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// Close withdraws any active announcement. It is safe to call more than
// once and after Unregister.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.reg == nil {
		return nil
	}
	return a.withdrawLocked()
}

func (a *Advertiser) withdrawLocked() error {
	reg, id := a.reg, a.id
	a.reg = nil
	a.id = ""
	if a.state.SelfID() == id {
		a.state.setSelfID("")
	}
	if err := reg.Withdraw(); err != nil {
		return fmt.Errorf("withdraw %s: %w", id, err)
	}
	a.logger.Info("unregistered from discovery network", "id", id)
	return nil
}
