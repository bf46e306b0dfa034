package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/probe"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
)

// LocationRepository is the storage interface across both location kinds.
type LocationRepository interface {
	// Get returns the location under id regardless of kind.
	Get(ctx context.Context, id string) (*domain.Location, error)

	// List returns every location ordered by id.
	List(ctx context.Context) ([]*domain.Location, error)

	// Update applies fn to the stored location and persists the result.
	Update(ctx context.Context, id string, fn func(loc *domain.Location) error) (*domain.Location, error)
}

// LocationKindStore is a view over one kind of location.
type LocationKindStore interface {
	List(ctx context.Context) ([]*domain.Location, error)
	Get(ctx context.Context, id string) (*domain.Location, error)
	Save(ctx context.Context, loc *domain.Location) error
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context) (int, error)
}

// Prober performs a single reachability check.
type Prober interface {
	Probe(ctx context.Context, baseURL string) (domain.DeviceInfo, bool)
}

// Kind selects which locations List returns.
type Kind int

const (
	KindAll Kind = iota
	KindStatic
	KindDynamic
)

// LocationServiceConfig configures a LocationService.
type LocationServiceConfig struct {
	Repo    LocationRepository
	Static  LocationKindStore
	Dynamic LocationKindStore
	Prober  Prober

	// Window is how long a probe outcome is trusted.
	// Defaults to domain.DefaultExpirationWindow.
	Window time.Duration

	// SweepRate is the number of probes per second during Sweep.
	// Zero or negative means unlimited.
	SweepRate float64

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metric.Registry
}

// LocationService evaluates and maintains network location availability.
//
// Availability is derived from the stored probe timestamps. A probe is
// issued only when neither outcome is recent, and concurrent probes of the
// same location share one network call.
type LocationService struct {
	repo      LocationRepository
	static    LocationKindStore
	dynamic   LocationKindStore
	prober    Prober
	window    time.Duration
	sweepRate float64
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metric.Registry

	inflight singleflight.Group
}

// NewLocationService creates a LocationService.
func NewLocationService(cfg LocationServiceConfig) *LocationService {
	if cfg.Window <= 0 {
		cfg.Window = domain.DefaultExpirationWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LocationService{
		repo:      cfg.Repo,
		static:    cfg.Static,
		dynamic:   cfg.Dynamic,
		prober:    cfg.Prober,
		window:    cfg.Window,
		sweepRate: cfg.SweepRate,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("component", "locations"),
		metrics:   cfg.Metrics,
	}
}

// Window returns the expiration window.
func (s *LocationService) Window() time.Duration {
	return s.window
}

// Status returns the cached availability of loc without probing.
func (s *LocationService) Status(loc *domain.Location) domain.Availability {
	return loc.Availability(s.clock.Now(), s.window)
}

// Available reports whether the location is reachable. A recent outcome
// is trusted; otherwise the location is probed now.
func (s *LocationService) Available(ctx context.Context, id string) (bool, error) {
	loc, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	switch s.Status(loc) {
	case domain.RecentlyAvailable:
		return true, nil
	case domain.RecentlyUnavailable:
		return false, nil
	}
	_, ok, err := s.Probe(ctx, id)
	return ok, err
}

type probeResult struct {
	loc *domain.Location
	ok  bool
}

// Probe checks the location now and records the outcome. Callers probing
// the same id concurrently share one call.
//
// A dynamic location whose address answers with another instance id is
// recorded as unavailable.
func (s *LocationService) Probe(ctx context.Context, id string) (*domain.Location, bool, error) {
	ch := s.inflight.DoChan(id, func() (any, error) {
		return s.probe(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(probeResult)
		return r.loc.Clone(), r.ok, nil
	}
}

func (s *LocationService) probe(ctx context.Context, id string) (probeResult, error) {
	loc, err := s.repo.Get(ctx, id)
	if err != nil {
		return probeResult{}, err
	}

	info, ok := s.prober.Probe(ctx, loc.BaseURL)
	if ok && loc.Dynamic && info.InstanceID != loc.ID {
		s.logger.Info("dynamic location answered with another instance",
			"id", id, "instance_id", info.InstanceID, "base_url", loc.BaseURL)
		ok = false
	}

	now := s.clock.Now()
	updated, err := s.repo.Update(ctx, id, func(l *domain.Location) error {
		if ok {
			l.MarkAvailable(info, now)
		} else {
			l.MarkUnavailable(now)
		}
		return nil
	})
	if err != nil {
		return probeResult{}, err
	}
	s.logger.Debug("location probed", "id", id, "available", ok)
	return probeResult{loc: updated, ok: ok}, nil
}

// AddStatic stores an operator-entered location.
func (s *LocationService) AddStatic(ctx context.Context, baseURL, nickname string) (*domain.Location, error) {
	base, err := probe.NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, domain.ErrInvalidBaseURL.WithDetails(baseURL).WithCause(err)
	}
	loc, err := domain.NewStaticLocation(base, nickname, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.static.Save(ctx, loc); err != nil {
		return nil, err
	}
	s.logger.Info("static location added", "id", loc.ID, "base_url", base)
	return loc, nil
}

// LogDynamic probes baseURL and creates or refreshes the dynamic location
// keyed on the instance id the peer reports.
func (s *LocationService) LogDynamic(ctx context.Context, baseURL string) (*domain.Location, error) {
	base, err := probe.NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, domain.ErrInvalidBaseURL.WithDetails(baseURL).WithCause(err)
	}
	info, ok := s.prober.Probe(ctx, base)
	if !ok {
		return nil, domain.ErrPeerUnreachable.WithDetails(base)
	}
	if info.InstanceID == "" {
		return nil, domain.ErrInstanceIDRequired.WithDetails(base)
	}

	now := s.clock.Now()
	if _, err := s.dynamic.Get(ctx, info.InstanceID); err == nil {
		loc, err := s.repo.Update(ctx, info.InstanceID, func(l *domain.Location) error {
			l.BaseURL = base
			l.MarkAvailable(info, now)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return loc, nil
	} else if !errors.Is(err, domain.ErrLocationNotFound) {
		return nil, err
	}

	loc, err := domain.NewDynamicLocation(base, info, now)
	if err != nil {
		return nil, err
	}
	loc.MarkAvailable(info, now)
	if err := s.dynamic.Save(ctx, loc); err != nil {
		return nil, err
	}
	s.logger.Info("dynamic location logged", "id", loc.ID, "base_url", base)
	return loc, nil
}

// PurgeDynamic deletes every dynamic location.
func (s *LocationService) PurgeDynamic(ctx context.Context) (int, error) {
	n, err := s.dynamic.Purge(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.Purged(n)
	s.logger.Info("dynamic locations purged", "count", n)
	return n, nil
}

// Get returns the location under id and records the access.
func (s *LocationService) Get(ctx context.Context, id string) (*domain.Location, error) {
	now := s.clock.Now()
	return s.repo.Update(ctx, id, func(l *domain.Location) error {
		l.LastAccessed = now
		return nil
	})
}

// List returns the locations of the given kind ordered by id.
func (s *LocationService) List(ctx context.Context, kind Kind) ([]*domain.Location, error) {
	switch kind {
	case KindStatic:
		return s.static.List(ctx)
	case KindDynamic:
		return s.dynamic.List(ctx)
	default:
		return s.repo.List(ctx)
	}
}

// DeleteStatic removes an operator-entered location.
func (s *LocationService) DeleteStatic(ctx context.Context, id string) error {
	if err := s.static.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("static location deleted", "id", id)
	return nil
}

// SweepResult summarizes a Sweep.
type SweepResult struct {
	Probed      int `json:"probed"`
	Available   int `json:"available"`
	Unavailable int `json:"unavailable"`
}

// SweepProgress is called after each location a Sweep visits.
type SweepProgress func(done, total int)

// Sweep probes every stored location once, paced by the sweep rate.
// Locations deleted while sweeping are skipped. progress may be nil.
func (s *LocationService) Sweep(ctx context.Context, progress SweepProgress) (SweepResult, error) {
	var res SweepResult
	locs, err := s.repo.List(ctx)
	if err != nil {
		return res, err
	}

	limit := rate.Inf
	if s.sweepRate > 0 {
		limit = rate.Limit(s.sweepRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, loc := range locs {
		if err := limiter.Wait(ctx); err != nil {
			return res, err
		}
		_, ok, err := s.Probe(ctx, loc.ID)
		if progress != nil {
			progress(i+1, len(locs))
		}
		if err != nil {
			if errors.Is(err, domain.ErrLocationNotFound) {
				continue
			}
			return res, err
		}
		res.Probed++
		if ok {
			res.Available++
		} else {
			res.Unavailable++
		}
	}
	s.logger.Info("sweep completed",
		"probed", res.Probed,
		"available", res.Available,
		"unavailable", res.Unavailable)
	return res, nil
}
