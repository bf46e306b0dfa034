package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peerscout"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Probe metrics
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec

	// Discovery metrics
	AnnouncementsTotal   *prometheus.CounterVec
	PeersAnnounced       prometheus.Gauge
	SnapshotLookups      *prometheus.CounterVec
	RegistrationAttempts prometheus.Counter

	// Location metrics
	LocationsPurged prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	global     *Registry
	globalOnce sync.Once
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus all application metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "total",
			Help:      "Peer probes by kind and result.",
		}, []string{"kind", "result"}),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Peer probe latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"kind"}),
		AnnouncementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "announcements_total",
			Help:      "Announcement events by type.",
		}, []string{"event"}),
		PeersAnnounced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "peers",
			Help:      "Entries in the live peer table.",
		}),
		SnapshotLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "snapshot_lookups_total",
			Help:      "Snapshot cache lookups by result.",
		}, []string{"result"}),
		RegistrationAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "registration_attempts_total",
			Help:      "Service registration attempts, including retries after name conflicts.",
		}),
		LocationsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "location",
			Name:      "purged_total",
			Help:      "Dynamic locations removed by purges.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		r.ProbesTotal,
		r.ProbeDuration,
		r.AnnouncementsTotal,
		r.PeersAnnounced,
		r.SnapshotLookups,
		r.RegistrationAttempts,
		r.LocationsPurged,
		r.RequestsTotal,
		r.RequestDuration,
	)
	return r
}

// Prometheus returns the underlying registry, for components that
// register their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// ObserveProbe records one probe of kind ("info", "channels").
func (r *Registry) ObserveProbe(kind string, ok bool, d time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "unreachable"
	}
	r.ProbesTotal.WithLabelValues(kind, result).Inc()
	r.ProbeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// Announcement records an announcement event ("observed", "withdrawn", "malformed").
func (r *Registry) Announcement(event string) {
	if r == nil {
		return
	}
	r.AnnouncementsTotal.WithLabelValues(event).Inc()
}

// SetPeers sets the live peer table size.
func (r *Registry) SetPeers(n int) {
	if r == nil {
		return
	}
	r.PeersAnnounced.Set(float64(n))
}

// SnapshotLookup records a snapshot cache hit or miss.
func (r *Registry) SnapshotLookup(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.SnapshotLookups.WithLabelValues("hit").Inc()
		return
	}
	r.SnapshotLookups.WithLabelValues("miss").Inc()
}

// RegistrationAttempt records one registration attempt.
func (r *Registry) RegistrationAttempt() {
	if r == nil {
		return
	}
	r.RegistrationAttempts.Inc()
}

// Purged records n purged locations.
func (r *Registry) Purged(n int) {
	if r == nil {
		return
	}
	r.LocationsPurged.Add(float64(n))
}

// ObserveRequest records one HTTP request.
func (r *Registry) ObserveRequest(route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(route, http.StatusText(status)).Inc()
	r.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
