// Package httpserver serves the HTTP surface of a PeerScout instance.
//
// Routes come from the handler package. Peer-facing and API routes run
// through Recover, RequestID, a per-IP RateLimit and Audit; /health and
// /ready skip the limiter and the audit log. /metrics serves the
// Prometheus registry.
//
// TLS is enabled by passing a tls.Config, normally one backed by a
// tlsroots.CertReloader so certificates rotate without a restart.
package httpserver
