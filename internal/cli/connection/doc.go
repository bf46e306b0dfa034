// Package connection talks to a running peerscout-server over HTTP.
//
// Admin endpoints wrap their payload in a response envelope
// ({code, message, request_id, data}); peer-facing endpoints return the
// raw document. ParseResponse and ParseRaw decode the two shapes.
package connection
