// Package storage persists network locations for PeerScout.
//
// Records live in an embedded Badger KV store:
//
//   - loc/<id>: one JSON-encoded domain.Location per key
//   - meta/instance_id: this instance's persistent identifier
//
// LocationStore exposes the records through two filtered views, Static()
// and Dynamic(), so callers never see records of the other kind.
package storage
