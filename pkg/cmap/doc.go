// Package cmap provides a sharded concurrent map keyed by strings.
//
// Keys are spread over shards with murmur3 and a per-map random seed,
// so callers cannot force every key into one shard. Each shard has its
// own RWMutex. Whole-map reads (Len, Values, Range) visit the shards one
// at a time and are not a consistent snapshot.
//
// Usage:
//
//	peers := cmap.New[string, Peer]()
//	old, existed := peers.Swap("kitchen-1", p)
//	p, ok := peers.Get("kitchen-1")
package cmap
