package storage

import (
	"context"
	"time"
)

// KVEngine is the key-value store the location registry runs on.
// Implementations are safe for concurrent use.
type KVEngine interface {
	// Get returns ErrKeyNotFound for absent keys.
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// Update atomically replaces the value of key with the result of fn.
	// fn receives nil and false when the key is absent. Returning a nil
	// value deletes the key; returning an error aborts the update.
	Update(ctx context.Context, key []byte, fn func(old []byte, exists bool) ([]byte, error)) error

	// Scan visits keys under prefix in order until fn returns false.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// DeleteWhere deletes, in one transaction, every key under prefix for
	// which match returns true, and reports how many it deleted.
	DeleteWhere(ctx context.Context, prefix []byte, match func(key, value []byte) bool) (int, error)

	Close() error
}

// KVStats is a point-in-time view of the on-disk footprint.
type KVStats struct {
	LSMSize          uint64
	ValueLogSize     uint64
	LastGC           time.Time
	GCBytesReclaimed uint64
}

// TotalSize is LSMSize plus ValueLogSize.
func (s KVStats) TotalSize() uint64 {
	return s.LSMSize + s.ValueLogSize
}

// KVConfig configures a BadgerEngine.
type KVConfig struct {
	// Dir is ignored when InMemory is set.
	Dir      string
	InMemory bool

	// GCInterval is the period of value log GC. Zero means 10m.
	GCInterval time.Duration
	// GCDiscardRatio is passed to RunValueLogGC. Out of (0,1) means 0.5.
	GCDiscardRatio float64
	// CacheSize is the block cache in bytes. Zero means 16MB.
	CacheSize int64
	// ValueLogFileSize caps value log files. Zero means 64MB.
	ValueLogFileSize int64
	SyncWrites       bool
}

// DefaultKVConfig returns durable settings for dir.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{Dir: dir, SyncWrites: true}.withDefaults()
}

func (c KVConfig) withDefaults() KVConfig {
	if c.GCInterval <= 0 {
		c.GCInterval = 10 * time.Minute
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		c.GCDiscardRatio = 0.5
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 16 << 20
	}
	if c.ValueLogFileSize <= 0 {
		c.ValueLogFileSize = 64 << 20
	}
	return c
}
