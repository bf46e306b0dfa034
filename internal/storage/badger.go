package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// BadgerEngine is a KVEngine on Badger v3. A background loop runs value
// log GC for on-disk stores.
type BadgerEngine struct {
	db     *badger.DB
	cfg    KVConfig
	logger *slog.Logger

	lastGC      atomic.Int64 // unix nanos
	gcReclaimed atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

var _ KVEngine = (*BadgerEngine)(nil)

// NewBadgerEngine opens the store described by cfg.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, errors.New("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithLogger(badgerLogger{logger.With("component", "badger")}).
		WithBlockCacheSize(cfg.CacheSize).
		WithValueLogFileSize(cfg.ValueLogFileSize).
		WithSyncWrites(cfg.SyncWrites && !cfg.InMemory)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", cfg.Dir, err)
	}

	e := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	if !cfg.InMemory {
		e.wg.Add(1)
		go e.gcLoop()
	}
	logger.Debug("badger engine opened", "dir", cfg.Dir, "in_memory", cfg.InMemory)
	return e, nil
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte

	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores a key-value pair.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes a key.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Update atomically replaces the value of key. Conflicting concurrent
// updates are retried.
func (e *BadgerEngine) Update(ctx context.Context, key []byte, fn func(old []byte, exists bool) ([]byte, error)) error {
	if e.closed.Load() {
		return ErrClosed
	}
	for {
		err := e.db.Update(func(txn *badger.Txn) error {
			var old []byte
			exists := true
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				exists = false
			case err != nil:
				return err
			default:
				if old, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}

			value, err := fn(old, exists)
			if err != nil {
				return err
			}
			if value == nil {
				if !exists {
					return nil
				}
				return txn.Delete(key)
			}
			return txn.Set(key, value)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Scan iterates over keys with a given prefix.
func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			if !fn(key, value) {
				break
			}
		}

		return nil
	})
}

// DeleteWhere deletes matching keys under prefix in one transaction.
func (e *BadgerEngine) DeleteWhere(ctx context.Context, prefix []byte, match func(key, value []byte) bool) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	deleted := 0
	err := e.db.Update(func(txn *badger.Txn) error {
		deleted = 0
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		var doomed [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			if match(item.Key(), value) {
				doomed = append(doomed, item.KeyCopy(nil))
			}
		}
		it.Close()

		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}


// Backup streams a full backup to w.
func (e *BadgerEngine) Backup(ctx context.Context, w io.Writer) error {
	if e.closed.Load() {
		return ErrClosed
	}
	stream := e.db.NewStream()
	stream.LogPrefix = "peerscout.Backup"
	if _, err := stream.Backup(w, 0); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return ctx.Err()
}

// Restore loads a backup written by Backup. Existing keys are
// overwritten; keys absent from the backup are kept.
func (e *BadgerEngine) Restore(ctx context.Context, r io.Reader) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.db.Load(r, 256); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

// GC runs value log GC until nothing is left to rewrite and returns an
// estimate of the bytes reclaimed.
func (e *BadgerEngine) GC(ctx context.Context) (uint64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if e.cfg.InMemory {
		return 0, nil
	}

	var reclaimed uint64
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return reclaimed, fmt.Errorf("gc: %w", err)
		}
		// Badger does not report sizes; each rewrite frees about one file.
		reclaimed += uint64(e.cfg.ValueLogFileSize)
	}

	e.lastGC.Store(time.Now().UnixNano())
	e.gcReclaimed.Add(reclaimed)
	return reclaimed, nil
}

// Stats reports the current footprint.
func (e *BadgerEngine) Stats() (KVStats, error) {
	if e.closed.Load() {
		return KVStats{}, ErrClosed
	}
	lsm, vlog := e.db.Size()
	s := KVStats{
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		GCBytesReclaimed: e.gcReclaimed.Load(),
	}
	if ns := e.lastGC.Load(); ns > 0 {
		s.LastGC = time.Unix(0, ns)
	}
	return s, nil
}

// Close stops the GC loop and closes the database. Later calls are no-ops.
func (e *BadgerEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.stopCh)
		e.wg.Wait()
		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
		}
	})
	return err
}

func (e *BadgerEngine) gcLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			n, err := e.GC(ctx)
			cancel()
			if err != nil {
				e.logger.Error("value log gc failed", "error", err)
				continue
			}
			e.logger.Debug("value log gc done", "reclaimed_bytes", n)
		case <-e.stopCh:
			return
		}
	}
}

// RegisterMetrics exports the store size and GC counters. Values are
// read at scrape time.
func (e *BadgerEngine) RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	return reg.Register(&badgerCollector{engine: e})
}

var (
	descLSMSize = prometheus.NewDesc("peerscout_badger_lsm_size_bytes",
		"Badger LSM tree size in bytes.", nil, nil)
	descValueLogSize = prometheus.NewDesc("peerscout_badger_value_log_size_bytes",
		"Badger value log size in bytes.", nil, nil)
	descLastGC = prometheus.NewDesc("peerscout_badger_last_gc_timestamp_seconds",
		"Unix time of the last value log GC.", nil, nil)
	descGCReclaimed = prometheus.NewDesc("peerscout_badger_gc_reclaimed_bytes_total",
		"Estimated bytes reclaimed by value log GC.", nil, nil)
)

type badgerCollector struct {
	engine *BadgerEngine
}

func (c *badgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descLSMSize
	ch <- descValueLogSize
	ch <- descLastGC
	ch <- descGCReclaimed
}

func (c *badgerCollector) Collect(ch chan<- prometheus.Metric) {
	s, err := c.engine.Stats()
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(descLSMSize, prometheus.GaugeValue, float64(s.LSMSize))
	ch <- prometheus.MustNewConstMetric(descValueLogSize, prometheus.GaugeValue, float64(s.ValueLogSize))
	var last float64
	if !s.LastGC.IsZero() {
		last = float64(s.LastGC.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(descLastGC, prometheus.GaugeValue, last)
	ch <- prometheus.MustNewConstMetric(descGCReclaimed, prometheus.CounterValue, float64(s.GCBytesReclaimed))
}

// badgerLogger routes Badger's printf logging to slog. Badger's info
// output is chatty, so it goes to debug.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
