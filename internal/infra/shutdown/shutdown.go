package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
)

// Hook releases one component.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Handler coordinates shutdown.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger
	sigCh   chan os.Signal

	mu    sync.Mutex
	hooks []namedHook

	stop     chan struct{}
	stopOnce sync.Once
	reason   string

	runOnce sync.Once
	done    chan struct{}
	err     error
}

// NewHandler creates a handler whose hooks share timeout. A nil logger
// uses slog.Default().
//
// SIGINT and SIGTERM are captured from this call on, so a signal that
// arrives before Wait still runs the hooks. The subscription ends when
// the hooks run.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		timeout: timeout,
		logger:  logger,
		sigCh:   make(chan os.Signal, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	signal.Notify(h.sigCh, syscall.SIGINT, syscall.SIGTERM)
	return h
}

// OnShutdown registers a hook. Hooks registered later run earlier.
func (h *Handler) OnShutdown(name string, hook Hook) {
	h.mu.Lock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: hook})
	h.mu.Unlock()
}

// Trigger asks Wait to return. Only the first reason is kept.
func (h *Handler) Trigger(reason string) {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.reason = reason
		h.mu.Unlock()
		close(h.stop)
	})
}

// Wait blocks until a signal, Trigger or ctx cancellation, then runs the
// hooks.
func (h *Handler) Wait(ctx context.Context) error {
	var reason string
	select {
	case sig := <-h.sigCh:
		reason = "signal " + sig.String()
	case <-h.stop:
		h.mu.Lock()
		reason = h.reason
		h.mu.Unlock()
	case <-ctx.Done():
		reason = "context done"
	}
	h.logger.Info("shutting down", "reason", reason)
	return h.Run()
}

// Run executes the hooks now. Later and concurrent calls wait for the
// first run and return its result.
func (h *Handler) Run() error {
	h.runOnce.Do(func() {
		defer close(h.done)
		signal.Stop(h.sigCh)

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := append([]namedHook(nil), h.hooks...)
		h.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			hk := hooks[i]
			start := time.Now()
			if err := hk.fn(ctx); err != nil {
				h.logger.Warn("shutdown hook failed", "hook", hk.name, "error", err)
				h.err = multierr.Append(h.err, fmt.Errorf("%s: %w", hk.name, err))
				continue
			}
			h.logger.Debug("shutdown hook done", "hook", hk.name, "took", time.Since(start))
		}
	})
	<-h.done
	return h.err
}

// Done is closed once the hooks have run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
