package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestHandler_HooksRunInReverse(t *testing.T) {
	h := NewHandler(time.Second, nil)

	var order []string
	for _, name := range []string{"storage", "discovery", "http"} {
		name := name
		h.OnShutdown(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, h.Run())
	assert.Equal(t, []string{"http", "discovery", "storage"}, order)
}

func TestHandler_AllHooksRunDespiteErrors(t *testing.T) {
	h := NewHandler(time.Second, nil)
	errDisk := errors.New("disk busy")
	errSock := errors.New("socket stuck")

	ran := 0
	h.OnShutdown("storage", func(context.Context) error { ran++; return errDisk })
	h.OnShutdown("noop", func(context.Context) error { ran++; return nil })
	h.OnShutdown("http", func(context.Context) error { ran++; return errSock })

	err := h.Run()
	assert.Equal(t, 3, ran)
	assert.ErrorIs(t, err, errDisk)
	assert.ErrorIs(t, err, errSock)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorContains(t, err, "storage: disk busy")
}

func TestHandler_HooksShareDeadline(t *testing.T) {
	h := NewHandler(50*time.Millisecond, nil)
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := h.Run()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandler_RunOnce(t *testing.T) {
	h := NewHandler(time.Second, nil)
	calls := 0
	h.OnShutdown("count", func(context.Context) error { calls++; return nil })

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Run()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	select {
	case <-h.Done():
	default:
		t.Fatal("Done should be closed after Run")
	}
}

func TestHandler_WaitReturnsOnTrigger(t *testing.T) {
	h := NewHandler(time.Second, nil)
	ran := make(chan struct{})
	h.OnShutdown("mark", func(context.Context) error { close(ran); return nil })

	done := make(chan error, 1)
	go func() { done <- h.Wait(context.Background()) }()

	h.Trigger("http server failed")
	h.Trigger("ignored")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Trigger")
	}
	<-ran
	assert.Equal(t, "http server failed", h.reason)
}

func TestHandler_WaitReturnsOnContext(t *testing.T) {
	h := NewHandler(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}
