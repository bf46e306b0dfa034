// Package shutdown runs named cleanup hooks once the process is asked to
// stop by SIGINT, SIGTERM, a fatal component error or context cancel.
//
// Hooks run in reverse registration order under one deadline. Every hook
// runs even when an earlier one fails, and their errors are combined with
// go.uber.org/multierr.
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("http", server.Shutdown)
//	err := h.Wait(ctx)
package shutdown
