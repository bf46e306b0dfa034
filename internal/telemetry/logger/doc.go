// Package logger configures structured logging for PeerScout.
//
//   - logger.go: handler construction and the process-wide level
//   - context.go: request ids carried in contexts and added to records
//   - redact.go: masking of URL credentials and secret-named keys
//
// Components receive a *slog.Logger. New installs its logger as
// slog.Default(), and the level it was built with can be changed later
// with SetLevel when the config file is reloaded. Records logged with a
// context that carries a request id get a request_id attribute.
package logger
