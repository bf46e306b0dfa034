// Package config provides server configuration for PeerScout.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (addresses, durations, transport choice)
//   - sanitize.go: Log sanitization (hide credentials in seed URLs)
//   - transport.go: Mapping onto the discovery transport configurations
//
// Configuration is loaded via internal/infra/confloader and supports
// files and environment variables.
package config
