// Package service provides domain services for PeerScout.
//
// Domain services orchestrate operations on domain models. They define
// interfaces for storage and network dependencies, allowing for
// dependency injection and testability.
//
// This package contains:
//
//   - LocationService: network location registry, availability evaluation
//     with cached probe outcomes, and health-check sweeps
package service
