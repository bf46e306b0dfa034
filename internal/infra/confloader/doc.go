// Package confloader loads layered configuration with koanf and watches
// the config file for edits.
//
// Layers, lowest priority first:
//
//  1. values already present in the target struct
//  2. the YAML file
//  3. PEERSCOUT_* environment variables
//  4. overrides, usually command line flags
//
// Environment variables use a double underscore for nesting so keys that
// contain underscores survive: PEERSCOUT_DISCOVERY__ANNOUNCE_TTL=90s maps
// to discovery.announce_ttl.
package confloader
