// Package buildinfo reports what binary is running.
//
// Version, Commit and BuildTime are injected with -ldflags. Without them
// the commit and build time come from the VCS stamp in the binary's
// build info. Peers see Application and Version through the info
// endpoint and the probe User-Agent.
package buildinfo
