// Package bootstrap builds the components of a PeerScout instance from a
// ServerConfig. peerscout-server and peerscout-cli share it so that both
// open storage, probe peers and join the discovery network the same way.
package bootstrap
