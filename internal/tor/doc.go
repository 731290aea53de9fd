// Package tor provides optional anonymous egress for crawls.
//
// Client routes HTTP traffic through any SOCKS5 proxy, typically a local
// Tor daemon. EmbeddedTor starts and stops a Tor daemon with tornago so
// that --tor works without a separate installation. Without either, the
// crawler connects directly.
package tor
