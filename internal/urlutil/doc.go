// Package urlutil canonicalizes, validates and classifies crawl URLs.
//
// Everything here is pure and deterministic except RegistrableDomain,
// which depends on the public suffix list compiled into
// golang.org/x/net/publicsuffix.
package urlutil
