// Package robots evaluates robots.txt policies.
//
// The evaluator is fail-open: when robots.txt cannot be fetched or read,
// the site is treated as unrestricted and a warning is logged. Allow
// prefixes are checked before disallow prefixes, and "Disallow: /"
// blocks the whole site unless an allow prefix matches first.
package robots
