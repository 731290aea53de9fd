// Package config holds the options of a fisgon invocation: defaults,
// validation of session settings, the XDG data directory and the YAML
// file with per-domain overrides (cookies, headers, link patterns).
package config
