package config

import (
	"maps"
	"strings"

	"github.com/nao1215/fisgon/internal/urlutil"
)

// SiteConfig holds the per-domain crawl options of the config file.
type SiteConfig struct {
	// Cookie is sent with every request, e.g. "name1=value1; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the global User-Agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Depth overrides the max depth of new sessions.
	Depth int `yaml:"depth,omitempty"`

	// RateLimit overrides the requests per second of new sessions.
	RateLimit float64 `yaml:"rateLimit,omitempty"`

	// IgnorePatterns are glob patterns of URL paths that are never queued.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, restrict queueing to matching URL paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File is the structure of the .fisgon configuration file.
type File struct {
	// Sites maps a domain such as "example.com" to its overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every domain unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// NewFile returns an empty configuration file.
func NewFile() *File {
	return &File{Sites: make(map[string]SiteConfig)}
}

// GetSiteConfig returns the defaults merged with the overrides for domain.
// The lookup tries the host as given, without a "www." prefix and then
// its registrable domain, so "docs.example.com" falls back to
// "example.com".
func (cf *File) GetSiteConfig(domain string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	site, ok := cf.lookup(domain)
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.UserAgent != "" {
		result.UserAgent = site.UserAgent
	}
	if site.Depth != 0 {
		result.Depth = site.Depth
	}
	if site.RateLimit != 0 {
		result.RateLimit = site.RateLimit
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	return result
}

func (cf *File) lookup(domain string) (SiteConfig, bool) {
	host := strings.ToLower(strings.TrimSpace(domain))
	candidates := []string{host, strings.TrimPrefix(host, "www.")}
	if reg, err := urlutil.RegistrableDomain(host); err == nil {
		candidates = append(candidates, reg)
	}
	for _, c := range candidates {
		if site, ok := cf.Sites[c]; ok {
			return site, true
		}
	}
	return SiteConfig{}, false
}
