package config

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/fisgon/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "fisgon"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultWorkers is the number of URLs fetched concurrently per session.
	DefaultWorkers = 4

	// DefaultBatchSize is the number of queue items claimed per cycle.
	DefaultBatchSize = 10

	// DefaultUserAgent identifies fisgon in HTTP requests.
	DefaultUserAgent = "Mozilla/5.0 (compatible; fisgon/1.0; +https://github.com/nao1215/fisgon)"

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is how long the embedded Tor daemon may take
	// to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultExtractTimeout bounds metadata extraction of a single file.
	DefaultExtractTimeout = 2 * time.Minute
)

// Accepted ranges for session settings.
const (
	MinDepth       = 1
	MaxDepth       = 10
	MinRateLimit   = 0.1
	MaxRateLimit   = 10.0
	MinFileSize    = int64(1024)
	MaxFileSize    = int64(100 * 1024 * 1024)
	MaxRetriesCap  = 10
	MaxWorkers     = 32
	downloadSubdir = "downloads"
)

// Config holds the options of one fisgon invocation. It is populated from
// CLI flags and the YAML config file and passed down explicitly.
type Config struct {
	// Settings are stored with each new session.
	Settings model.SessionSettings

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// ExtractTimeout bounds the extraction of one file.
	ExtractTimeout time.Duration

	Workers   int
	BatchSize int

	UserAgent      string
	AcceptLanguage string

	// ProxyAddress is an external SOCKS5 proxy in "host:port" form. Empty
	// means direct connections unless UseTor is set.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes the crawl through it.
	UseTor            bool
	TorStartupTimeout time.Duration

	// DataDir holds the SQLite database and the downloads directory.
	DataDir string

	// ConfigFilePath is the explicit config file, if any.
	ConfigFilePath string

	// SiteConfigs holds the per-domain overrides of the config file.
	SiteConfigs *File

	Verbose  bool
	JSONLogs bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Settings:          model.DefaultSessionSettings(),
		Timeout:           DefaultTimeout,
		ExtractTimeout:    DefaultExtractTimeout,
		Workers:           DefaultWorkers,
		BatchSize:         DefaultBatchSize,
		UserAgent:         DefaultUserAgent,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DataDir:           XDGDataDir(),
		SiteConfigs:       NewFile(),
	}
}

// DownloadDir returns the root of the per-session download directories.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.DataDir, downloadSubdir)
}

// Site returns the merged site configuration for domain.
func (c *Config) Site(domain string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(domain)
}

// XDGDataDir returns the XDG data directory for fisgon.
// On Linux: ~/.local/share/fisgon
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for fisgon.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the invocation options and the session settings.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Workers <= 0 || c.Workers > MaxWorkers {
		return ErrInvalidWorkers
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.ProxyAddress != "" && c.UseTor {
		return ErrConflictingEgress
	}
	return ValidateSettings(c.Settings)
}

// ValidateSettings checks session settings against the accepted ranges.
// A rate limit of zero disables limiting and is accepted.
func ValidateSettings(s model.SessionSettings) error {
	if s.MaxDepth < MinDepth || s.MaxDepth > MaxDepth {
		return ErrInvalidDepth
	}
	if s.RateLimit != 0 && (s.RateLimit < MinRateLimit || s.RateLimit > MaxRateLimit) {
		return ErrInvalidRateLimit
	}
	if s.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if s.MaxFileSize < MinFileSize || s.MaxFileSize > MaxFileSize {
		return ErrInvalidMaxFileSize
	}
	if s.MaxRetries < 0 || s.MaxRetries > MaxRetriesCap {
		return ErrInvalidMaxRetries
	}
	if len(s.AllowedFileTypes) == 0 {
		return ErrNoFileTypes
	}
	if i := slices.IndexFunc(s.AllowedFileTypes, func(t model.FileType) bool { return !t.IsKnown() }); i >= 0 {
		return &UnknownFileTypeError{Type: string(s.AllowedFileTypes[i])}
	}
	return nil
}

// ParseFileTypes parses a comma separated list such as "pdf, .DOCX,jpg".
// Duplicates are dropped and unknown types are rejected.
func ParseFileTypes(list string) ([]model.FileType, error) {
	var out []model.FileType
	for part := range strings.SplitSeq(list, ",") {
		t := model.FileType(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(part)), "."))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		if !t.IsKnown() {
			return nil, &UnknownFileTypeError{Type: string(t)}
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrNoFileTypes
	}
	return out, nil
}
