package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a CrawlSession.
type SessionStatus string

const (
	// SessionPending is the state of a freshly created session.
	SessionPending SessionStatus = "pending"
	// SessionRunning means the orchestrator is scheduling batches.
	SessionRunning SessionStatus = "running"
	// SessionPaused means scheduling stopped and may be resumed.
	SessionPaused SessionStatus = "paused"
	// SessionCompleted means the frontier was exhausted or max_pages reached.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed means the orchestrator hit a fatal error.
	SessionFailed SessionStatus = "failed"
	// SessionCancelled means the user stopped the crawl.
	SessionCancelled SessionStatus = "cancelled"
)

// sessionTransitions lists the allowed target states for each state.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPending: {SessionRunning, SessionCancelled, SessionFailed},
	SessionRunning: {SessionPaused, SessionCompleted, SessionFailed, SessionCancelled},
	SessionPaused:  {SessionRunning, SessionCancelled, SessionFailed},
}

// CanTransition reports whether a session in state s may move to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	return slices.Contains(sessionTransitions[s], next)
}

// IsActive reports whether the session may still make progress.
func (s SessionStatus) IsActive() bool {
	return s == SessionPending || s == SessionRunning || s == SessionPaused
}

// IsTerminal reports whether no further transition is possible.
func (s SessionStatus) IsTerminal() bool {
	return !s.IsActive()
}

// Session setting defaults.
const (
	DefaultMaxDepth    = 3
	DefaultRateLimit   = 1.0
	DefaultMaxPages    = 1000
	DefaultMaxFileSize = int64(50 * 1024 * 1024)
	DefaultMaxRetries  = 3
)

// SessionSettings is the per-session crawl configuration.
type SessionSettings struct {
	// MaxDepth is the maximum number of link hops from the seed URL.
	MaxDepth int `json:"max_depth"`

	// RateLimit is the request rate in requests per second. Zero or less disables limiting.
	RateLimit float64 `json:"rate_limit"`

	// MaxPages caps the number of processed URLs. Zero means unlimited.
	MaxPages int `json:"max_pages"`

	// MaxFileSize is the largest response body, in bytes, that is downloaded.
	MaxFileSize int64 `json:"max_file_size"`

	// AllowedFileTypes are the file types that are stored and extracted.
	AllowedFileTypes []FileType `json:"allowed_file_types"`

	RespectRobotsTxt bool `json:"respect_robots_txt"`
	FollowRedirects  bool `json:"follow_redirects"`
	ExtractMetadata  bool `json:"extract_metadata"`

	// MaxRetries bounds the delayed re-queues after network failures.
	MaxRetries int `json:"max_retries"`

	// SeedSitemaps enqueues the URLs listed by robots.txt sitemaps at depth 1.
	SeedSitemaps bool `json:"seed_sitemaps"`
}

// DefaultSessionSettings returns the settings used when nothing is configured.
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{
		MaxDepth:         DefaultMaxDepth,
		RateLimit:        DefaultRateLimit,
		MaxPages:         DefaultMaxPages,
		MaxFileSize:      DefaultMaxFileSize,
		AllowedFileTypes: slices.Clone(DefaultAllowedFileTypes),
		RespectRobotsTxt: true,
		FollowRedirects:  true,
		ExtractMetadata:  true,
		MaxRetries:       DefaultMaxRetries,
	}
}

// IsAllowed reports whether files of type t are stored and extracted.
func (s SessionSettings) IsAllowed(t FileType) bool {
	return slices.Contains(s.AllowedFileTypes, t)
}

// CrawlSession is the aggregate root of a crawl. Queue items, results and
// logs belong to exactly one session and are deleted with it.
type CrawlSession struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	TargetURL    string          `json:"target_url"`
	TargetDomain string          `json:"target_domain"`
	Settings     SessionSettings `json:"settings"`
	Status       SessionStatus   `json:"status"`

	URLsDiscovered int `json:"total_urls_discovered"`
	URLsProcessed  int `json:"total_urls_processed"`
	FilesFound     int `json:"total_files_found"`
	Errors         int `json:"total_errors"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewCrawlSession returns a pending session with a random ID.
func NewCrawlSession(name, targetURL, targetDomain string, settings SessionSettings, now time.Time) *CrawlSession {
	if name == "" {
		name = targetDomain
	}
	return &CrawlSession{
		ID:           uuid.NewString(),
		Name:         name,
		TargetURL:    targetURL,
		TargetDomain: targetDomain,
		Settings:     settings,
		Status:       SessionPending,
		CreatedAt:    now,
	}
}

// IsActive reports whether the session is pending, running or paused.
func (s *CrawlSession) IsActive() bool {
	return s.Status.IsActive()
}

// ProgressPercentage returns processed/max_pages as a percentage in [0, 100].
// Unlimited sessions always report 0.
func (s *CrawlSession) ProgressPercentage() float64 {
	if s.Settings.MaxPages <= 0 {
		return 0
	}
	p := float64(s.URLsProcessed) / float64(s.Settings.MaxPages) * 100
	return min(100, p)
}

// Duration returns the elapsed crawl time. A session that has not
// completed is measured against now; one that never started returns 0.
func (s *CrawlSession) Duration(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt)
}

// MaxPagesReached reports whether max_pages is set and has been hit.
func (s *CrawlSession) MaxPagesReached() bool {
	return s.Settings.MaxPages > 0 && s.URLsProcessed >= s.Settings.MaxPages
}
