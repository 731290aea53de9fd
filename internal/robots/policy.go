package robots

import (
	"bufio"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultAgentTokens are the substrings that make a User-agent group
// apply to this crawler, in addition to "*".
var DefaultAgentTokens = []string{"fisgon", "crawler"}

// Policy is the parsed set of rules that apply to this crawler.
// A nil *Policy allows everything.
type Policy struct {
	allow        []string
	disallow     []string
	sitemaps     []string
	crawlDelay   time.Duration
	unrestricted bool
}

// Permissive returns a policy that allows every path.
func Permissive() *Policy {
	return &Policy{unrestricted: true}
}

// Parse reads robots.txt directives from r. A User-agent group applies
// when one of its agents is "*" or contains one of agentTokens
// (DefaultAgentTokens when none are given). Sitemap lines are collected
// whatever group they appear in. Parsing never fails; unreadable input
// yields the rules read so far.
func Parse(r io.Reader, agentTokens ...string) *Policy {
	if len(agentTokens) == 0 {
		agentTokens = DefaultAgentTokens
	}

	p := &Policy{}
	applies := false
	inAgentLines := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(value)

		if directive == "user-agent" {
			match := agentMatches(strings.ToLower(value), agentTokens)
			if inAgentLines {
				applies = applies || match
			} else {
				applies = match
			}
			inAgentLines = true
			continue
		}
		inAgentLines = false

		switch directive {
		case "sitemap":
			if value != "" {
				p.sitemaps = append(p.sitemaps, value)
			}
		case "allow":
			if applies && value != "" {
				p.allow = append(p.allow, value)
			}
		case "disallow":
			if applies && value != "" {
				p.disallow = append(p.disallow, value)
			}
		case "crawl-delay":
			if !applies {
				continue
			}
			if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
				p.crawlDelay = time.Duration(secs * float64(time.Second))
			}
		}
	}
	return p
}

func agentMatches(agent string, tokens []string) bool {
	if agent == "*" {
		return true
	}
	for _, t := range tokens {
		if t != "" && strings.Contains(agent, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// CanFetch reports whether the path of target may be fetched. target may
// be a full URL or a bare path.
func (p *Policy) CanFetch(target string) bool {
	if p == nil || p.unrestricted {
		return true
	}

	path := target
	if u, err := url.Parse(target); err == nil {
		path = u.EscapedPath()
	}
	if path == "" {
		path = "/"
	}

	for _, prefix := range p.allow {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, prefix := range p.disallow {
		if prefix == "/" || strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// CrawlDelay returns the crawl-delay of the applicable group, or 0.
func (p *Policy) CrawlDelay() time.Duration {
	if p == nil {
		return 0
	}
	return p.crawlDelay
}

// Sitemaps returns every Sitemap URL listed in the file.
func (p *Policy) Sitemaps() []string {
	if p == nil {
		return nil
	}
	return p.sitemaps
}

// Unrestricted reports whether the policy came from a failed fetch.
func (p *Policy) Unrestricted() bool {
	return p == nil || p.unrestricted
}

// RulesFound is the number of allow and disallow rules that apply.
func (p *Policy) RulesFound() int {
	if p == nil {
		return 0
	}
	return len(p.allow) + len(p.disallow)
}
