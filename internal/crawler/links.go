package crawler

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/fisgon/internal/urlutil"
)

// linkAttrs maps element names to the attribute holding a URL.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"script": "src",
	"img":    "src",
	"source": "src",
	"iframe": "src",
	"embed":  "src",
	"video":  "src",
	"audio":  "src",
	"object": "data",
}

// LinkExtractor finds the crawlable links of an HTML document.
type LinkExtractor struct {
	// allowedDomain limits links to one registrable domain. Empty allows any.
	allowedDomain string

	// ignorePatterns are URL path globs that are never followed.
	ignorePatterns []string

	// followPatterns, when set, restrict links to matching paths.
	followPatterns []string
}

// LinkOption configures a LinkExtractor.
type LinkOption func(*LinkExtractor)

// WithIgnorePatterns sets URL path patterns to skip.
// Patterns use glob syntax (e.g., "/admin/*", "*.zip", "/logout*").
func WithIgnorePatterns(patterns []string) LinkOption {
	return func(e *LinkExtractor) {
		e.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow. If set, only URLs
// matching at least one pattern are returned.
func WithFollowPatterns(patterns []string) LinkOption {
	return func(e *LinkExtractor) {
		e.followPatterns = patterns
	}
}

// NewLinkExtractor returns an extractor that keeps links within allowedDomain.
func NewLinkExtractor(allowedDomain string, opts ...LinkOption) *LinkExtractor {
	e := &LinkExtractor{allowedDomain: allowedDomain}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the unique links of body in document order. Each link is
// resolved against baseURL (or the document's <base href>), validated
// against the allowed domain and stripped of its query and fragment.
// contentType is used to decode the body to UTF-8. Malformed HTML yields
// whatever links the tolerant parser recovers.
func (e *LinkExtractor) Extract(body []byte, contentType, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var r io.Reader = bytes.NewReader(body)
	if decoded, err := charset.NewReader(r, contentType); err == nil {
		r = decoded
	} else {
		r = bytes.NewReader(body)
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	links := make([]string, 0)
	baseSet := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "base" && !baseSet {
				if href := strings.TrimSpace(getAttr(n, "href")); href != "" {
					if u, err := base.Parse(href); err == nil {
						base = u
						baseSet = true
					}
				}
			}
			if attr, ok := linkAttrs[n.Data]; ok {
				if link, ok := e.resolve(getAttr(n, attr), base); ok {
					if _, dup := seen[link]; !dup {
						seen[link] = struct{}{}
						links = append(links, link)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links
}

// resolve turns a raw attribute value into a crawlable URL.
func (e *LinkExtractor) resolve(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref).String()
	if !urlutil.Validate(abs, e.allowedDomain) {
		return "", false
	}

	cleaned, err := urlutil.Normalize(abs, "", true)
	if err != nil {
		return "", false
	}
	if !e.shouldCrawl(cleaned) {
		return "", false
	}
	return cleaned, true
}

// shouldCrawl checks a URL against the ignore and follow patterns.
//
// Logic:
//  1. If URL matches any ignorePattern, skip it (return false)
//  2. If followPatterns is set and URL matches none, skip it (return false)
//  3. Otherwise, crawl it (return true)
func (e *LinkExtractor) shouldCrawl(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range e.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(e.followPatterns) == 0 {
		return true
	}
	for _, pattern := range e.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
