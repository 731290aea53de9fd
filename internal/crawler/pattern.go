package crawler

import (
	"path/filepath"
	"strings"
)

// matchPattern checks if a URL path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match everything below a directory
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users/edit"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") && !strings.ContainsAny(ext, "*?[") {
		if strings.HasSuffix(strings.ToLower(path), strings.ToLower(ext)) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}
