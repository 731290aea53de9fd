package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/fisgon/internal/model"
)

// blockedPatterns reject URLs that must never be queued.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)mailto:`),
	regexp.MustCompile(`(?i)tel:`),
	regexp.MustCompile(`(?i)ftp:`),
	regexp.MustCompile(`(?i)\?.*logout`),
	regexp.MustCompile(`(?i)\?.*signout`),
	regexp.MustCompile(`(?i)/logout`),
	regexp.MustCompile(`(?i)/signout`),
}

var multiSlash = regexp.MustCompile(`/{2,}`)

// Validate reports whether raw is an absolute http(s) URL that is not
// blocklisted. When allowedDomain is non-empty the registrable domain of
// raw must equal the registrable domain of allowedDomain.
func Validate(raw, allowedDomain string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return false
	}
	for _, re := range blockedPatterns {
		if re.MatchString(raw) {
			return false
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() == "" {
		return false
	}

	if allowedDomain == "" {
		return true
	}
	got, err := RegistrableDomain(u.Hostname())
	if err != nil {
		return false
	}
	want, err := RegistrableDomain(allowedDomain)
	if err != nil {
		return false
	}
	return got == want
}

// RegistrableDomain returns the eTLD+1 of host ("www.example.co.uk" ->
// "example.co.uk"). IP addresses and single-label hosts such as
// "localhost" are returned unchanged.
func RegistrableDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	if host == "" {
		return "", ErrEmptyHost
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host, nil
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("failed to derive registrable domain of %q: %w", host, err)
	}
	return domain, nil
}

// mimeTypes maps content types, without parameters, to file types.
var mimeTypes = map[string]model.FileType{
	"application/pdf":    model.FileTypePDF,
	"application/msword": model.FileTypeDOC,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   model.FileTypeDOCX,
	"application/vnd.ms-excel":                                                  model.FileTypeXLS,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         model.FileTypeXLSX,
	"application/vnd.ms-powerpoint":                                             model.FileTypePPT,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": model.FileTypePPTX,
	"application/vnd.oasis.opendocument.text":                                   model.FileTypeODT,
	"application/vnd.oasis.opendocument.spreadsheet":                            model.FileTypeODS,
	"application/vnd.oasis.opendocument.presentation":                           model.FileTypeODP,
	"image/jpeg":       model.FileTypeJPG,
	"image/png":        model.FileTypePNG,
	"image/gif":        model.FileTypeGIF,
	"image/tiff":       model.FileTypeTIFF,
	"audio/mpeg":       model.FileTypeMP3,
	"video/mp4":        model.FileTypeMP4,
	"application/xml":  model.FileTypeXML,
	"text/xml":         model.FileTypeXML,
	"application/json": model.FileTypeJSON,
	"text/html":        model.FileTypeHTML,
	"text/plain":       model.FileTypeTXT,
	"text/csv":         model.FileTypeCSV,
}

// Classify infers the file type of raw. The trailing extension of the URL
// path wins when it is a known type (case-insensitive, returned as-is so
// "jpeg" stays "jpeg"); otherwise contentType is looked up; the default
// is html.
func Classify(raw, contentType string) model.FileType {
	if ft, ok := extensionType(raw); ok {
		return ft
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ft, ok := mimeTypes[ct]; ok {
		return ft
	}
	return model.FileTypeHTML
}

func extensionType(raw string) (model.FileType, bool) {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "" {
		return "", false
	}
	ft := model.FileType(ext)
	for _, known := range model.KnownFileTypes {
		if ft == known {
			return ft, true
		}
	}
	return "", false
}

// Normalize resolves raw against base (when base is non-empty), lowercases
// scheme and host, removes the fragment, collapses repeated slashes in the
// path and optionally drops the query string. An empty path becomes "/".
func Normalize(raw, base string, stripQuery bool) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("%w: base %s", ErrInvalidURL, base)
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme == "" || ref.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrNotAbsolute, raw)
	}

	ref.Scheme = strings.ToLower(ref.Scheme)
	ref.Host = strings.ToLower(ref.Host)
	ref.Fragment = ""
	ref.RawFragment = ""
	if stripQuery {
		ref.RawQuery = ""
		ref.ForceQuery = false
	}
	if ref.Path == "" {
		ref.Path = "/"
	}
	ref.Path = multiSlash.ReplaceAllString(ref.Path, "/")
	ref.RawPath = ""
	return ref.String(), nil
}

// Clean normalizes raw and drops its query. raw is returned unchanged when
// it cannot be normalized.
func Clean(raw string) string {
	cleaned, err := Normalize(raw, "", true)
	if err != nil {
		return raw
	}
	return cleaned
}

// Domain returns the lowercase host of raw without port.
func Domain(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %s", ErrNotAbsolute, raw)
	}
	return strings.ToLower(u.Hostname()), nil
}

// IsSameOrigin reports whether a and b share scheme and host.
func IsSameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

const maxFilenameLength = 200

// SanitizeFilename makes name safe to use as a file name.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(name, "_"))
	if len(name) > maxFilenameLength {
		ext := path.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxFilenameLength-10], "") + ext
	}
	if name == "" {
		return "download"
	}
	return name
}

// BaseName returns the unescaped last path segment of raw, or "index.html".
func BaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "index.html"
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return "index.html"
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return "index.html"
	}
	return base
}

var fileExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".odt", ".ods", ".odp", ".zip", ".rar", ".tar", ".gz",
	".jpg", ".jpeg", ".png", ".gif", ".tiff", ".bmp",
	".mp3", ".mp4", ".avi", ".mov", ".wmv", ".flv",
	".txt", ".csv", ".xml", ".json",
}

var filePathPatterns = regexp.MustCompile(`(?i)/download/|/files/|/documents/|/uploads/|/attachments/|\.pdf\?|\.doc\?|\.xlsx?\?`)

// IsLikelyFileURL reports whether raw probably points to a downloadable file.
func IsLikelyFileURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, ext := range fileExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return filePathPatterns.MatchString(raw)
}

var textTypes = []string{
	"text/", "application/json", "application/xml",
	"application/javascript", "application/x-javascript",
}

// IsBinaryType reports whether contentType describes binary content.
func IsBinaryType(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, t := range textTypes {
		if strings.HasPrefix(ct, t) {
			return false
		}
	}
	return true
}

// FormatFileSize renders n bytes in IEC units ("1.5 MiB").
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
