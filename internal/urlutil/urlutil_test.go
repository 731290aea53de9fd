package urlutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/fisgon/internal/model"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		url           string
		allowedDomain string
		expected      bool
	}{
		{"plain https", "https://example.com/docs/a.pdf", "", true},
		{"plain http", "http://example.com/", "", true},
		{"subdomain of allowed", "https://www.example.com/a", "example.com", true},
		{"allowed given as subdomain", "https://files.example.com/a", "www.example.com", true},
		{"other domain", "https://example.org/a", "example.com", false},
		{"public suffix aware", "https://a.example.co.uk/", "b.example.co.uk", true},
		{"different co.uk owner", "https://other.co.uk/", "example.co.uk", false},
		{"javascript", "javascript:alert(1)", "", false},
		{"mailto", "mailto:juan@example.com", "", false},
		{"tel", "tel:+56912345678", "", false},
		{"ftp", "ftp://example.com/file", "", false},
		{"fragment only", "#top", "", false},
		{"logout path", "https://example.com/logout", "", false},
		{"signout path", "https://example.com/account/signout", "", false},
		{"logout query", "https://example.com/index.php?action=LOGOUT", "", false},
		{"no host", "https:///path", "", false},
		{"relative", "/docs/a.pdf", "", false},
		{"empty", "", "", false},
		{"ip host", "http://127.0.0.1:8080/a", "127.0.0.1", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Validate(tc.url, tc.allowedDomain); got != tc.expected {
				t.Errorf("Validate(%q, %q) = %v, expected %v", tc.url, tc.allowedDomain, got, tc.expected)
			}
		})
	}
}

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		host     string
		expected string
	}{
		{"www.example.com", "example.com"},
		{"WWW.Example.COM", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"example.com:8443", "example.com"},
		{"127.0.0.1", "127.0.0.1"},
		{"localhost", "localhost"},
	}

	for _, tc := range testCases {
		got, err := RegistrableDomain(tc.host)
		if err != nil {
			t.Errorf("RegistrableDomain(%q) returned error: %v", tc.host, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("RegistrableDomain(%q) = %q, expected %q", tc.host, got, tc.expected)
		}
	}

	if _, err := RegistrableDomain(""); !errors.Is(err, ErrEmptyHost) {
		t.Errorf("expected ErrEmptyHost, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		url         string
		contentType string
		expected    model.FileType
	}{
		{"uppercase extension", "https://x.com/a.PDF", "", model.FileTypePDF},
		{"content type fallback", "https://x.com/a", "application/pdf", model.FileTypePDF},
		{"default html", "https://x.com/a", "", model.FileTypeHTML},
		{"jpeg is kept", "https://x.com/photo.jpeg", "", model.FileTypeJPEG},
		{"content type parameters", "https://x.com/data", "text/csv; charset=utf-8", model.FileTypeCSV},
		{"unknown extension uses content type", "https://x.com/page.php", "image/png", model.FileTypePNG},
		{"unknown extension and type", "https://x.com/page.php", "application/octet-stream", model.FileTypeHTML},
		{"query ignored", "https://x.com/file.xlsx?download=1", "", model.FileTypeXLSX},
		{"extension beats content type", "https://x.com/a.docx", "text/html", model.FileTypeDOCX},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.url, tc.contentType); got != tc.expected {
				t.Errorf("Classify(%q, %q) = %q, expected %q", tc.url, tc.contentType, got, tc.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		raw        string
		base       string
		stripQuery bool
		expected   string
	}{
		{"relative path", "docs/a.pdf", "https://example.com/dir/index.html", false, "https://example.com/dir/docs/a.pdf"},
		{"root relative", "/a.pdf", "https://example.com/dir/", false, "https://example.com/a.pdf"},
		{"host lowercased", "HTTPS://EXAMPLE.com/A", "", false, "https://example.com/A"},
		{"fragment removed", "https://example.com/a#sec", "", false, "https://example.com/a"},
		{"query kept", "https://example.com/a?x=1", "", false, "https://example.com/a?x=1"},
		{"query stripped", "https://example.com/a?x=1#f", "", true, "https://example.com/a"},
		{"empty path", "https://example.com", "", false, "https://example.com/"},
		{"double slashes", "https://example.com//a//b.pdf", "", false, "https://example.com/a/b.pdf"},
		{"protocol relative", "//cdn.example.com/x.png", "https://example.com/", false, "https://cdn.example.com/x.png"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tc.raw, tc.base, tc.stripQuery)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Normalize() = %q, expected %q", got, tc.expected)
			}
		})
	}

	t.Run("relative without base", func(t *testing.T) {
		t.Parallel()
		if _, err := Normalize("/a.pdf", "", false); !errors.Is(err, ErrNotAbsolute) {
			t.Errorf("expected ErrNotAbsolute, got %v", err)
		}
	})
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	if got := SanitizeFilename(`a<b>c:d"e/f\g|h?i*j.pdf`); got != "a_b_c_d_e_f_g_h_i_j.pdf" {
		t.Errorf("unexpected sanitized name %q", got)
	}
	if got := SanitizeFilename("   "); got != "download" {
		t.Errorf("expected default name, got %q", got)
	}

	long := strings.Repeat("x", 300) + ".pdf"
	got := SanitizeFilename(long)
	if len(got) > 200 {
		t.Errorf("expected at most 200 bytes, got %d", len(got))
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Errorf("expected extension to be kept, got %q", got)
	}
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"https://example.com/docs/report.pdf":   "report.pdf",
		"https://example.com/docs/":             "index.html",
		"https://example.com":                   "index.html",
		"https://example.com/a%20b.docx?x=1":    "a b.docx",
		"https://example.com/download/file.xls": "file.xls",
	}
	for raw, expected := range testCases {
		if got := BaseName(raw); got != expected {
			t.Errorf("BaseName(%q) = %q, expected %q", raw, got, expected)
		}
	}
}

func TestIsLikelyFileURL(t *testing.T) {
	t.Parallel()

	if !IsLikelyFileURL("https://example.com/a/report.PDF") {
		t.Error("pdf should look like a file")
	}
	if !IsLikelyFileURL("https://example.com/uploads/123") {
		t.Error("uploads path should look like a file")
	}
	if IsLikelyFileURL("https://example.com/about") {
		t.Error("plain page should not look like a file")
	}
}

func TestIsBinaryType(t *testing.T) {
	t.Parallel()

	if IsBinaryType("text/html; charset=utf-8") {
		t.Error("html is text")
	}
	if IsBinaryType("application/json") {
		t.Error("json is text")
	}
	if !IsBinaryType("application/pdf") {
		t.Error("pdf is binary")
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	if got := FormatFileSize(0); got != "0 B" {
		t.Errorf("FormatFileSize(0) = %q", got)
	}
	if got := FormatFileSize(1536); got != "1.5 KiB" {
		t.Errorf("FormatFileSize(1536) = %q", got)
	}
}
