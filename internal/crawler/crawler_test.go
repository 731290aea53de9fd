package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5000")
		_, _ = w.Write(make([]byte, 5000))
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for range 10 {
			_, _ = w.Write(make([]byte, 500))
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/headers", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestBot/1.0" ||
			r.Header.Get("Accept") != AcceptHeader ||
			r.Header.Get("Cookie") != "session=abc" ||
			r.Header.Get("X-Test") != "yes" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	fetcher := NewFetcher(server.Client(),
		WithUserAgent("TestBot/1.0"),
		WithCookie("session=abc"),
		WithHeaders(map[string]string{"X-Test": "yes"}),
		WithTimeout(5*time.Second),
	)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		out := fetcher.Fetch(ctx, server.URL+"/ok", 1024, true)
		if out.Kind != OutcomeSuccess {
			t.Fatalf("Kind = %v (%s)", out.Kind, out.Reason)
		}
		if out.StatusCode != http.StatusOK || !out.IsHTML() {
			t.Errorf("status=%d content-type=%q", out.StatusCode, out.ContentType)
		}
		if string(out.Body) != "<html><body>hello</body></html>" || out.Size != int64(len(out.Body)) {
			t.Errorf("body=%q size=%d", out.Body, out.Size)
		}
	})

	t.Run("non-200 is an HTTP failure", func(t *testing.T) {
		t.Parallel()

		out := fetcher.Fetch(ctx, server.URL+"/missing", 1024, true)
		if out.Kind != OutcomeHTTPFailure || out.Reason != "HTTP 404" {
			t.Errorf("Kind=%v Reason=%q", out.Kind, out.Reason)
		}
	})

	t.Run("declared size above limit is skipped", func(t *testing.T) {
		t.Parallel()

		out := fetcher.Fetch(ctx, server.URL+"/big", 1024, true)
		if out.Kind != OutcomeSkipped || out.Reason != ReasonTooLarge {
			t.Errorf("Kind=%v Reason=%q", out.Kind, out.Reason)
		}
		if out.Body != nil {
			t.Error("body should not be kept")
		}
	})

	t.Run("undeclared size above limit is skipped", func(t *testing.T) {
		t.Parallel()

		out := fetcher.Fetch(ctx, server.URL+"/stream", 1024, true)
		if out.Kind != OutcomeSkipped || out.Reason != ReasonTooLarge {
			t.Errorf("Kind=%v Reason=%q", out.Kind, out.Reason)
		}
	})

	t.Run("redirects followed", func(t *testing.T) {
		t.Parallel()

		out := fetcher.Fetch(ctx, server.URL+"/moved", 1024, true)
		if out.Kind != OutcomeSuccess || !strings.HasSuffix(out.FinalURL, "/ok") {
			t.Errorf("Kind=%v FinalURL=%q", out.Kind, out.FinalURL)
		}
	})

	t.Run("redirects not followed", func(t *testing.T) {
		t.Parallel()

		out := fetcher.Fetch(ctx, server.URL+"/moved", 1024, false)
		if out.Kind != OutcomeHTTPFailure || out.StatusCode != http.StatusFound || out.Reason != "HTTP 302" {
			t.Errorf("Kind=%v status=%d Reason=%q", out.Kind, out.StatusCode, out.Reason)
		}
	})

	t.Run("sends configured headers", func(t *testing.T) {
		t.Parallel()

		out := fetcher.Fetch(ctx, server.URL+"/headers", 1024, true)
		if out.Kind != OutcomeSuccess {
			t.Errorf("Kind=%v Reason=%q", out.Kind, out.Reason)
		}
	})
}

func TestFetcher_NetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL + "/gone"
	server.Close()

	out := NewFetcher(http.DefaultClient, WithTimeout(2*time.Second)).Fetch(context.Background(), target, 1024, true)
	if out.Kind != OutcomeNetworkFailure {
		t.Fatalf("Kind = %v", out.Kind)
	}
	if out.Err == nil || out.Reason == "" {
		t.Error("network failure should carry the error")
	}
	if out.IsCanceled(context.Background()) {
		t.Error("failure was not caused by cancellation")
	}
}

func TestFetcher_Canceled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	out := NewFetcher(server.Client()).Fetch(ctx, server.URL, 1024, true)
	if !out.IsCanceled(ctx) {
		t.Errorf("IsCanceled() = false, Kind=%v Err=%v", out.Kind, out.Err)
	}
}

func TestOutcomeKind_String(t *testing.T) {
	t.Parallel()

	tests := map[OutcomeKind]string{
		OutcomeSuccess:        "success",
		OutcomeSkipped:        "skipped",
		OutcomeHTTPFailure:    "http_failure",
		OutcomeNetworkFailure: "network_failure",
		OutcomeKind(42):       "unknown",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}

func TestLinkExtractor_Extract(t *testing.T) {
	t.Parallel()

	t.Run("collects every link element", func(t *testing.T) {
		t.Parallel()

		page := `<html><head>
			<link rel="stylesheet" href="/style.css">
			<script src="/app.js"></script>
		</head><body>
			<a href="docs/report.pdf?download=1#top">Report</a>
			<img src="/img/photo.jpg">
			<video src="/media/clip.mp4"><source src="/media/clip.webm"></video>
			<audio src="/media/song.mp3"></audio>
			<iframe src="/embed/frame"></iframe>
			<embed src="/media/anim.swf">
			<object data="/files/sheet.xlsx"></object>
			<a href="/docs/report.pdf">duplicate</a>
		</body></html>`

		got := NewLinkExtractor("example.com").Extract([]byte(page), "text/html", "https://example.com/section/")
		want := []string{
			"https://example.com/style.css",
			"https://example.com/app.js",
			"https://example.com/section/docs/report.pdf",
			"https://example.com/img/photo.jpg",
			"https://example.com/media/clip.mp4",
			"https://example.com/media/clip.webm",
			"https://example.com/media/song.mp3",
			"https://example.com/embed/frame",
			"https://example.com/media/anim.swf",
			"https://example.com/files/sheet.xlsx",
			"https://example.com/docs/report.pdf",
		}
		if !slices.Equal(got, want) {
			t.Errorf("Extract() =\n%v\nwant\n%v", got, want)
		}
	})

	t.Run("rejects blocked and foreign links", func(t *testing.T) {
		t.Parallel()

		page := `<body>
			<a href="#section">fragment</a>
			<a href="javascript:void(0)">js</a>
			<a href="mailto:a@example.com">mail</a>
			<a href="tel:+56912345678">tel</a>
			<a href="ftp://example.com/file">ftp</a>
			<a href="/logout">logout</a>
			<a href="/account?action=signout">signout</a>
			<a href="https://other.org/page">other</a>
			<a href="https://cdn.example.com/a.pdf">subdomain</a>
			<a href="">empty</a>
		</body>`

		got := NewLinkExtractor("www.example.com").Extract([]byte(page), "", "https://www.example.com/")
		want := []string{"https://cdn.example.com/a.pdf"}
		if !slices.Equal(got, want) {
			t.Errorf("Extract() = %v, want %v", got, want)
		}
	})

	t.Run("honours base href", func(t *testing.T) {
		t.Parallel()

		page := `<html><head><base href="https://example.com/files/"></head>
			<body><a href="a.pdf">a</a></body></html>`
		got := NewLinkExtractor("example.com").Extract([]byte(page), "text/html", "https://example.com/index.html")
		if !slices.Equal(got, []string{"https://example.com/files/a.pdf"}) {
			t.Errorf("Extract() = %v", got)
		}
	})

	t.Run("tolerates malformed HTML", func(t *testing.T) {
		t.Parallel()

		page := `<div><a href="/one">one<p><a href='/two'>two</div></span><img src=/three.png>`
		got := NewLinkExtractor("example.com").Extract([]byte(page), "text/html", "https://example.com/")
		want := []string{"https://example.com/one", "https://example.com/two", "https://example.com/three.png"}
		if !slices.Equal(got, want) {
			t.Errorf("Extract() = %v, want %v", got, want)
		}
	})

	t.Run("decodes declared charset", func(t *testing.T) {
		t.Parallel()

		// "/café.pdf" in ISO-8859-1.
		page := []byte("<a href=\"/caf\xe9.pdf\">x</a>")
		got := NewLinkExtractor("example.com").Extract(page, "text/html; charset=iso-8859-1", "https://example.com/")
		if len(got) != 1 || got[0] != "https://example.com/caf%C3%A9.pdf" {
			t.Errorf("Extract() = %v", got)
		}
	})

	t.Run("applies ignore and follow patterns", func(t *testing.T) {
		t.Parallel()

		page := `<a href="/admin/panel">a</a><a href="/docs/a.pdf">b</a>
			<a href="/docs/b.zip">c</a><a href="/blog/post">d</a>`
		e := NewLinkExtractor("example.com",
			WithIgnorePatterns([]string{"/admin/*", "*.zip"}),
			WithFollowPatterns([]string{"/docs/*", "/admin/*"}),
		)
		got := e.Extract([]byte(page), "text/html", "https://example.com/")
		if !slices.Equal(got, []string{"https://example.com/docs/a.pdf"}) {
			t.Errorf("Extract() = %v", got)
		}
	})
}

// TestMatchPattern tests glob pattern matching.
func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		// Prefix patterns with /*
		{"admin prefix match", "/admin/*", "/admin/dashboard", true},
		{"admin prefix exact", "/admin/*", "/admin", true},
		{"admin prefix no match", "/admin/*", "/user/profile", false},
		{"admin prefix partial no match", "/admin/*", "/administrator", false},
		{"nested admin", "/admin/*", "/admin/users/edit", true},

		// Extension patterns with *.
		{"pdf extension", "*.pdf", "/docs/file.pdf", true},
		{"pdf extension upper case", "*.pdf", "/docs/FILE.PDF", true},
		{"pdf extension no match", "*.pdf", "/docs/file.txt", false},

		// Exact match patterns
		{"exact match", "/logout", "/logout", true},
		{"exact no match", "/logout", "/login", false},

		// Wildcard in middle
		{"wildcard middle", "/api/v?/users", "/api/v1/users", true},
		{"wildcard middle no match", "/api/v?/users", "/api/v10/users", false},

		// Basename patterns
		{"basename glob", "draft-*", "/docs/draft-2024.docx", true},

		// Root path
		{"root path", "/", "/", true},
		{"root no match prefix", "/admin/*", "/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}
