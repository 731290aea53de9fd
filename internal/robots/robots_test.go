package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("disallow root blocks everything", func(t *testing.T) {
		t.Parallel()
		p := Parse(strings.NewReader("User-agent: *\nDisallow: /\n"))
		for _, path := range []string{"/", "/a", "/docs/x.pdf", "https://example.com/"} {
			if p.CanFetch(path) {
				t.Errorf("expected %q to be blocked", path)
			}
		}
	})

	t.Run("allow overrides broader disallow", func(t *testing.T) {
		t.Parallel()
		p := Parse(strings.NewReader("User-agent: *\nDisallow: /public\nAllow: /public/\n"))
		if !p.CanFetch("/public/report.pdf") {
			t.Error("expected /public/report.pdf to be allowed")
		}
		if p.CanFetch("/publicity") {
			t.Error("expected /publicity to be blocked")
		}
		if !p.CanFetch("/other") {
			t.Error("expected /other to be allowed")
		}
	})

	t.Run("other agents are ignored", func(t *testing.T) {
		t.Parallel()
		p := Parse(strings.NewReader("User-agent: Googlebot\nDisallow: /\n\nUser-agent: *\nDisallow: /private\n"))
		if !p.CanFetch("/public") {
			t.Error("googlebot rules must not apply")
		}
		if p.CanFetch("/private/a") {
			t.Error("wildcard rules must apply")
		}
	})

	t.Run("own agent token applies", func(t *testing.T) {
		t.Parallel()
		p := Parse(strings.NewReader("User-agent: Fisgon-Bot\nDisallow: /secret\n"))
		if p.CanFetch("/secret/a") {
			t.Error("expected rules for fisgon to apply")
		}
	})

	t.Run("grouped agents", func(t *testing.T) {
		t.Parallel()
		p := Parse(strings.NewReader("User-agent: *\nUser-agent: otherbot\nDisallow: /x\n"))
		if p.CanFetch("/x") {
			t.Error("group containing * must apply")
		}
	})

	t.Run("crawl delay and sitemaps", func(t *testing.T) {
		t.Parallel()
		content := "# comment\nSitemap: https://example.com/sitemap.xml\nUser-agent: other\nCrawl-delay: 30\nSitemap: https://example.com/s2.xml\nUser-agent: *\nCrawl-delay: 2.5\n"
		p := Parse(strings.NewReader(content))
		if p.CrawlDelay() != 2500*time.Millisecond {
			t.Errorf("expected 2.5s crawl delay, got %v", p.CrawlDelay())
		}
		sitemaps := p.Sitemaps()
		if len(sitemaps) != 2 || !slices.Contains(sitemaps, "https://example.com/s2.xml") {
			t.Errorf("unexpected sitemaps %v", sitemaps)
		}
	})

	t.Run("nil policy allows", func(t *testing.T) {
		t.Parallel()
		var p *Policy
		if !p.CanFetch("/anything") || !p.Unrestricted() {
			t.Error("nil policy must allow everything")
		}
	})
}

func TestFetcherFetch(t *testing.T) {
	t.Parallel()

	t.Run("parses robots on 200", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/robots.txt" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, "User-agent: *\nDisallow: /admin\n")
		}))
		defer server.Close()

		p := NewFetcher(server.Client()).Fetch(context.Background(), server.URL+"/start")
		if p.Unrestricted() {
			t.Fatal("expected a parsed policy")
		}
		if p.CanFetch("/admin/login") {
			t.Error("expected /admin to be blocked")
		}
	})

	t.Run("non-200 is fail-open", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		p := NewFetcher(server.Client()).Fetch(context.Background(), server.URL)
		if p == nil || !p.Unrestricted() {
			t.Fatal("expected a permissive policy")
		}
	})

	t.Run("network error is fail-open", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.NotFoundHandler())
		addr := server.URL
		server.Close()

		p := NewFetcher(http.DefaultClient, WithTimeout(time.Second)).Fetch(context.Background(), addr)
		if !p.CanFetch("/") {
			t.Error("expected a permissive policy")
		}
	})
}

func TestFetcherSitemapURLs(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%[1]s/docs.xml</loc></sitemap>
  <sitemap><loc>%[1]s/missing.xml</loc></sitemap>
</sitemapindex>`, server.URL)
	})
	mux.HandleFunc("/docs.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc> %[1]s/a.pdf </loc></url>
  <url><loc>%[1]s/b.docx</loc></url>
</urlset>`, server.URL)
	})

	urls, err := NewFetcher(server.Client()).SitemapURLs(context.Background(), server.URL+"/sitemap_index.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{server.URL + "/a.pdf", server.URL + "/b.docx"}
	if !slices.Equal(urls, expected) {
		t.Errorf("got %v, expected %v", urls, expected)
	}
}
