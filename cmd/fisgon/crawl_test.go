package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/fisgon/internal/config"
	"github.com/nao1215/fisgon/internal/database"
	"github.com/nao1215/fisgon/internal/model"
)

func TestReadSettings(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		got, err := readSettings(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := model.DefaultSessionSettings()
		if got.MaxDepth != want.MaxDepth || got.RateLimit != want.RateLimit || got.MaxPages != want.MaxPages {
			t.Errorf("unexpected limits %+v", got)
		}
		if got.MaxFileSize != want.MaxFileSize {
			t.Errorf("expected max file size %d, got %d", want.MaxFileSize, got.MaxFileSize)
		}
		if !slices.Equal(got.AllowedFileTypes, want.AllowedFileTypes) {
			t.Errorf("expected default file types, got %v", got.AllowedFileTypes)
		}
		if !got.RespectRobotsTxt || !got.FollowRedirects || !got.ExtractMetadata || got.SeedSitemaps {
			t.Errorf("unexpected switches %+v", got)
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		err := cmd.ParseFlags([]string{
			"--depth", "5", "--rate", "0.5", "--max-pages", "0", "--max-file-size", "2MB",
			"--types", "PDF, .docx,pdf", "--no-robots", "--no-redirects", "--no-metadata",
			"--seed-sitemaps", "--max-retries", "1",
		})
		if err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		got, err := readSettings(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.MaxDepth != 5 || got.RateLimit != 0.5 || got.MaxPages != 0 || got.MaxRetries != 1 {
			t.Errorf("unexpected limits %+v", got)
		}
		if got.MaxFileSize != 2_000_000 {
			t.Errorf("expected 2MB, got %d", got.MaxFileSize)
		}
		if !slices.Equal(got.AllowedFileTypes, []model.FileType{model.FileTypePDF, model.FileTypeDOCX}) {
			t.Errorf("unexpected file types %v", got.AllowedFileTypes)
		}
		if got.RespectRobotsTxt || got.FollowRedirects || got.ExtractMetadata || !got.SeedSitemaps {
			t.Errorf("unexpected switches %+v", got)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()

		for _, args := range [][]string{
			{"--max-file-size", "lots"},
			{"--types", "exe"},
			{"--types", ""},
		} {
			cmd := NewCrawlCmd()
			if err := cmd.ParseFlags(args); err != nil {
				t.Fatalf("failed to parse flags: %v", err)
			}
			if _, err := readSettings(cmd); err == nil {
				t.Errorf("%v: expected an error", args)
			}
		}
	})
}

func TestApplySite(t *testing.T) {
	t.Parallel()

	site := config.SiteConfig{Depth: 7, RateLimit: 2, UserAgent: "site-agent"}

	t.Run("site values fill unset flags", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg := config.NewConfig()
		applySite(cmd, cfg, site)
		if cfg.Settings.MaxDepth != 7 || cfg.Settings.RateLimit != 2 || cfg.UserAgent != "site-agent" {
			t.Errorf("expected the site values, got depth=%d rate=%g ua=%q",
				cfg.Settings.MaxDepth, cfg.Settings.RateLimit, cfg.UserAgent)
		}
	})

	t.Run("explicit flags win", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--depth", "2", "--rate", "1", "--user-agent", "cli-agent"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg := config.NewConfig()
		cfg.Settings.MaxDepth = 2
		cfg.UserAgent = "cli-agent"
		applySite(cmd, cfg, site)
		if cfg.Settings.MaxDepth != 2 || cfg.Settings.RateLimit != 1 || cfg.UserAgent != "cli-agent" {
			t.Errorf("expected the flag values, got depth=%d rate=%g ua=%q",
				cfg.Settings.MaxDepth, cfg.Settings.RateLimit, cfg.UserAgent)
		}
	})

	t.Run("resume has no settings flags", func(t *testing.T) {
		t.Parallel()

		cmd := NewResumeCmd()
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg := config.NewConfig()
		applySite(cmd, cfg, site)
		if cfg.Settings.MaxDepth != model.DefaultMaxDepth || cfg.UserAgent != "site-agent" {
			t.Errorf("unexpected config depth=%d ua=%q", cfg.Settings.MaxDepth, cfg.UserAgent)
		}
	})
}

func TestNewEgress(t *testing.T) {
	t.Parallel()

	t.Run("direct client", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.Timeout = 5 * time.Second
		client, cleanup, err := newEgress(context.Background(), cfg, discardLogger(), &strings.Builder{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer cleanup()
		if client.Timeout != 5*time.Second || client.Jar == nil {
			t.Errorf("unexpected client %+v", client)
		}
	})

	t.Run("unreachable proxy", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ProxyAddress = "127.0.0.1:59997"
		if _, _, err := newEgress(context.Background(), cfg, discardLogger(), &strings.Builder{}); err == nil {
			t.Error("expected an error for an unreachable proxy")
		}
	})

	t.Run("invalid proxy address", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ProxyAddress = "not-an-address"
		if _, _, err := newEgress(context.Background(), cfg, discardLogger(), &strings.Builder{}); err == nil {
			t.Error("expected an error for an invalid proxy address")
		}
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newDocumentSite serves a page linking to two text files and a missing page.
func newDocumentSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Docs</title></head><body>
			<a href="/minutes.txt">Minutes</a>
			<a href="/budget.csv">Budget</a>
			<a href="/gone.html">Gone</a>
		</body></html>`)
	})
	mux.HandleFunc("/minutes.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "board meeting minutes")
	})
	mux.HandleFunc("/budget.csv", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, "item,amount\nservers,100\n")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// crawlSite runs a complete crawl of a fresh site and returns the env and
// the session.
func crawlSite(t *testing.T) (*testEnv, *model.CrawlSession) {
	t.Helper()

	server := newDocumentSite(t)
	te := newTestEnv(t)

	out, err := te.run(t, "crawl", "--name", "docs", "--rate", "0", "--types", "txt,csv",
		"--no-robots", "--max-retries", "0", "--workers", "2", server.URL)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	if !strings.Contains(out, "Crawl completed") {
		t.Errorf("expected a completion summary, got %q", out)
	}

	store, err := database.Open(te.dataDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	sessions, err := store.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	return te, sessions[0]
}

func TestCrawlCmd(t *testing.T) {
	t.Parallel()

	te, session := crawlSite(t)

	if session.Name != "docs" || session.Status != model.SessionCompleted {
		t.Errorf("unexpected session %s (%s)", session.Name, session.Status)
	}
	if session.FilesFound != 2 {
		t.Errorf("expected 2 files, got %d", session.FilesFound)
	}
	if session.Errors != 1 {
		t.Errorf("expected 1 error, got %d", session.Errors)
	}

	entries, err := os.ReadDir(filepath.Join(te.dataDir, "downloads", session.ID))
	if err != nil {
		t.Fatalf("failed to read the session directory: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 stored files, got %d", len(entries))
	}

	if _, err := te.run(t, "resume", session.ID); err == nil {
		t.Error("expected an error resuming a completed session")
	}
}

func TestCrawlCmd_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"no scheme", []string{"crawl", "example.com"}},
		{"depth out of range", []string{"crawl", "--depth", "11", "https://example.com"}},
		{"rate out of range", []string{"crawl", "--rate", "50", "https://example.com"}},
		{"file too large", []string{"crawl", "--max-file-size", "1GiB", "https://example.com"}},
		{"proxy and tor", []string{"crawl", "--proxy", "127.0.0.1:9050", "--tor", "https://example.com"}},
		{"missing url", []string{"crawl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			te := newTestEnv(t)
			if _, err := te.run(t, tt.args...); err == nil {
				t.Errorf("%v: expected an error", tt.args)
			}
		})
	}

	t.Run("conflicting egress is a config error", func(t *testing.T) {
		t.Parallel()

		te := newTestEnv(t)
		_, err := te.run(t, "crawl", "--proxy", "127.0.0.1:9050", "--tor", "https://example.com")
		if !errors.Is(err, config.ErrConflictingEgress) {
			t.Errorf("expected ErrConflictingEgress, got %v", err)
		}
	})
}
