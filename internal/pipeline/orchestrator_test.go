package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"

	"github.com/nao1215/fisgon/internal/database"
	"github.com/nao1215/fisgon/internal/extract"
	"github.com/nao1215/fisgon/internal/model"
	"github.com/nao1215/fisgon/internal/storage"
)

type orchestratorFixture struct {
	store *database.Store
	fs    afero.Fs
	blobs *storage.Store
	orch  *Orchestrator
}

func newOrchestratorFixture(t *testing.T, client *http.Client, opts ...OrchestratorOption) *orchestratorFixture {
	t.Helper()

	store, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	fs := afero.NewMemMapFs()
	blobs := storage.New(fs, "/data")
	engine := extract.NewEngine(extract.DefaultCapabilities())

	opts = append([]OrchestratorOption{WithHTTPClient(client), WithWorkers(2)}, opts...)
	return &orchestratorFixture{
		store: store,
		fs:    fs,
		blobs: blobs,
		orch:  NewOrchestrator(store, blobs, engine, opts...),
	}
}

// newSite serves a small site:
//
//	/              links to about, notes, a private page and a missing page
//	/about.html    links back to /
//	/notes.txt     a stored file
//	/robots.txt    disallows /private/
func newSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	})
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>
			<a href="/about.html">About</a>
			<a href="/notes.txt">Notes</a>
			<a href="/private/secret.html">Secret</a>
			<a href="/missing.html">Missing</a>
		</body></html>`)
	})
	mux.HandleFunc("/about.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><a href="/">Home</a></body></html>`)
	})
	mux.HandleFunc("/notes.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "meeting notes")
	})
	mux.HandleFunc("/private/secret.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func siteSettings() model.SessionSettings {
	settings := model.DefaultSessionSettings()
	settings.RateLimit = 0
	settings.MaxRetries = 0
	settings.AllowedFileTypes = []model.FileType{model.FileTypeTXT, model.FileTypePDF}
	return settings
}

func logMessages(t *testing.T, store *database.Store, sessionID string) map[string]*model.CrawlLog {
	t.Helper()

	logs, err := store.ListLogs(context.Background(), sessionID, 0)
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	messages := make(map[string]*model.CrawlLog, len(logs))
	for _, l := range logs {
		messages[l.Message] = l
	}
	return messages
}

func TestOrchestrator_Create(t *testing.T) {
	t.Parallel()

	t.Run("normalizes the target and prepares storage", func(t *testing.T) {
		t.Parallel()

		f := newOrchestratorFixture(t, http.DefaultClient)
		session, err := f.orch.Create(context.Background(), "", "HTTPS://Example.COM", model.DefaultSessionSettings())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.TargetURL != "https://example.com/" || session.TargetDomain != "example.com" {
			t.Errorf("unexpected target %s (%s)", session.TargetURL, session.TargetDomain)
		}
		if session.Name != "example.com" || session.Status != model.SessionPending {
			t.Errorf("unexpected session %+v", session)
		}
		if ok, _ := afero.DirExists(f.fs, f.blobs.SessionDir(session.ID)); !ok {
			t.Error("expected the session directory to exist")
		}
	})

	t.Run("rejects invalid targets", func(t *testing.T) {
		t.Parallel()

		f := newOrchestratorFixture(t, http.DefaultClient)
		for _, target := range []string{"", "example.com", "ftp://example.com/", "mailto:someone@example.com"} {
			if _, err := f.orch.Create(context.Background(), "x", target, model.DefaultSessionSettings()); !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("%q: expected ErrInvalidTarget, got %v", target, err)
			}
		}
	})
}

func TestOrchestrator_Run(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := newOrchestratorFixture(t, server.Client())
	ctx := context.Background()

	session, err := f.orch.Create(ctx, "site", server.URL, siteSettings())
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := f.orch.Run(ctx, session.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := f.store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Status != model.SessionCompleted || got.CompletedAt == nil {
		t.Errorf("expected a completed session, got %s", got.Status)
	}
	if got.URLsDiscovered != 5 {
		t.Errorf("expected 5 discovered URLs, got %d", got.URLsDiscovered)
	}
	if got.URLsProcessed != 3 {
		t.Errorf("expected 3 processed URLs, got %d", got.URLsProcessed)
	}
	if got.FilesFound != 1 {
		t.Errorf("expected 1 file, got %d", got.FilesFound)
	}
	if got.Errors != 1 {
		t.Errorf("expected 1 error, got %d", got.Errors)
	}

	items, err := f.store.ListQueueItems(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to list queue: %v", err)
	}
	statuses := map[string]model.QueueStatus{}
	for _, item := range items {
		statuses[item.URL] = item.Status
	}
	want := map[string]model.QueueStatus{
		server.URL + "/":                    model.QueueCompleted,
		server.URL + "/about.html":          model.QueueCompleted,
		server.URL + "/notes.txt":           model.QueueCompleted,
		server.URL + "/private/secret.html": model.QueueSkipped,
		server.URL + "/missing.html":        model.QueueFailed,
	}
	for u, status := range want {
		if statuses[u] != status {
			t.Errorf("%s: expected %s, got %s", u, status, statuses[u])
		}
	}

	results, err := f.store.ResultsWithMetadata(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(results) != 1 || results[0].FileType != model.FileTypeTXT {
		t.Fatalf("expected the text file with metadata, got %+v", results)
	}
	if data, err := f.blobs.ReadFile(results[0].FilePath); err != nil || string(data) != "meeting notes" {
		t.Errorf("unexpected stored content %q, %v", data, err)
	}

	messages := logMessages(t, f.store, session.ID)
	for _, msg := range []string{"crawl started", "robots.txt processed", "discovered new URLs", "crawl completed"} {
		if messages[msg] == nil {
			t.Errorf("expected a %q log entry", msg)
		}
	}
	if done := messages["crawl completed"]; done != nil {
		if done.Details["total_urls_processed"] != float64(3) {
			t.Errorf("unexpected completion details %v", done.Details)
		}
		if _, ok := done.Details["duration_minutes"]; !ok {
			t.Error("expected duration_minutes in the completion log")
		}
	}

	if err := f.orch.Run(ctx, session.ID); !errors.Is(err, ErrSessionNotRunnable) {
		t.Errorf("expected ErrSessionNotRunnable for a completed session, got %v", err)
	}
}

func TestOrchestrator_MaxPages(t *testing.T) {
	t.Parallel()

	server := newSite(t)
	f := newOrchestratorFixture(t, server.Client())
	ctx := context.Background()

	settings := siteSettings()
	settings.MaxPages = 1
	session, err := f.orch.Create(ctx, "", server.URL, settings)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := f.orch.Run(ctx, session.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := f.store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Status != model.SessionCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.URLsProcessed != 1 {
		t.Errorf("processed must not exceed max_pages, got %d", got.URLsProcessed)
	}
	pending, err := f.store.CountQueueItems(ctx, session.ID, model.QueuePending)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if pending != 4 {
		t.Errorf("expected 4 pending items left, got %d", pending)
	}
}

func TestOrchestrator_InterruptAndResume(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	started := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
			<-r.Context().Done()
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>done</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	f := newOrchestratorFixture(t, server.Client())
	settings := siteSettings()
	settings.RespectRobotsTxt = false

	session, err := f.orch.Create(context.Background(), "", server.URL, settings)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	if err := f.orch.Run(ctx, session.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got, err := f.store.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Status != model.SessionPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if got.URLsProcessed != 0 || got.Errors != 0 {
		t.Errorf("an interrupted fetch must not be counted, got %+v", got)
	}

	if err := f.orch.Resume(context.Background(), session.ID); err != nil {
		t.Fatalf("failed to resume: %v", err)
	}
	got, err = f.store.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Status != model.SessionCompleted || got.URLsProcessed != 1 {
		t.Errorf("expected the resumed crawl to complete, got %s with %d processed", got.Status, got.URLsProcessed)
	}

	messages := logMessages(t, f.store, session.ID)
	if messages["crawl paused"] == nil || messages["crawl resumed"] == nil {
		t.Error("expected pause and resume log entries")
	}
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("cancel skips outstanding items", func(t *testing.T) {
		t.Parallel()

		f := newOrchestratorFixture(t, http.DefaultClient)
		ctx := context.Background()

		session, err := f.orch.Create(ctx, "", "https://example.com/", model.DefaultSessionSettings())
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if _, err := f.store.InsertQueueItem(ctx, &model.URLQueueItem{
			SessionID: session.ID, URL: "https://example.com/", FileType: model.FileTypeHTML,
			Status: model.QueuePending, Priority: model.PrioritySeed, DiscoveredAt: testTime,
		}); err != nil {
			t.Fatalf("failed to insert item: %v", err)
		}

		if err := f.orch.Cancel(ctx, session.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		skipped, err := f.store.CountQueueItems(ctx, session.ID, model.QueueSkipped)
		if err != nil || skipped != 1 {
			t.Errorf("expected 1 skipped item, got %d (%v)", skipped, err)
		}
		entry := logMessages(t, f.store, session.ID)[CancelMessage]
		if entry == nil || entry.Level != model.LogWarning {
			t.Errorf("expected a warning %q, got %+v", CancelMessage, entry)
		}
		if err := f.orch.Run(ctx, session.ID); !errors.Is(err, ErrSessionNotRunnable) {
			t.Errorf("expected ErrSessionNotRunnable, got %v", err)
		}
	})

	t.Run("pause requires a running session", func(t *testing.T) {
		t.Parallel()

		f := newOrchestratorFixture(t, http.DefaultClient)
		session, err := f.orch.Create(context.Background(), "", "https://example.com/", model.DefaultSessionSettings())
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if err := f.orch.Pause(context.Background(), session.ID); !errors.Is(err, database.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("delete removes rows and files", func(t *testing.T) {
		t.Parallel()

		server := newSite(t)
		f := newOrchestratorFixture(t, server.Client())
		ctx := context.Background()

		session, err := f.orch.Create(ctx, "", server.URL, siteSettings())
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if err := f.orch.Run(ctx, session.ID); err != nil {
			t.Fatalf("failed to run: %v", err)
		}

		if err := f.orch.Delete(ctx, session.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := f.store.GetSession(ctx, session.ID); !errors.Is(err, database.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
		if ok, _ := afero.DirExists(f.fs, f.blobs.SessionDir(session.ID)); ok {
			t.Error("expected the session directory to be removed")
		}
	})

	t.Run("delete result removes the stored file", func(t *testing.T) {
		t.Parallel()

		server := newSite(t)
		f := newOrchestratorFixture(t, server.Client())
		ctx := context.Background()

		session, err := f.orch.Create(ctx, "", server.URL, siteSettings())
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if err := f.orch.Run(ctx, session.ID); err != nil {
			t.Fatalf("failed to run: %v", err)
		}
		results, err := f.store.ListResults(ctx, session.ID)
		if err != nil || len(results) != 1 {
			t.Fatalf("expected 1 result, got %d (%v)", len(results), err)
		}

		if err := f.orch.DeleteResult(ctx, results[0].ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := f.blobs.ReadFile(results[0].FilePath); err == nil {
			t.Error("expected the stored file to be removed")
		}
		if err := f.orch.DeleteResult(ctx, results[0].ID); !errors.Is(err, database.ErrResultNotFound) {
			t.Errorf("expected ErrResultNotFound, got %v", err)
		}
	})
}
