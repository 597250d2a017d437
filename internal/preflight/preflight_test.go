package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
	"github.com/art0007i/bonk-sticks-map-converter/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCatalog_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/text/0" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"docs":[]}`))
	}))
	defer srv.Close()

	result := CheckCatalog(context.Background(), config.Catalog{BaseURL: srv.URL, UserAgent: "test"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckCatalog_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckCatalog(context.Background(), config.Catalog{BaseURL: srv.URL, UserAgent: "test"})
	if result.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestRunAll_FlagsMissingCacheDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"docs":[]}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(srv.URL))
	cfg.Paths.CacheDir = filepath.Join(testsupport.BaseDir(cfg), "missing")

	results := RunAll(context.Background(), cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	failed, ok := FirstRequiredFailure(results)
	if !ok {
		t.Fatal("expected a required failure")
	}
	if failed.Name != "Cache directory" {
		t.Fatalf("unexpected failing check %q", failed.Name)
	}
	if !results[2].Passed {
		t.Fatalf("catalog check should pass: %s", results[2].Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if got := RunAll(context.Background(), nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
