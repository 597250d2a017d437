package testsupport

import (
	"testing"

	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
	"github.com/art0007i/bonk-sticks-map-converter/internal/history"
	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
	"github.com/art0007i/bonk-sticks-map-converter/internal/mapcache"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCache opens the map cache rooted at cfg.Paths.CacheDir.
func MustOpenCache(t testing.TB, cfg *config.Config) *mapcache.Store {
	t.Helper()

	store, err := mapcache.NewFromConfig(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("mapcache.NewFromConfig: %v", err)
	}
	return store
}
