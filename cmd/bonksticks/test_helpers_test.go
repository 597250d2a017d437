package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
	"github.com/art0007i/bonk-sticks-map-converter/internal/testsupport"
)

const testInfo = `{
	"_songName": "Example",
	"_beatsPerMinute": 120,
	"_songFilename": "song.ogg",
	"_coverImageFilename": "cover.jpg",
	"_environmentName": "DefaultEnvironment",
	"_difficultyBeatmapSets": [{
		"_beatmapCharacteristicName": "Standard",
		"_difficultyBeatmaps": [{"_difficulty": "Hard", "_noteJumpMovementSpeed": 16, "_beatmapFilename": "Hard.dat"}]
	}]
}`

const testDifficulty = `{"_version": "2.2.0", "_notes": [{"_time": 2, "_lineIndex": 1, "_lineLayer": 0, "_type": 1, "_cutDirection": 1}]}`

type cliTestEnv struct {
	baseDir    string
	cacheDir   string
	logDir     string
	configPath string
	catalog    *httptest.Server
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("BONKSTICKS_API_TOKEN", "")
	t.Setenv("BEATSAVER_BASE_URL", "")

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:  base,
		cacheDir: filepath.Join(base, "cache"),
		logDir:   filepath.Join(base, "logs"),
	}
	env.catalog = httptest.NewServer(newCatalogHandler(t, env))
	t.Cleanup(env.catalog.Close)

	env.configPath = filepath.Join(base, "config.toml")
	writeTestConfig(t, env.configPath, env, "")
	return env
}

func newCatalogHandler(t *testing.T, env *cliTestEnv) http.Handler {
	pkg := testsupport.BuildPackage(t, map[string]string{
		"Info.dat":  testInfo,
		"Hard.dat":  testDifficulty,
		"song.ogg":  "OggS-song",
		"cover.jpg": "JFIF-cover",
	})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /maps/id/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id != "1a2b" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		detail := catalog.MapDetail{
			ID:   id,
			Name: "Example Map",
			Versions: []catalog.MapVersion{{
				DownloadURL: env.catalog.URL + "/dl/" + id + ".zip",
			}},
		}
		_ = json.NewEncoder(w).Encode(detail)
	})
	mux.HandleFunc("GET /dl/{file}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pkg)
	})
	mux.HandleFunc("GET /search/text/{page}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"docs":[]}`))
	})
	return mux
}

func writeTestConfig(t *testing.T, path string, env *cliTestEnv, extra string) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ncache_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[catalog]\nbase_url = %q\n\n%s",
		env.cacheDir,
		env.logDir,
		"127.0.0.1:0",
		env.catalog.URL,
		extra,
	)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
