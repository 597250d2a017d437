package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art0007i/bonk-sticks-map-converter/internal/beatmap"
	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
)

const mapJSON = `{
	"id": "2f8a1",
	"name": "Example Map",
	"metadata": {"bpm": 128, "duration": 210, "songName": "Example", "songAuthorName": "Artist", "levelAuthorName": "Mapper"},
	"stats": {"upvotes": 50, "downvotes": 8},
	"versions": [
		{"hash": "new", "downloadURL": "https://cdn.example/new.zip", "coverURL": "https://cdn.example/new.jpg",
		 "diffs": [
			{"njs": 16, "offset": -0.2, "notes": 900, "bombs": 12, "obstacles": 30, "nps": 4.2, "seconds": 210, "characteristic": "Standard", "difficulty": "ExpertPlus", "label": "Hell"},
			{"njs": 10, "notes": 100, "characteristic": "Legacy", "difficulty": "Easy"}
		 ]},
		{"hash": "old", "downloadURL": "https://cdn.example/old.zip"}
	]
}`

func newClient(t *testing.T, handler http.HandlerFunc) *catalog.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := catalog.New(server.URL+"/", "Test Agent/1.0", catalog.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := catalog.New("  ", "ua")
	assert.Error(t, err)
}

func TestGetMap(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/id/2f8a1", r.URL.Path)
		assert.Equal(t, "Test Agent/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mapJSON))
	})

	detail, err := client.GetMap(context.Background(), "2f8a1")
	require.NoError(t, err)
	assert.Equal(t, "Example Map", detail.Name)
	latest, ok := detail.Latest()
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/new.zip", latest.DownloadURL)
}

func TestGetMapNotFound(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := client.GetMap(context.Background(), "ffff")
	assert.ErrorIs(t, err, catalog.ErrMapNotFound)
}

func TestGetMapServerError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.GetMap(context.Background(), "ffff")
	require.Error(t, err)
	assert.False(t, errors.Is(err, catalog.ErrMapNotFound))
}

func TestSearchQueryParameters(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/text/3", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Relevance", q.Get("sortOrder"))
		assert.Equal(t, "camellia", q.Get("q"))
		assert.Equal(t, "false", q.Get("noodle"))
		assert.Equal(t, "false", q.Get("me"))
		_, _ = w.Write([]byte(`{"docs":[` + mapJSON + `]}`))
	})

	resp, err := client.Search(context.Background(), catalog.SearchOptions{
		Query:             "camellia",
		Order:             catalog.SortRelevance,
		ExcludeExtensions: true,
	}, 3)
	require.NoError(t, err)
	require.Len(t, resp.Docs, 1)
}

func TestSearchDefaultsToLatestWithExtensions(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Latest", q.Get("sortOrder"))
		assert.False(t, q.Has("q"))
		assert.False(t, q.Has("noodle"))
		_, _ = w.Write([]byte(`{"docs":[]}`))
	})
	resp, err := client.Search(context.Background(), catalog.SearchOptions{}, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Docs)
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pkg.zip":
			_, _ = w.Write([]byte("zip-bytes"))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	t.Cleanup(server.Close)
	client, err := catalog.New("https://api.example", "", catalog.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	data, err := client.Download(context.Background(), server.URL+"/pkg.zip")
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))

	_, err = client.Download(context.Background(), server.URL+"/denied.zip")
	assert.Error(t, err)
}

func TestDownloadHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client, err := catalog.New(server.URL, "", catalog.WithTimeout(10*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Download(ctx, server.URL+"/slow.zip")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimplify(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(mapJSON))
	})
	detail, err := client.GetMap(context.Background(), "2f8a1")
	require.NoError(t, err)

	simple := catalog.Simplify(*detail)
	assert.Equal(t, "2f8a1", simple.ID)
	assert.Equal(t, 42, simple.Upvotes)
	assert.Equal(t, "https://cdn.example/new.jpg", simple.CoverURL)
	assert.Equal(t, "Mapper", simple.Metadata.LevelAuthorName)
	require.Len(t, simple.Diffs, 2)

	first := simple.Diffs[0]
	require.NotNil(t, first.Characteristic)
	require.NotNil(t, first.Difficulty)
	assert.Equal(t, beatmap.Standard, *first.Characteristic)
	assert.Equal(t, beatmap.ExpertPlus, *first.Difficulty)
	assert.Equal(t, "Hell", first.Label)

	assert.Nil(t, simple.Diffs[1].Characteristic)
	assert.Equal(t, beatmap.Easy, *simple.Diffs[1].Difficulty)
}

func TestSimplifyWithoutVersions(t *testing.T) {
	simple := catalog.Simplify(catalog.MapDetail{ID: "x", Stats: catalog.MapStats{Upvotes: 1, Downvotes: 3}})
	assert.Equal(t, -2, simple.Upvotes)
	assert.Empty(t, simple.CoverURL)
	assert.NotNil(t, simple.Diffs)
}
