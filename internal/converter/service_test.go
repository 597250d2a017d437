package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
	"github.com/art0007i/bonk-sticks-map-converter/internal/history"
	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
	"github.com/art0007i/bonk-sticks-map-converter/internal/mapcache"
	"github.com/art0007i/bonk-sticks-map-converter/internal/testsupport"
)

const infoDoc = `{
	"_songName": "Example",
	"_beatsPerMinute": 120,
	"_previewStartTime": 10,
	"_previewDuration": 12,
	"_songFilename": "song.ogg",
	"_coverImageFilename": "cover.jpg",
	"_environmentName": "DefaultEnvironment",
	"_songTimeOffset": 0,
	"_difficultyBeatmapSets": [{
		"_beatmapCharacteristicName": "Standard",
		"_difficultyBeatmaps": [{"_difficulty": "Expert", "_noteJumpMovementSpeed": 0, "_noteJumpStartBeatOffset": 0.5, "_beatmapFilename": "Expert.dat"}]
	}]
}`

const expertDoc = `{
	"version": "3.2.0",
	"colorNotes": [{"b": 2, "x": 1, "y": 0, "c": 0, "d": 1, "a": 0}],
	"obstacles": [{"b": 4, "x": 2, "y": 0, "w": 1, "h": 3, "d": 2}]
}`

func fullPackage(t *testing.T) []byte {
	return testsupport.BuildPackage(t, map[string]string{
		"Info.dat":   infoDoc,
		"Expert.dat": expertDoc,
		"song.ogg":   "OggS-song",
		"cover.jpg":  "JFIF-cover",
	})
}

type fakeCatalog struct {
	pkg         []byte
	getErr      error
	downloadErr error
	gate        chan struct{}
	searchDocs  []catalog.MapDetail

	getCalls      atomic.Int32
	downloadCalls atomic.Int32

	mu         sync.Mutex
	searchOpts catalog.SearchOptions
	searchPage int
}

func (f *fakeCatalog) GetMap(_ context.Context, id string) (*catalog.MapDetail, error) {
	f.getCalls.Add(1)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &catalog.MapDetail{
		ID:       id,
		Name:     "Example",
		Versions: []catalog.MapVersion{{DownloadURL: "https://cdn.example/" + id + ".zip"}},
	}, nil
}

func (f *fakeCatalog) Search(_ context.Context, opts catalog.SearchOptions, page int) (*catalog.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchOpts = opts
	f.searchPage = page
	return &catalog.SearchResponse{Docs: f.searchDocs}, nil
}

func (f *fakeCatalog) Download(ctx context.Context, _ string) ([]byte, error) {
	f.downloadCalls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.pkg, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []history.Record
}

func (r *fakeRecorder) Record(_ context.Context, rec history.Record) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return int64(len(r.records)), nil
}

func (r *fakeRecorder) all() []history.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]history.Record(nil), r.records...)
}

type failingCache struct {
	*mapcache.Store
}

func (failingCache) WriteAll(context.Context, string, []byte, []byte, []byte) error {
	return errors.New("disk full")
}

func newService(t *testing.T, cat Catalog, opts ...Option) (*Service, *mapcache.Store) {
	t.Helper()
	store, err := mapcache.New(t.TempDir(), 0, logging.NewNop())
	require.NoError(t, err)
	svc := New(cat, store, append([]Option{WithLogger(logging.NewNop())}, opts...)...)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, store
}

func decodeMap(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestMapDataConvertsAndCaches(t *testing.T) {
	cat := &fakeCatalog{pkg: fullPackage(t)}
	rec := &fakeRecorder{}
	svc, store := newService(t, cat, WithHistory(rec))
	ctx := context.Background()

	data, err := svc.MapData(ctx, "1a2b")
	require.NoError(t, err)
	doc := decodeMap(t, data)
	assert.Equal(t, "1a2b", doc["mapID"])
	assert.Equal(t, "Example", doc["name"])
	expert := doc["mapSets"].(map[string]any)["0"].(map[string]any)["3"].(map[string]any)
	assert.Equal(t, float64(10), expert["njs"])
	assert.Equal(t, "N,1,1,0,0,1,0\nO,2,2,0,1,3,1", expert["difficultyFile"])

	require.NoError(t, svc.Close(ctx))
	assert.True(t, store.Exists("1a2b"))
	song, err := store.Read("1a2b", mapcache.Song)
	require.NoError(t, err)
	assert.Equal(t, "OggS-song", string(song))

	again, err := svc.MapData(ctx, "1a2b")
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
	assert.Equal(t, int32(1), cat.getCalls.Load())
	assert.Equal(t, int32(1), cat.downloadCalls.Load())

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, history.StatusSucceeded, records[0].Status)
	assert.True(t, records[0].Cached)
	assert.Equal(t, 1, records[0].Difficulties)
	assert.Empty(t, svc.Jobs())
}

func TestConcurrentRequestsRunOnePipeline(t *testing.T) {
	cat := &fakeCatalog{pkg: fullPackage(t), gate: make(chan struct{})}
	svc, _ := newService(t, cat)
	ctx := context.Background()

	const callers = 10
	results := make([][]byte, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.MapData(ctx, "c0ffee")
		}()
	}

	require.Eventually(t, func() bool {
		jobs := svc.Jobs()
		return len(jobs) == 1 && jobs[0].Waiters == callers-1
	}, 2*time.Second, time.Millisecond)
	close(cat.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.JSONEq(t, string(results[0]), string(results[i]))
	}
	assert.Equal(t, int32(1), cat.getCalls.Load())
	assert.Equal(t, int32(1), cat.downloadCalls.Load())
}

func TestWaitersReceiveOwnerFailure(t *testing.T) {
	cat := &fakeCatalog{gate: make(chan struct{}), downloadErr: errors.New("connection reset")}
	rec := &fakeRecorder{}
	svc, store := newService(t, cat, WithHistory(rec))
	ctx := context.Background()

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := svc.MapData(ctx, "beef")
			errs <- err
		}()
	}
	require.Eventually(t, func() bool {
		jobs := svc.Jobs()
		return len(jobs) == 1 && jobs[0].Waiters == 2
	}, 2*time.Second, time.Millisecond)
	close(cat.gate)

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrDownload)
		case <-time.After(2 * time.Second):
			t.Fatal("caller stranded after owner failure")
		}
	}
	assert.Equal(t, int32(1), cat.downloadCalls.Load())
	assert.False(t, store.Exists("beef"))
	assert.Empty(t, svc.Jobs())

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, history.StatusFailed, records[0].Status)
	assert.Contains(t, records[0].ErrorMessage, "connection reset")
}

func TestUpstreamTimeoutIsSharedWithWaiters(t *testing.T) {
	cat := &fakeCatalog{
		gate:        make(chan struct{}),
		downloadErr: fmt.Errorf("execute request: %w", context.DeadlineExceeded),
	}
	svc, _ := newService(t, cat)
	ctx := context.Background()

	const callers = 4
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := svc.MapData(ctx, "d00d")
			errs <- err
		}()
	}
	require.Eventually(t, func() bool {
		jobs := svc.Jobs()
		return len(jobs) == 1 && jobs[0].Waiters == callers-1
	}, 2*time.Second, time.Millisecond)
	close(cat.gate)

	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrDownload)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(2 * time.Second):
			t.Fatal("caller stranded after upstream timeout")
		}
	}
	assert.Equal(t, int32(1), cat.downloadCalls.Load())
	assert.Equal(t, int32(1), cat.getCalls.Load())
}

func TestWaiterTakesOverAbandonedConversion(t *testing.T) {
	cat := &fakeCatalog{pkg: fullPackage(t), gate: make(chan struct{})}
	svc, _ := newService(t, cat)

	ownerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ownerErr := make(chan error, 1)
	go func() {
		_, err := svc.MapData(ownerCtx, "abba")
		ownerErr <- err
	}()
	require.Eventually(t, func() bool { return cat.downloadCalls.Load() == 1 }, 2*time.Second, time.Millisecond)

	type result struct {
		data []byte
		err  error
	}
	waiter := make(chan result, 1)
	go func() {
		data, err := svc.MapData(context.Background(), "abba")
		waiter <- result{data, err}
	}()
	require.Eventually(t, func() bool {
		jobs := svc.Jobs()
		return len(jobs) == 1 && jobs[0].Waiters == 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-ownerErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("owner did not return after cancellation")
	}

	require.Eventually(t, func() bool { return cat.downloadCalls.Load() == 2 }, 2*time.Second, time.Millisecond)
	close(cat.gate)
	select {
	case got := <-waiter:
		require.NoError(t, got.err)
		assert.Equal(t, "Example", decodeMap(t, got.data)["name"])
	case <-time.After(2 * time.Second):
		t.Fatal("waiter stranded after owner abandoned the conversion")
	}
}

func TestLookupFailureIsRetriedLater(t *testing.T) {
	cat := &fakeCatalog{getErr: fmt.Errorf("catalog: %w", catalog.ErrMapNotFound)}
	svc, _ := newService(t, cat)

	for i := 0; i < 2; i++ {
		_, err := svc.MapData(context.Background(), "ffff")
		assert.ErrorIs(t, err, ErrLookup)
		assert.ErrorIs(t, err, catalog.ErrMapNotFound)
	}
	assert.Equal(t, int32(2), cat.getCalls.Load())
	assert.Zero(t, cat.downloadCalls.Load())
}

func TestArchiveFailures(t *testing.T) {
	cases := map[string][]byte{
		"not a zip":    []byte("garbage"),
		"missing info": testsupport.BuildPackage(t, map[string]string{"Expert.dat": expertDoc, "song.ogg": "x"}),
		"zero bpm":     testsupport.BuildPackage(t, map[string]string{"info.dat": `{"_beatsPerMinute": 0}`}),
	}
	for name, pkg := range cases {
		t.Run(name, func(t *testing.T) {
			svc, store := newService(t, &fakeCatalog{pkg: pkg})
			_, err := svc.MapData(context.Background(), "abcd")
			assert.ErrorIs(t, err, ErrArchive)
			assert.False(t, store.Exists("abcd"))
		})
	}
}

func TestMissingSongServesUncached(t *testing.T) {
	pkg := testsupport.BuildPackage(t, map[string]string{"info.dat": infoDoc, "Expert.dat": expertDoc})
	rec := &fakeRecorder{}
	svc, store := newService(t, &fakeCatalog{pkg: pkg}, WithHistory(rec))

	data, err := svc.MapData(context.Background(), "5eed")
	require.NoError(t, err)
	assert.Equal(t, "5eed", decodeMap(t, data)["mapID"])
	require.NoError(t, svc.Close(context.Background()))
	assert.False(t, store.Exists("5eed"))

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, history.StatusUncached, records[0].Status)
	assert.Contains(t, records[0].ErrorMessage, ErrMissingSong.Error())
}

func TestCoverlessMap(t *testing.T) {
	pkg := testsupport.BuildPackage(t, map[string]string{"info.dat": infoDoc, "Expert.dat": expertDoc, "song.ogg": "OggS"})
	svc, store := newService(t, &fakeCatalog{pkg: pkg})

	_, err := svc.MapData(context.Background(), "face")
	require.NoError(t, err)
	require.NoError(t, svc.Close(context.Background()))
	assert.True(t, store.Exists("face"))

	_, err = svc.Cover(context.Background(), "face")
	assert.ErrorIs(t, err, ErrNotFound)
	song, err := svc.Song(context.Background(), "face")
	require.NoError(t, err)
	assert.Equal(t, "OggS", string(song))
}

func TestPersistFailureStillServesWaiters(t *testing.T) {
	store, err := mapcache.New(t.TempDir(), 0, nil)
	require.NoError(t, err)
	cat := &fakeCatalog{pkg: fullPackage(t), gate: make(chan struct{})}
	rec := &fakeRecorder{}
	svc := New(cat, failingCache{store}, WithHistory(rec))

	results := make(chan []byte, 2)
	for i := 0; i < 2; i++ {
		go func() {
			data, err := svc.MapData(context.Background(), "d00d")
			assert.NoError(t, err)
			results <- data
		}()
	}
	require.Eventually(t, func() bool {
		jobs := svc.Jobs()
		return len(jobs) == 1 && jobs[0].Waiters == 1
	}, 2*time.Second, time.Millisecond)
	close(cat.gate)

	first, second := <-results, <-results
	assert.JSONEq(t, string(first), string(second))
	require.NoError(t, svc.Close(context.Background()))
	assert.False(t, store.Exists("d00d"))

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, history.StatusUncached, records[0].Status)
	assert.False(t, records[0].Cached)
}

func TestSongWaitsForPendingConversion(t *testing.T) {
	cat := &fakeCatalog{pkg: fullPackage(t), gate: make(chan struct{})}
	svc, _ := newService(t, cat)

	go func() { _, _ = svc.MapData(context.Background(), "aaaa") }()
	require.Eventually(t, func() bool { return len(svc.Jobs()) == 1 }, 2*time.Second, time.Millisecond)

	songCh := make(chan []byte, 1)
	go func() {
		song, err := svc.Song(context.Background(), "aaaa")
		assert.NoError(t, err)
		songCh <- song
	}()
	select {
	case <-songCh:
		t.Fatal("song served before conversion finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(cat.gate)
	select {
	case song := <-songCh:
		assert.Equal(t, "OggS-song", string(song))
	case <-time.After(2 * time.Second):
		t.Fatal("song request never completed")
	}
}

func TestArtifactsOfUnknownMap(t *testing.T) {
	svc, _ := newService(t, &fakeCatalog{})
	_, err := svc.Song(context.Background(), "9999")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Cover(context.Background(), "9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidIDs(t *testing.T) {
	cat := &fakeCatalog{}
	svc, _ := newService(t, cat)
	for _, id := range []string{"", "../etc", "a b"} {
		_, err := svc.MapData(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidID)
		_, err = svc.Song(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidID)
	}
	assert.Zero(t, cat.getCalls.Load())
}

func TestIncompleteCacheEntryIsReconverted(t *testing.T) {
	cat := &fakeCatalog{pkg: fullPackage(t)}
	svc, store := newService(t, cat)
	require.NoError(t, store.WriteAll(context.Background(), "abab", []byte("{}"), []byte("s"), nil))
	require.NoError(t, removeFile(store, "abab", mapcache.Info))

	data, err := svc.MapData(context.Background(), "abab")
	require.NoError(t, err)
	assert.Equal(t, "abab", decodeMap(t, data)["mapID"])
	assert.Equal(t, int32(1), cat.getCalls.Load())
}

func TestSearchPagination(t *testing.T) {
	docs := make([]catalog.MapDetail, 20)
	for i := range docs {
		docs[i] = catalog.MapDetail{ID: fmt.Sprintf("m%02d", i), Stats: catalog.MapStats{Upvotes: i}}
	}
	cat := &fakeCatalog{searchDocs: docs}
	svc, _ := newService(t, cat)
	ctx := context.Background()

	even, err := svc.Search(ctx, "", 0, false)
	require.NoError(t, err)
	require.Len(t, even, 10)
	assert.Equal(t, "m00", even[0].ID)
	assert.Equal(t, catalog.SortLatest, cat.searchOpts.Order)
	assert.True(t, cat.searchOpts.ExcludeExtensions)
	assert.Equal(t, 0, cat.searchPage)

	odd, err := svc.Search(ctx, "camellia", 3, true)
	require.NoError(t, err)
	require.Len(t, odd, 10)
	assert.Equal(t, "m10", odd[0].ID)
	assert.Equal(t, catalog.SortRelevance, cat.searchOpts.Order)
	assert.False(t, cat.searchOpts.ExcludeExtensions)
	assert.Equal(t, 1, cat.searchPage)

	cat.searchDocs = docs[:4]
	short, err := svc.Search(ctx, "", 1, false)
	require.NoError(t, err)
	assert.Empty(t, short)
}

func TestHistoryLedgerRecordsConversion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ledger := testsupport.MustOpenHistory(t, cfg)
	store := testsupport.MustOpenCache(t, cfg)
	svc := New(&fakeCatalog{pkg: fullPackage(t)}, store, WithLogger(logging.NewNop()), WithHistory(ledger))
	ctx := context.Background()

	_, err := svc.MapData(ctx, "1a2b")
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx))

	records, err := ledger.ForMap(ctx, "1a2b")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, history.StatusSucceeded, records[0].Status)
	assert.Equal(t, "Example", records[0].Name)
	assert.NotEmpty(t, records[0].CorrelationID)
	assert.True(t, records[0].Cached)
}
