package converter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/art0007i/bonk-sticks-map-converter/internal/archive"
	"github.com/art0007i/bonk-sticks-map-converter/internal/beatmap"
	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
	"github.com/art0007i/bonk-sticks-map-converter/internal/history"
	"github.com/art0007i/bonk-sticks-map-converter/internal/jobs"
	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
	"github.com/art0007i/bonk-sticks-map-converter/internal/mapcache"
)

const defaultPageSize = 20

// Catalog is the upstream map catalog.
type Catalog interface {
	GetMap(ctx context.Context, id string) (*catalog.MapDetail, error)
	Search(ctx context.Context, opts catalog.SearchOptions, page int) (*catalog.SearchResponse, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Cache persists converted artifacts.
type Cache interface {
	Exists(id string) bool
	Read(id string, kind mapcache.Kind) ([]byte, error)
	WriteAll(ctx context.Context, id string, info, song, cover []byte) error
	Remove(id string) error
}

// Recorder stores finished conversions.
type Recorder interface {
	Record(ctx context.Context, rec history.Record) (int64, error)
}

// Service converts maps on demand and serves cached artifacts.
type Service struct {
	catalog  Catalog
	cache    Cache
	registry *jobs.Registry
	history  Recorder
	logger   *slog.Logger
	pageSize int

	persisting sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHistory records every finished conversion in rec.
func WithHistory(rec Recorder) Option {
	return func(s *Service) {
		s.history = rec
	}
}

// WithPageSize sets the upstream search page size. Each upstream page is
// served to clients as two halves.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// New builds a conversion service.
func New(cat Catalog, cache Cache, opts ...Option) *Service {
	s := &Service{
		catalog:  cat,
		cache:    cache,
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "converter")
	s.registry = jobs.NewRegistry(cache, s.logger)
	return s
}

// Jobs lists in-flight conversions.
func (s *Service) Jobs() []jobs.Status {
	return s.registry.Snapshot()
}

// Close waits for background persistence to finish or ctx to end.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.persisting.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MapData returns the converted document for id, running the pipeline when
// the map is neither cached nor already being converted.
func (s *Service) MapData(ctx context.Context, id string) ([]byte, error) {
	if err := mapcache.ValidID(id); err != nil {
		return nil, Wrap(ErrInvalidID, "", "validate id", "", err)
	}
	for {
		ticket, err := s.registry.Acquire(ctx, id)
		if err != nil {
			return nil, err
		}
		switch ticket.Outcome {
		case jobs.Owner:
			return s.convert(ctx, ticket.Job)
		case jobs.ReadCache:
			data, err := s.readInfo(ctx, id)
			if errors.Is(err, mapcache.ErrNotFound) {
				continue
			}
			return data, err
		case jobs.Recheck:
			if s.cache.Exists(id) {
				data, err := s.readInfo(ctx, id)
				if err == nil || !errors.Is(err, mapcache.ErrNotFound) {
					return data, err
				}
			}
			if ticket.Result != nil {
				return ticket.Result, nil
			}
			if ticket.Err != nil && !ticket.Abandoned {
				return nil, ticket.Err
			}
		}
	}
}

// readInfo reads the cached document. An entry missing its document is
// removed so the next attempt reconverts.
func (s *Service) readInfo(ctx context.Context, id string) ([]byte, error) {
	data, err := s.cache.Read(id, mapcache.Info)
	if err == nil {
		s.logger.DebugContext(ctx, "served map from cache", logging.String(logging.FieldLevelID, id))
		return data, nil
	}
	if !errors.Is(err, mapcache.ErrNotFound) {
		return nil, Wrap(ErrInternal, "", "read cache", id, err)
	}
	logging.WarnWithContext(logging.WithLevelID(ctx, id), s.logger, "cache entry missing map document", "cache_entry_incomplete",
		logging.Error(err),
		logging.String(logging.FieldImpact, "entry discarded and map converted again"),
	)
	if rmErr := s.cache.Remove(id); rmErr != nil && !errors.Is(rmErr, mapcache.ErrNotFound) {
		return nil, Wrap(ErrInternal, "", "discard incomplete cache entry", id, rmErr)
	}
	return nil, err
}

// Song returns the cached song, waiting for a pending conversion first.
func (s *Service) Song(ctx context.Context, id string) ([]byte, error) {
	return s.artifact(ctx, id, mapcache.Song)
}

// Cover returns the cached cover, waiting for a pending conversion first.
func (s *Service) Cover(ctx context.Context, id string) ([]byte, error) {
	return s.artifact(ctx, id, mapcache.Cover)
}

func (s *Service) artifact(ctx context.Context, id string, kind mapcache.Kind) ([]byte, error) {
	if err := mapcache.ValidID(id); err != nil {
		return nil, Wrap(ErrInvalidID, "", "validate id", "", err)
	}
	if err := s.registry.Wait(ctx, id); err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	data, err := s.cache.Read(id, kind)
	if err != nil {
		if errors.Is(err, mapcache.ErrNotFound) {
			return nil, Wrap(ErrNotFound, "", "read "+kind.String(), id, nil)
		}
		return nil, Wrap(ErrInternal, "", "read "+kind.String(), id, err)
	}
	return data, nil
}

// Search proxies a catalog search. Each upstream page is split into two
// client pages: even pages carry the first half, odd pages the rest. An
// empty query lists the latest maps; otherwise results rank by relevance.
// Maps needing Noodle or Mapping Extensions are excluded unless
// withExtensions is set.
func (s *Service) Search(ctx context.Context, query string, page int, withExtensions bool) ([]catalog.SimpleMapInfo, error) {
	if page < 0 {
		page = 0
	}
	opts := catalog.SearchOptions{
		Query:             query,
		Order:             catalog.SortLatest,
		ExcludeExtensions: !withExtensions,
	}
	if query != "" {
		opts.Order = catalog.SortRelevance
	}
	s.logger.InfoContext(ctx, "searching catalog",
		logging.String("query", query),
		logging.Int("page", page),
	)
	resp, err := s.catalog.Search(ctx, opts, page/2)
	if err != nil {
		return nil, Wrap(ErrLookup, "", "search", query, err)
	}

	half := s.pageSize / 2
	docs := resp.Docs
	if page%2 == 0 {
		if len(docs) > half {
			docs = docs[:half]
		}
	} else if len(docs) > half {
		docs = docs[half:]
	} else {
		docs = nil
	}
	results := make([]catalog.SimpleMapInfo, 0, len(docs))
	for _, doc := range docs {
		results = append(results, catalog.Simplify(doc))
	}
	return results, nil
}

// convert runs the pipeline as owner of job. On success the document is
// returned at once and the job is released after persistence; on any
// failure the job is released before returning.
func (s *Service) convert(ctx context.Context, job *jobs.Job) (doc []byte, err error) {
	id := job.ID()
	ctx = job.Context(ctx)
	start := time.Now()
	handedOff := false
	var mapFile *beatmap.MapFile
	defer func() {
		if handedOff {
			return
		}
		if ctx.Err() != nil {
			s.registry.Abandon(job, err)
		} else {
			s.registry.Release(job, doc, err)
		}
		s.record(ctx, job, mapFile, time.Since(start), false, err)
	}()

	detail, err := s.catalog.GetMap(ctx, id)
	if err != nil {
		return nil, Wrap(ErrLookup, jobs.FetchingMetadata.String(), "get map", id, err)
	}
	latest, ok := detail.Latest()
	if !ok {
		return nil, Wrap(ErrLookup, jobs.FetchingMetadata.String(), "select version", id, catalog.ErrNoVersions)
	}

	job.Advance(ctx, jobs.Downloading)
	pkg, err := s.catalog.Download(ctx, latest.DownloadURL)
	if err != nil {
		return nil, Wrap(ErrDownload, jobs.Downloading.String(), "download package", latest.DownloadURL, err)
	}

	job.Advance(ctx, jobs.Parsing)
	parseStart := time.Now()
	files, err := archive.Open(pkg)
	if err != nil {
		return nil, Wrap(ErrArchive, jobs.Parsing.String(), "open package", "", err)
	}
	infoRaw, ok := files.Lookup(beatmap.InfoFileName)
	if !ok {
		return nil, Wrap(ErrArchive, jobs.Parsing.String(), "locate info document", beatmap.InfoFileName+" not found", nil)
	}
	info, err := beatmap.ParseInfo(infoRaw)
	if err != nil {
		return nil, Wrap(ErrArchive, jobs.Parsing.String(), "parse info document", "", err)
	}
	mapFile = beatmap.Build(ctx, id, info, files, s.logger)
	doc, err = json.Marshal(mapFile)
	if err != nil {
		return nil, Wrap(ErrInternal, jobs.Parsing.String(), "encode map document", "", err)
	}
	s.logger.InfoContext(ctx, "finished downloading and parsing map",
		logging.String("name", info.SongName),
		logging.Int("difficulties", mapFile.DifficultyCount()),
		logging.Int("package_files", files.Len()),
		logging.Duration("parse_elapsed", time.Since(parseStart)),
		logging.Duration("elapsed", time.Since(start)),
	)

	song, ok := files.Lookup(info.SongFilename)
	if !ok {
		missing := Wrap(ErrMissingSong, jobs.Persisting.String(), "locate song", info.SongFilename, nil)
		logging.ErrorWithContext(ctx, s.logger, "song missing from package; map not cached", "song_missing",
			logging.Error(missing),
			logging.String(logging.FieldErrorHint, "the package is malformed upstream; the converted map is served uncached"),
		)
		handedOff = true
		s.registry.Release(job, doc, nil)
		s.record(ctx, job, mapFile, time.Since(start), false, missing)
		return doc, nil
	}
	var cover []byte
	if info.CoverImageFilename != "" {
		cover, _ = files.Lookup(info.CoverImageFilename)
	}
	if cover == nil {
		s.logger.InfoContext(ctx, "map has no cover image", logging.String("cover_file", info.CoverImageFilename))
	}

	job.Advance(ctx, jobs.Persisting)
	handedOff = true
	s.persisting.Add(1)
	go s.persist(context.WithoutCancel(ctx), job, mapFile, doc, song, cover, start)
	return doc, nil
}

func (s *Service) persist(ctx context.Context, job *jobs.Job, mapFile *beatmap.MapFile, doc, song, cover []byte, start time.Time) {
	defer s.persisting.Done()

	var persistErr error
	if err := s.cache.WriteAll(ctx, job.ID(), doc, song, cover); err != nil {
		persistErr = Wrap(ErrPersist, jobs.Persisting.String(), "write cache entry", job.ID(), err)
		logging.ErrorWithContext(ctx, s.logger, "failed to persist converted map", "cache_write_failed",
			logging.Error(persistErr),
			logging.String(logging.FieldErrorHint, "check free space and permissions on cache_dir; the next request converts again"),
		)
	}
	s.registry.Release(job, doc, nil)
	s.record(ctx, job, mapFile, time.Since(start), persistErr == nil, persistErr)
}

func (s *Service) record(ctx context.Context, job *jobs.Job, mapFile *beatmap.MapFile, elapsed time.Duration, cached bool, err error) {
	status := history.StatusSucceeded
	switch {
	case err != nil && mapFile != nil && (errors.Is(err, ErrMissingSong) || errors.Is(err, ErrPersist)):
		status = history.StatusUncached
	case err != nil:
		status = history.StatusFailed
		if !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(ctx, s.logger, "map conversion failed", "conversion_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "request answered with an error"),
				logging.String(logging.FieldErrorHint, hintFor(err)),
			)
		}
	}
	if s.history == nil {
		return
	}
	rec := history.Record{
		MapID:         job.ID(),
		Status:        status,
		CorrelationID: job.CorrelationID(),
		Duration:      elapsed,
		Cached:        cached,
	}
	if mapFile != nil {
		rec.Name = mapFile.Name
		rec.Difficulties = mapFile.DifficultyCount()
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	if _, recErr := s.history.Record(context.WithoutCancel(ctx), rec); recErr != nil {
		s.logger.DebugContext(ctx, "failed to record conversion history", logging.Error(recErr))
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, catalog.ErrMapNotFound):
		return "verify the map id exists on the catalog"
	case errors.Is(err, ErrLookup):
		return "check catalog.base_url and network connectivity"
	case errors.Is(err, ErrDownload):
		return "the package download failed; retry later"
	case errors.Is(err, ErrArchive):
		return "the uploaded package is malformed"
	default:
		return "check logs for details"
	}
}
