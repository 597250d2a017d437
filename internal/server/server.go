package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
	"github.com/art0007i/bonk-sticks-map-converter/internal/history"
	"github.com/art0007i/bonk-sticks-map-converter/internal/jobs"
	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
	"github.com/art0007i/bonk-sticks-map-converter/internal/mapcache"
)

const defaultHistoryLimit = 50

// Converter serves converted maps and catalog searches.
type Converter interface {
	MapData(ctx context.Context, id string) ([]byte, error)
	Song(ctx context.Context, id string) ([]byte, error)
	Cover(ctx context.Context, id string) ([]byte, error)
	Search(ctx context.Context, query string, page int, withExtensions bool) ([]catalog.SimpleMapInfo, error)
	Jobs() []jobs.Status
}

// CacheStats reports cache usage.
type CacheStats interface {
	Stats(ctx context.Context) (mapcache.Stats, error)
}

// HistoryLister lists recent conversions.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Record, error)
}

// Server is the HTTP front end.
type Server struct {
	bind      string
	token     string
	lockPath  string
	logger    *slog.Logger
	converter Converter
	cache     CacheStats
	history   HistoryLister
	startedAt time.Time

	lock     *flock.Flock
	listener net.Listener
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithCacheStats enables cache usage in /api/status.
func WithCacheStats(stats CacheStats) Option {
	return func(s *Server) { s.cache = stats }
}

// WithHistory enables /api/history.
func WithHistory(lister HistoryLister) Option {
	return func(s *Server) { s.history = lister }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a server bound to cfg.Paths.APIBind.
func New(cfg *config.Config, conv Converter, opts ...Option) (*Server, error) {
	if cfg == nil || conv == nil {
		return nil, errors.New("server requires config and converter")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("server: api_bind is empty")
	}
	s := &Server{
		bind:      bind,
		token:     cfg.Paths.APIToken,
		lockPath:  cfg.LockPath(),
		converter: conv,
		startedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "api-server")
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /{id}/mapdata", s.handleMapData)
	mux.HandleFunc("GET /{id}/song", s.handleSong)
	mux.HandleFunc("GET /{id}/cover", s.handleCover)
	mux.HandleFunc("GET /api/status", authMiddleware(s.token, s.handleStatus))
	mux.HandleFunc("GET /api/history", authMiddleware(s.token, s.handleHistory))
	return mux
}

// Start takes the instance lock and begins serving in the background. The
// server shuts down when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.lock = flock.New(s.lockPath)
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another bonksticks server instance is already running")
	}

	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and releases the instance lock.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// LockPath returns the instance lock file location.
func (s *Server) LockPath() string { return s.lockPath }

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := strconv.Atoi(strings.TrimSpace(query.Get("p")))
	if err != nil || page < 0 {
		page = 0
	}
	q := strings.TrimSpace(query.Get("q"))
	withExtensions := query.Get("ex") == "true"

	results, err := s.converter.Search(r.Context(), q, page, withExtensions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponse{L: results})
}

func (s *Server) handleMapData(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.logger.InfoContext(r.Context(), "map requested", logging.String(logging.FieldLevelID, id))
	data, err := s.converter.MapData(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	data, err := s.converter.Song(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBytes(w, "application/octet-stream", data)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	data, err := s.converter.Cover(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBytes(w, http.DetectContentType(data), data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := statusResponse{
		StartedAt: s.startedAt,
		LockFile:  s.lockPath,
		Jobs:      s.converter.Jobs(),
	}
	if s.cache != nil {
		stats, err := s.cache.Stats(r.Context())
		if err != nil {
			s.logger.WarnContext(r.Context(), "cache stats unavailable",
				logging.Error(err),
				logging.String(logging.FieldEventType, "cache_stats_failed"),
				logging.String(logging.FieldErrorHint, "inspect cache_dir permissions"),
			)
		} else {
			payload.Cache = &stats
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, historyResponse{Records: []historyRecord{}})
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}
	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]historyRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, fromRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, historyResponse{Records: out})
}

func (s *Server) writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classify(err)
	if apiErr.Status >= 500 && apiErr.Code != CodeCanceled {
		s.logger.ErrorContext(r.Context(), "request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "request_failed"),
		)
	}
	s.writeJSON(w, apiErr.Status, apiErr)
}
