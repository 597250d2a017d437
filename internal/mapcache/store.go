package mapcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
)

const (
	stagingPrefix = ".staging-"
	maxIDLength   = 64
)

var (
	// ErrNotFound is returned when an entry or artifact is absent.
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidID rejects identifiers that cannot name a cache directory.
	ErrInvalidID = errors.New("invalid map id")
)

// Kind selects one artifact of an entry.
type Kind int

const (
	Info Kind = iota
	Song
	Cover
)

// FileName is the fixed on-disk name of the artifact.
func (k Kind) FileName() string {
	switch k {
	case Info:
		return "map.json"
	case Song:
		return "song.egg"
	case Cover:
		return "cover"
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case Info:
		return "info"
	case Song:
		return "song"
	case Cover:
		return "cover"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Store is the on-disk cache of converted levels.
type Store struct {
	root       string
	maxEntries int
	logger     *slog.Logger
	statfs     statfsFunc
}

// Stats describes current cache usage.
type Stats struct {
	Entries        int            `json:"entries"`
	TotalBytes     int64          `json:"total_bytes"`
	MaxEntries     int            `json:"max_entries"`
	FreeBytes      uint64         `json:"free_bytes"`
	TotalFSBytes   uint64         `json:"total_fs_bytes"`
	FreeRatio      float64        `json:"free_ratio"`
	EntrySummaries []EntrySummary `json:"entry_summaries"`
}

// EntrySummary describes one cached level.
type EntrySummary struct {
	ID         string    `json:"id"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	HasCover   bool      `json:"has_cover"`
}

// New opens a store rooted at root, creating it when missing and removing
// staging directories left by an interrupted process. maxEntries of zero
// disables pruning.
func New(root string, maxEntries int, logger *slog.Logger) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("mapcache: empty cache root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mapcache: create root: %w", err)
	}
	store := &Store{
		root:       root,
		maxEntries: maxEntries,
		logger:     logging.NewComponentLogger(logger, "mapcache"),
		statfs:     realStatfs,
	}
	store.cleanStaging()
	return store, nil
}

// NewFromConfig opens the store configured under [paths] and [cache].
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("mapcache: config is required")
	}
	return New(cfg.Paths.CacheDir, cfg.Cache.MaxEntries, logger)
}

// Root returns the cache directory.
func (s *Store) Root() string { return s.root }

// ValidID reports whether id can name a cache entry: 1 to 64 ASCII letters,
// digits, dashes, or underscores.
func ValidID(id string) error {
	if id == "" || len(id) > maxIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return nil
}

func (s *Store) entryPath(id string) string {
	return filepath.Join(s.root, id)
}

// Exists reports whether a complete entry is present for id.
func (s *Store) Exists(id string) bool {
	if ValidID(id) != nil {
		return false
	}
	info, err := os.Stat(s.entryPath(id))
	return err == nil && info.IsDir()
}

// Read returns one artifact of the entry for id. Reading the info artifact
// marks the entry as recently used.
func (s *Store) Read(id string, kind Kind) ([]byte, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	name := kind.FileName()
	if name == "" {
		return nil, fmt.Errorf("mapcache: unknown artifact kind %d", int(kind))
	}
	dir := s.entryPath(id)
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, id, name)
		}
		return nil, fmt.Errorf("mapcache: read %s/%s: %w", id, name, err)
	}
	if kind == Info {
		now := time.Now()
		_ = os.Chtimes(dir, now, now)
	}
	return data, nil
}

// WriteAll persists a converted level as a single unit. The artifacts are
// written concurrently into a staging directory which is renamed into place
// once every write succeeded; on any failure the staging directory is
// removed and id stays uncached. A nil cover is skipped.
func (s *Store) WriteAll(ctx context.Context, id string, info, song, cover []byte) error {
	if err := ValidID(id); err != nil {
		return err
	}
	if info == nil || song == nil {
		return errors.New("mapcache: info and song artifacts are required")
	}
	if s.Exists(id) {
		return nil
	}
	staging, err := os.MkdirTemp(s.root, stagingPrefix+id+"-")
	if err != nil {
		return fmt.Errorf("mapcache: create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()
	if err := os.Chmod(staging, 0o755); err != nil {
		return fmt.Errorf("mapcache: chmod staging dir: %w", err)
	}

	artifacts := map[Kind][]byte{Info: info, Song: song}
	if cover != nil {
		artifacts[Cover] = cover
	}
	g, gctx := errgroup.WithContext(ctx)
	for kind, data := range artifacts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(staging, kind.FileName()), data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", kind, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("mapcache: %s: %w", id, err)
	}

	if err := os.Rename(staging, s.entryPath(id)); err != nil {
		if s.Exists(id) {
			return nil
		}
		return fmt.Errorf("mapcache: commit %s: %w", id, err)
	}
	committed = true

	s.logger.InfoContext(ctx, "stored map cache entry",
		logging.String(logging.FieldLevelID, id),
		logging.Bool("has_cover", cover != nil),
	)
	if err := s.prune(ctx, id); err != nil {
		logging.WarnWithContext(ctx, s.logger, "map cache prune failed", "mapcache_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cache may exceed max_entries until the next write"),
			logging.String(logging.FieldErrorHint, "inspect cache directory permissions"),
		)
	}
	return nil
}

// Remove deletes the entry for id.
func (s *Store) Remove(id string) error {
	if err := ValidID(id); err != nil {
		return err
	}
	if !s.Exists(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(s.entryPath(id)); err != nil {
		return fmt.Errorf("mapcache: remove %s: %w", id, err)
	}
	return nil
}

// Clear removes every entry and returns how many were deleted.
func (s *Store) Clear() (int, error) {
	entries, _, err := s.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := os.RemoveAll(entry.path); err != nil {
			return removed, fmt.Errorf("mapcache: remove %s: %w", entry.id, err)
		}
		removed++
	}
	return removed, nil
}

// List returns entries, most recently used first.
func (s *Store) List() ([]EntrySummary, error) {
	entries, _, err := s.scan()
	if err != nil {
		return nil, err
	}
	summaries := make([]EntrySummary, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		summaries = append(summaries, entries[i].summary())
	}
	return summaries, nil
}

// Stats returns cache usage and free space on the cache volume.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	entries, totalSize, err := s.scan()
	if err != nil {
		return Stats{}, err
	}
	totalFS, freeFS, err := s.statfs(s.root)
	if err != nil {
		return Stats{}, fmt.Errorf("mapcache: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}
	details := make([]EntrySummary, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		details = append(details, entries[i].summary())
	}
	if len(entries) == 0 {
		s.logger.DebugContext(ctx, "map cache empty")
	}
	return Stats{
		Entries:        len(entries),
		TotalBytes:     totalSize,
		MaxEntries:     s.maxEntries,
		FreeBytes:      freeFS,
		TotalFSBytes:   totalFS,
		FreeRatio:      ratio,
		EntrySummaries: details,
	}, nil
}

// prune removes the least recently used entries beyond maxEntries, never
// removing keepID.
func (s *Store) prune(ctx context.Context, keepID string) error {
	if s.maxEntries <= 0 {
		return nil
	}
	entries, _, err := s.scan()
	if err != nil {
		return err
	}
	excess := len(entries) - s.maxEntries
	for _, entry := range entries {
		if excess <= 0 {
			break
		}
		if entry.id == keepID {
			continue
		}
		if err := os.RemoveAll(entry.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", entry.id, err)
		}
		s.logger.InfoContext(ctx, "pruned map cache entry",
			logging.String(logging.FieldLevelID, entry.id),
			logging.Int64("entry_size_bytes", entry.sizeBytes),
		)
		excess--
	}
	return nil
}

type cacheEntry struct {
	id        string
	path      string
	sizeBytes int64
	modTime   time.Time
	hasCover  bool
}

func (e cacheEntry) summary() EntrySummary {
	return EntrySummary{ID: e.id, SizeBytes: e.sizeBytes, ModifiedAt: e.modTime, HasCover: e.hasCover}
}

// scan lists complete entries, oldest first.
func (s *Store) scan() ([]cacheEntry, int64, error) {
	rootEntries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("mapcache: list root: %w", err)
	}
	entries := make([]cacheEntry, 0, len(rootEntries))
	var total int64
	for _, dirEntry := range rootEntries {
		if !dirEntry.IsDir() || ValidID(dirEntry.Name()) != nil {
			continue
		}
		path := filepath.Join(s.root, dirEntry.Name())
		entry, err := inspectEntry(dirEntry.Name(), path)
		if err != nil {
			s.logger.Warn("mapcache: skip entry; excluded from stats and pruning",
				logging.String("cache_dir", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "mapcache_entry_skipped"),
				logging.String(logging.FieldErrorHint, "inspect cache directory permissions or remove the corrupted entry"),
			)
			continue
		}
		total += entry.sizeBytes
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func inspectEntry(id, path string) (cacheEntry, error) {
	dirInfo, err := os.Stat(path)
	if err != nil {
		return cacheEntry{}, err
	}
	files, err := os.ReadDir(path)
	if err != nil {
		return cacheEntry{}, err
	}
	entry := cacheEntry{id: id, path: path, modTime: dirInfo.ModTime()}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			return cacheEntry{}, err
		}
		entry.sizeBytes += info.Size()
		if f.Name() == Cover.FileName() {
			entry.hasCover = true
		}
	}
	return entry, nil
}

func (s *Store) cleanStaging() {
	rootEntries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	for _, dirEntry := range rootEntries {
		if !dirEntry.IsDir() || !strings.HasPrefix(dirEntry.Name(), stagingPrefix) {
			continue
		}
		path := filepath.Join(s.root, dirEntry.Name())
		if err := os.RemoveAll(path); err == nil {
			s.logger.Debug("removed stale staging directory", logging.String("cache_dir", path))
		}
	}
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
