// Package results assembles the run cache from site records and keeps the
// dated cache files that later runs are compared against.
package results

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// CacheFileLayout names a cache file after the run start time.
	CacheFileLayout = "cache_02012006_150405.json"
	// DayDirLayout names the per-day folder a cache file lives in.
	DayDirLayout = "2006-01-02"
)

// ErrNoCache is returned when fewer cache files exist than were asked for.
var ErrNoCache = errors.New("not enough cache files")

// NewCache returns an empty cache for a run started at now.
func NewCache(program, configPath, runID string, now time.Time) *schemas.Cache {
	return &schemas.Cache{
		Metadata: schemas.CacheMetadata{
			Program:   program,
			Timestamp: now.Format(schemas.TimestampLayout),
			Config:    configPath,
			Filename:  now.Format(CacheFileLayout),
			RunID:     runID,
		},
		Records: []schemas.SiteRecord{},
	}
}

// Repository reads and writes cache files under root/<YYYY-MM-DD>/.
type Repository struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

func NewRepository(fs afero.Fs, root string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{fs: fs, root: root, logger: logger.Named("results")}
}

// PathFor returns where the cache of a run started at now is stored.
func (r *Repository) PathFor(cache *schemas.Cache, now time.Time) string {
	return filepath.Join(r.root, now.Format(DayDirLayout), cache.Metadata.Filename)
}

// Save writes cache as indented JSON and returns its path.
func (r *Repository) Save(cache *schemas.Cache, now time.Time) (string, error) {
	path := r.PathFor(cache, now)
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := r.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := afero.WriteFile(r.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cache %s: %w", path, err)
	}
	r.logger.Info("Saved cache.", zap.String("path", path), zap.Int("records", len(cache.Records)))
	return path, nil
}

// Load reads the cache file at path.
func (r *Repository) Load(path string) (*schemas.Cache, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache %s: %w", path, err)
	}
	var cache schemas.Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("failed to decode cache %s: %w", path, err)
	}
	return &cache, nil
}

// Latest returns the paths of the n most recent cache files, newest first.
// Files whose names do not carry a run time are ignored.
func (r *Repository) Latest(n int) ([]string, error) {
	matches, err := afero.Glob(r.fs, filepath.Join(r.root, "*", "cache_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}

	type stamped struct {
		path string
		at   time.Time
	}
	var files []stamped
	for _, m := range matches {
		at, err := time.Parse(CacheFileLayout, filepath.Base(m))
		if err != nil {
			r.logger.Debug("Ignoring unrecognised cache file.", zap.String("path", m))
			continue
		}
		if info, err := r.fs.Stat(m); err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, stamped{path: m, at: at})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].at.After(files[j].at) })

	if len(files) < n {
		return nil, fmt.Errorf("%w: want %d, found %d under %s", ErrNoCache, n, len(files), r.root)
	}
	out := make([]string, 0, n)
	for _, f := range files[:n] {
		out = append(out, f.path)
	}
	return out, nil
}
