package specimen

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"platebatch/internal/logging"
	"platebatch/internal/pkgarchive"
	"platebatch/internal/services"
)

// Extension is the file extension of specimen packages.
const Extension = ".3mf"

// PadID left-pads id with zeros to width. Ids already at or beyond width are
// returned trimmed but otherwise unchanged.
func PadID(id string, width int) string {
	id = strings.TrimSpace(id)
	if len(id) >= width {
		return id
	}
	return strings.Repeat("0", width-len(id)) + id
}

// Path returns the canonical package location for id without checking it.
func Path(baseDir, id string, width int) string {
	return filepath.Join(baseDir, PadID(id, width)+Extension)
}

// Resolve returns the package location for id and fails with
// ErrMissingSource when nothing exists there. Ids that are not a single file
// name inside baseDir fail with ErrInvalidBatchSpec.
func Resolve(baseDir, id string, width int) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", services.Wrap(services.ErrInvalidBatchSpec, "specimen", "resolve", "empty specimen id", nil)
	}
	if name := PadID(id, width); strings.ContainsAny(name, `/\`) || !filepath.IsLocal(name) {
		return "", services.Wrap(services.ErrInvalidBatchSpec, "specimen", "resolve", fmt.Sprintf("specimen id %q is not a file name", id), nil)
	}
	path := Path(baseDir, id, width)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrMissingSource, "specimen", "resolve", fmt.Sprintf("specimen %s: %s does not exist", id, path), err)
		}
		return "", fmt.Errorf("stat specimen %s: %w", id, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrMissingSource, "specimen", "resolve", fmt.Sprintf("specimen %s: %s is a directory", id, path), nil)
	}
	return path, nil
}

// Extractor unpacks an archive into a fresh directory under parentDir.
type Extractor func(archivePath, parentDir string) (string, error)

// Entry is one cached specimen extraction.
type Entry struct {
	ID      string
	Archive string
	Dir     string
}

// Cache holds the extracted specimens of one run, keyed by padded id.
type Cache struct {
	baseDir  string
	width    int
	workDir  string
	extract  Extractor
	logger   *slog.Logger
	entries  map[string]Entry
	order    []string
	extracts int
}

// Option customizes a Cache.
type Option func(*Cache)

// WithExtractor replaces the archive extractor, mainly for tests.
func WithExtractor(fn Extractor) Option {
	return func(c *Cache) {
		if fn != nil {
			c.extract = fn
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates a cache resolving ids under baseDir and extracting into
// workDir.
func NewCache(baseDir string, width int, workDir string, opts ...Option) *Cache {
	c := &Cache{
		baseDir: baseDir,
		width:   width,
		workDir: workDir,
		extract: pkgarchive.Extract,
		logger:  logging.NewNop(),
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "specimen")
	return c
}

// Get returns the extraction for id, extracting it on first use.
func (c *Cache) Get(id string) (Entry, error) {
	key := PadID(id, c.width)
	if e, ok := c.entries[key]; ok {
		c.logger.Debug("specimen cache hit", logging.String(logging.FieldSpecimenID, key))
		return e, nil
	}
	archive, err := Resolve(c.baseDir, id, c.width)
	if err != nil {
		return Entry{}, err
	}
	dir, err := c.extract(archive, c.workDir)
	if err != nil {
		return Entry{}, fmt.Errorf("specimen %s: %w", key, err)
	}
	c.extracts++
	e := Entry{ID: key, Archive: archive, Dir: dir}
	c.entries[key] = e
	c.order = append(c.order, key)
	c.logger.Debug("specimen extracted",
		logging.String(logging.FieldSpecimenID, key),
		logging.String("archive", archive),
	)
	return e, nil
}

// Extractions reports how many archives the cache has extracted.
func (c *Cache) Extractions() int {
	return c.extracts
}

// Len reports the number of cached specimens.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Release removes every extracted directory. The cache is empty afterwards
// and may be reused. All removals are attempted; the first error is returned.
func (c *Cache) Release() error {
	var first error
	for _, key := range c.order {
		e := c.entries[key]
		if err := os.RemoveAll(e.Dir); err != nil {
			logging.WarnWithContext(c.logger, "specimen cleanup failed", "specimen_cleanup",
				logging.String(logging.FieldSpecimenID, key),
				logging.String("dir", e.Dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the directory manually"),
				logging.String(logging.FieldImpact, "scratch space is not reclaimed"),
			)
			if first == nil {
				first = fmt.Errorf("remove specimen %s: %w", key, err)
			}
		}
	}
	c.entries = make(map[string]Entry)
	c.order = nil
	return first
}
