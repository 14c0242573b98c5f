// Package gallery locates, fetches and crops the per-unit report figures.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/storage"
)

// DefaultCacheSize bounds the figure cache.
const DefaultCacheSize = 100

// ErrUnknownDrawType is returned for a draw type with no registered figure class.
var ErrUnknownDrawType = errors.New("unknown draw type")

// Figure is the outcome of one lookup. A figure that was not found carries the
// message shown in its place.
type Figure struct {
	Key      domain.UnitKey `json:"key"`
	DrawType string         `json:"draw_type"`
	Path     string         `json:"path,omitempty"`
	Image    image.Image    `json:"-"`
	Found    bool           `json:"found"`
	Message  string         `json:"message,omitempty"`
}

// NotFound builds the placeholder figure for a failed lookup.
func NotFound(key domain.UnitKey, drawType string) Figure {
	return Figure{Key: key, DrawType: drawType, Message: drawType + " fetch error"}
}

// Config holds the gallery settings
type Config struct {
	PSTHPrefix         string
	DriftMetricsPrefix string
	CacheSize          int
	MaxWidth           int
}

// DefaultConfig returns the default folders and cache size.
func DefaultConfig() Config {
	return Config{
		PSTHPrefix:         DefaultPSTHPrefix,
		DriftMetricsPrefix: DefaultDriftMetricsPrefix,
		CacheSize:          DefaultCacheSize,
	}
}

// ProgressFunc is told how many of total figures are done.
type ProgressFunc func(done, total int)

// Service looks figures up in an object store and memoizes the results.
type Service struct {
	store     storage.ObjectStore
	drawTypes map[string]DrawType
	cache     *lru.Cache[string, Figure]
	maxWidth  int
	logger    *slog.Logger
}

// NewService builds a gallery over store.
func NewService(store storage.ObjectStore, cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.PSTHPrefix == "" {
		cfg.PSTHPrefix = DefaultPSTHPrefix
	}
	if cfg.DriftMetricsPrefix == "" {
		cfg.DriftMetricsPrefix = DefaultDriftMetricsPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[string, Figure](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create figure cache: %w", err)
	}

	return &Service{
		store: store,
		drawTypes: map[string]DrawType{
			DrawTypePSTH:         psthDrawType(cfg.PSTHPrefix),
			DrawTypeDriftMetrics: driftMetricsDrawType(cfg.DriftMetricsPrefix),
		},
		cache:    cache,
		maxWidth: cfg.MaxWidth,
		logger:   logger,
	}, nil
}

// DrawTypes lists the registered draw type names, sorted.
func (s *Service) DrawTypes() []string {
	names := make([]string, 0, len(s.drawTypes))
	for name := range s.drawTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pattern returns the store pattern a unit's figure is searched with.
func (s *Service) Pattern(drawType string, key domain.UnitKey) (string, error) {
	dt, ok := s.drawTypes[drawType]
	if !ok {
		return "", fmt.Errorf("%q: %w", drawType, ErrUnknownDrawType)
	}
	return dt.Pattern(key), nil
}

func cacheKey(drawType string, key domain.UnitKey) string {
	return drawType + "#" + key.ID()
}

// Fetch returns the figure of one draw type for one unit. Exactly one listing
// call is made per uncached lookup; anything but a single match yields a
// not-found figure and no error.
func (s *Service) Fetch(ctx context.Context, drawType string, key domain.UnitKey) (Figure, error) {
	dt, ok := s.drawTypes[drawType]
	if !ok {
		return Figure{}, fmt.Errorf("%q: %w", drawType, ErrUnknownDrawType)
	}

	ck := cacheKey(drawType, key)
	if fig, ok := s.cache.Get(ck); ok {
		return fig, nil
	}

	pattern := dt.Pattern(key)
	matches, err := s.store.Glob(ctx, pattern)
	if err != nil {
		return Figure{}, fmt.Errorf("failed to list %s: %w", pattern, err)
	}
	if len(matches) != 1 {
		s.logger.Debug("figure lookup did not match exactly one object",
			"draw_type", drawType, "pattern", pattern, "matches", len(matches))
		fig := NotFound(key, drawType)
		s.cache.Add(ck, fig)
		return fig, nil
	}

	img, err := s.load(ctx, matches[0], dt)
	if err != nil {
		return Figure{}, err
	}

	fig := Figure{Key: key, DrawType: drawType, Path: matches[0], Image: img, Found: true}
	s.cache.Add(ck, fig)
	return fig, nil
}

func (s *Service) load(ctx context.Context, path string, dt DrawType) (image.Image, error) {
	rc, err := s.store.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer rc.Close()

	img, err := decode(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if dt.Crop != nil {
		img = Crop(img, *dt.Crop)
	}
	return Fit(img, s.maxWidth), nil
}

// Draw fetches every draw type for every key, one after another, in key-major
// order. progress, when set, is called after each key.
func (s *Service) Draw(ctx context.Context, keys []domain.UnitKey, drawTypes []string, progress ProgressFunc) ([]Figure, error) {
	for _, dt := range drawTypes {
		if _, ok := s.drawTypes[dt]; !ok {
			return nil, fmt.Errorf("%q: %w", dt, ErrUnknownDrawType)
		}
	}

	figures := make([]Figure, 0, len(keys)*len(drawTypes))
	for i, key := range keys {
		for _, dt := range drawTypes {
			if err := ctx.Err(); err != nil {
				return figures, err
			}
			fig, err := s.Fetch(ctx, dt, key)
			if err != nil {
				return figures, err
			}
			figures = append(figures, fig)
		}
		if progress != nil {
			progress(i+1, len(keys))
		}
	}
	return figures, nil
}

// Purge empties the figure cache.
func (s *Service) Purge() {
	s.cache.Purge()
}
