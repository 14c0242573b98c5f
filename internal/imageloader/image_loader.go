package imageloader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/gallery"

	"github.com/graph-gophers/dataloader"
)

// Fetcher looks up a single figure.
type Fetcher interface {
	Fetch(ctx context.Context, drawType string, key domain.UnitKey) (gallery.Figure, error)
}

// Key addresses one figure of one unit.
type Key struct {
	DrawType string
	Unit     domain.UnitKey
}

// String identifies the key in the loader cache.
func (k Key) String() string { return k.DrawType + "#" + k.Unit.ID() }

// Raw returns the key itself.
func (k Key) Raw() interface{} { return k }

// ImageLoader batches and deduplicates figure lookups within one request.
type ImageLoader struct {
	Loader *dataloader.Loader
}

// NewImageLoader builds a loader whose batches are fetched one figure at a time.
func NewImageLoader(fetcher Fetcher, logger *slog.Logger) *ImageLoader {
	if logger == nil {
		logger = slog.Default()
	}

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			key, ok := k.Raw().(Key)
			if !ok {
				results[i] = &dataloader.Result{Error: fmt.Errorf("invalid figure key %q", k.String())}
				continue
			}

			fig, err := fetcher.Fetch(ctx, key.DrawType, key.Unit)
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			results[i] = &dataloader.Result{Data: fig}
			logger.Debug("figure loaded", "done", i+1, "total", len(keys), "draw_type", key.DrawType, "found", fig.Found)
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &ImageLoader{Loader: loader}
}

// Load returns one figure.
func (l *ImageLoader) Load(ctx context.Context, drawType string, unit domain.UnitKey) (gallery.Figure, error) {
	result, err := l.Loader.Load(ctx, Key{DrawType: drawType, Unit: unit})()
	if err != nil {
		return gallery.Figure{}, err
	}
	fig, ok := result.(gallery.Figure)
	if !ok {
		return gallery.Figure{}, fmt.Errorf("unexpected type %T for figure", result)
	}
	return fig, nil
}

// LoadMany returns the figures for keys in order. The first error aborts.
func (l *ImageLoader) LoadMany(ctx context.Context, keys []Key) ([]gallery.Figure, error) {
	loaderKeys := make(dataloader.Keys, len(keys))
	for i, k := range keys {
		loaderKeys[i] = k
	}

	results, errs := l.Loader.LoadMany(ctx, loaderKeys)()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	figures := make([]gallery.Figure, len(results))
	for i, r := range results {
		fig, ok := r.(gallery.Figure)
		if !ok {
			return nil, fmt.Errorf("unexpected type %T for figure %s", r, keys[i].String())
		}
		figures[i] = fig
	}
	return figures, nil
}
