package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rpattn/unitdash/internal/imageloader"
)

type ctxKey string

const imageLoaderKey ctxKey = "imageLoader"

// DataLoaderMiddleware attaches a fresh figure loader to the request context
func DataLoaderMiddleware(fetcher imageloader.Fetcher, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := imageloader.NewImageLoader(fetcher, logger)
			ctx := context.WithValue(r.Context(), imageLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ImageLoaderFromContext retrieves the figure loader from context
func ImageLoaderFromContext(ctx context.Context) *imageloader.ImageLoader {
	if l, ok := ctx.Value(imageLoaderKey).(*imageloader.ImageLoader); ok {
		return l
	}
	return nil
}
