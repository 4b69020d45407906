// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/canvasflow/canvasflow/pkg/persistence"
	"github.com/canvasflow/canvasflow/pkg/persistence/file"
	"github.com/canvasflow/canvasflow/pkg/persistence/postgresql"
	"github.com/canvasflow/canvasflow/pkg/persistence/redis"
)

// ErrUnsupportedPersistence is returned for database URLs with an unknown scheme.
var ErrUnsupportedPersistence = errors.New("unsupported persistence provider")

// NewPersistence picks the store from the URL scheme: file:// (or a bare path),
// postgres:// or postgresql://, redis:// or rediss://.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		provider = "file"
	}

	logger.InfoContext(ctx, "Opening persistence", "provider", provider)

	switch provider {
	case "file":
		return file.NewPersistence(databaseURL), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPersistence, provider)
	}
}
