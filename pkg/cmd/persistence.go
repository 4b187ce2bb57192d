package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openimaging/conductor/pkg/persistence"
	"github.com/openimaging/conductor/pkg/persistence/file"
	"github.com/openimaging/conductor/pkg/persistence/postgresql"
)

// NewPersistence selects the backend from the database URL scheme:
// postgres URLs get the PostgreSQL store, anything else the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to postgres: %w", err))
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
