package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/history"
	"github.com/dukex/stepflow/pkg/history/file"
	"github.com/dukex/stepflow/pkg/history/memory"
	"github.com/dukex/stepflow/pkg/history/postgresql"
)

var ErrUnsupportedHistory = errors.New("unsupported history provider")

// NewHistory opens the run history store named by databaseURL: memory:// (or
// empty) keeps records in process, file:// writes one JSON file per run under
// the given directory, postgres:// and postgresql:// use PostgreSQL.
func NewHistory(ctx context.Context, logger *slog.Logger, databaseURL string) (history.Store, error) {
	provider := parseHistoryProvider(databaseURL)

	switch provider {
	case "memory":
		return memory.NewStore(), nil
	case "file":
		store, err := file.NewStore(databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "postgres", "postgresql":
		store, err := postgresql.NewStore(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHistory, provider)
	}
}

func parseHistoryProvider(databaseURL string) string {
	if databaseURL == "" {
		return "memory"
	}

	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return databaseURL
	}

	return provider
}
