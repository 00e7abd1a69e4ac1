package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearErrorRecords truncates the error_records table. Schema is preserved.
func ClearErrorRecords(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing error records", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE error_records`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Error records cleared", clearLogPrefix))
	return nil
}
