package repository

import (
	"context"
	"database/sql"

	"github.com/garyjia/travel-approval/internal/infrastructure/persistence/sqlite"
)

// executor returns the transaction carried by ctx, or db outside a transaction
func executor(ctx context.Context, db *sql.DB) sqlite.Executor {
	return sqlite.ExecutorFrom(ctx, db)
}
