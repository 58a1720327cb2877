package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docvault/internal/config"
)

type migrationStep struct {
	Name string
	SQL  string
}

type dialect struct {
	sentinel string
	steps    []migrationStep
}

var dialects = map[string]dialect{
	config.DriverPostgres: {
		sentinel: "SELECT to_regclass('public.documents') IS NOT NULL",
		steps: []migrationStep{
			{
				Name: "create_table_documents",
				SQL: `CREATE TABLE IF NOT EXISTS documents (
  id         BIGSERIAL   PRIMARY KEY,
  filename   TEXT        NOT NULL,
  filepath   TEXT        NOT NULL UNIQUE,
  filesize   BIGINT      NOT NULL CHECK (filesize >= 0),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
			},
			{
				Name: "create_index_documents_created_at",
				SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);`,
			},
		},
	},
	config.DriverSQLite: {
		sentinel: "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'documents')",
		steps: []migrationStep{
			{
				Name: "create_table_documents",
				SQL: `CREATE TABLE IF NOT EXISTS documents (
  id         INTEGER  PRIMARY KEY AUTOINCREMENT,
  filename   TEXT     NOT NULL,
  filepath   TEXT     NOT NULL UNIQUE,
  filesize   INTEGER  NOT NULL CHECK (filesize >= 0),
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
			},
			{
				Name: "create_index_documents_created_at",
				SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);`,
			},
		},
	},
}

// EnsureMigrated checks if the 'documents' table exists and runs migrations if it doesn't.
// driver is one of config.DriverPostgres or config.DriverSQLite.
func EnsureMigrated(ctx context.Context, db *sql.DB, driver string, log *zap.Logger) error {
	d, ok := dialects[driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", driver)
	}

	start := time.Now()
	log = log.With(zap.String("component", "database"), zap.String("db_driver", driver))
	log.Info("db_migration_check", zap.String("status", "starting"))

	var exists bool
	if err := db.QueryRowContext(ctx, d.sentinel).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			zap.String("status", "success"),
			zap.String("reason", "schema already exists"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", zap.String("status", "in_progress"))

	for _, step := range d.steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("status", "error"),
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			zap.String("status", "success"),
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success",
		zap.String("status", "success"),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
