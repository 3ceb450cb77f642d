package database

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/logging"
)

// RunMigrations executes pending database migrations from the specified
// directory. It is idempotent and safe to call multiple times - only pending
// migrations will be executed. Migration 0001 enables the pgvector extension,
// so the database user needs CREATE EXTENSION privileges on first run.
func RunMigrations(cfg *config.DatabaseConfig, migrationsPath string, logger *zap.Logger) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), cfg.MigrateURL())
	if err != nil {
		// migrate errors can echo the URL, credentials included.
		return fmt.Errorf("failed to create migration instance: %s", logging.SanitizeError(err))
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	err = m.Up()
	if err == migrate.ErrNoChange {
		logger.Info("No migrations to apply (database up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully", zap.Uint("version", newVersion))
	return nil
}
