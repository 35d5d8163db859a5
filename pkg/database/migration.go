package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var upFile = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// MigrateOptions selects what the migrator does on startup.
type MigrateOptions struct {
	// Folder holds the NNNNNN_name.up.sql / .down.sql pairs. Relative paths
	// resolve against the working directory.
	Folder string
	// Version pins the target schema version; zero means latest.
	Version uint
	// Force marks the database clean at this version before migrating.
	Force int
	// ResetDirty forces a dirty database back to the version it was at
	// before a failed run. The failure is still returned.
	ResetDirty bool
}

type Migrator struct {
	opts   MigrateOptions
	logger ectologger.Logger
}

func NewMigrator(logger ectologger.Logger, opts MigrateOptions) *Migrator {
	return &Migrator{opts: opts, logger: logger}
}

// migrateLog routes golang-migrate output through ectologger.
type migrateLog struct {
	logger ectologger.Logger
}

func (l migrateLog) Printf(format string, v ...any) { l.logger.Debugf(format, v...) }

func (l migrateLog) Verbose() bool { return false }

// Postgres brings the schema of db up to the configured version.
func (m *Migrator) Postgres(db *sql.DB, databaseName string) error {
	folder, err := m.folder()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		return fmt.Errorf("postgres migration driver: %w", err)
	}
	mg, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		return fmt.Errorf("open migrations in %s: %w", folder, err)
	}
	mg.Log = migrateLog{logger: m.logger}

	return m.run(mg, folder)
}

func (m *Migrator) folder() (string, error) {
	folder := m.opts.Folder
	if !filepath.IsAbs(folder) {
		if _, err := os.Stat(folder); err != nil {
			wd, wdErr := os.Getwd()
			if wdErr != nil {
				return "", wdErr
			}
			folder = filepath.Join(wd, folder)
		}
	}
	if _, err := os.Stat(folder); err != nil {
		return "", fmt.Errorf("migration folder %s: %w", folder, err)
	}
	return folder, nil
}

func (m *Migrator) run(mg *migrate.Migrate, folder string) error {
	if m.opts.Force != 0 {
		if err := mg.Force(m.opts.Force); err != nil {
			return fmt.Errorf("force schema version %d: %w", m.opts.Force, err)
		}
	}

	before, _, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		m.logger.WithError(err).Warn("could not read schema version")
	}

	target := m.opts.Version
	if target == 0 {
		if latest, err := LatestVersion(folder); err == nil {
			target = uint(latest)
		}
	}
	log := m.logger.WithFields(map[string]any{"from_version": before, "to_version": target})

	start := time.Now()
	if m.opts.Version != 0 {
		err = mg.Migrate(m.opts.Version)
	} else {
		err = mg.Up()
	}

	switch {
	case err == nil:
		log.WithField("took_ms", time.Since(start).Milliseconds()).Info("schema migrated")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug("schema up to date")
		return nil
	}

	log.WithError(err).Error("schema migration failed")
	m.resetDirty(mg, before)
	return err
}

func (m *Migrator) resetDirty(mg *migrate.Migrate, before uint) {
	if !m.opts.ResetDirty {
		return
	}
	current, dirty, err := mg.Version()
	if err != nil || !dirty {
		return
	}
	if before == 0 && current > 0 {
		before = current - 1
	}
	m.logger.Warnf("schema dirty at version %d, forcing back to %d", current, before)
	if err := mg.Force(int(before)); err != nil {
		m.logger.WithError(err).Errorf("could not force schema to version %d", before)
	}
}

// LatestVersion returns the highest version among the up migrations in folder.
func LatestVersion(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	latest := -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := upFile.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		v, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, err
		}
		latest = max(latest, v)
	}
	if latest < 0 {
		return 0, fmt.Errorf("no up migrations in %s", folder)
	}
	return latest, nil
}
