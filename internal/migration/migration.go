// Package migration applies the embedded database schema of the person service with
// golang-migrate. Every supported driver has its own directory of migrations under sql/.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	"gitlab.com/dirk.krummacker/person-service/internal/config"
)

//go:embed sql
var migrations embed.FS

// Migrator runs the migrations of one driver against one database.
type Migrator struct {
	m *migrate.Migrate
}

// New prepares the migrations for sqlDB. Closing the Migrator closes sqlDB as well.
func New(sqlDB *sql.DB, driver string, logger logrus.FieldLogger) (*Migrator, error) {
	var (
		target database.Driver
		err    error
	)
	switch driver {
	case config.DriverMySQL:
		target, err = migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	case config.DriverPostgres:
		target, err = migratepostgres.WithInstance(sqlDB, &migratepostgres.Config{})
	case config.DriverSQLite:
		target, err = migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	default:
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("migration target: %w", err)
	}

	source, err := iofs.New(migrations, "sql/"+driver)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, driver, target)
	if err != nil {
		return nil, fmt.Errorf("migration init: %w", err)
	}
	m.Log = &migrateLogger{logger: logger}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations. Being up to date already is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("up: %w", err)
	}
	return nil
}

// Down rolls back the given number of migrations.
func (mg *Migrator) Down(steps int) error {
	if steps < 1 {
		return fmt.Errorf("down: invalid number of steps %d", steps)
	}
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("down: %w", err)
	}
	return nil
}

// Version returns the applied version and whether the last migration failed halfway. A
// database without any migration reports version 0.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Force sets the version without running migrations, clearing the dirty flag.
func (mg *Migrator) Force(version int) error {
	return mg.m.Force(version)
}

// Close releases the source and the database.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// migrateLogger adapts logrus to migrate.Logger.
type migrateLogger struct {
	logger logrus.FieldLogger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool { return false }
