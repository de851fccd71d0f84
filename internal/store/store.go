package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"gitlab.com/dirk.krummacker/person-service/internal/config"
	"gitlab.com/dirk.krummacker/person-service/internal/model"
)

// columns lists the person columns in the order of the model.
const columns = `id, personal_id, firstname, lastname, gender, created_at, updated_at, version`

// Store persists persons in a relational database. Every method round-trips to the database;
// nothing is cached. A Store is safe for concurrent use.
type Store struct {
	db     *sqlx.DB
	driver string

	// insert is a prepared statement for creating a person on the database.
	insert *sqlx.NamedStmt

	// selectAll is a prepared statement for selecting all persons.
	selectAll *sqlx.Stmt

	// selectWhereId is a prepared statement for selecting the person with a given id.
	selectWhereId *sqlx.Stmt

	// selectWherePersonalId is a prepared statement for selecting the person with a given
	// personal id.
	selectWherePersonalId *sqlx.Stmt

	// countWherePersonalId is a prepared statement for counting persons with a given personal id.
	countWherePersonalId *sqlx.Stmt

	// updateWhereIdAndVersion is a prepared statement for updating the mutable fields of a
	// person that has not changed since it was read.
	updateWhereIdAndVersion *sqlx.Stmt

	// deleteWhereIdAndVersion is a prepared statement for deleting a person that has not
	// changed since it was read.
	deleteWhereIdAndVersion *sqlx.Stmt
}

// CreateDatabase opens the database described by cfg and verifies the connection.
func CreateDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	sqlDB, err := sql.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.DBDriver, err)
	}
	return sqlDB, nil
}

// New wraps sqlDB, a real database or a mock one within unit tests, and prepares all
// statements. driver selects the placeholder syntax and must be one of the config.Driver*
// constants.
func New(ctx context.Context, sqlDB *sql.DB, driver string) (*Store, error) {
	s := &Store{db: sqlx.NewDb(sqlDB, driver), driver: driver}

	insertSQL := `
		INSERT INTO persons (personal_id, firstname, lastname, gender, created_at, updated_at, version)
		VALUES (:personal_id, :firstname, :lastname, :gender, :created_at, :updated_at, 1)
	`
	if driver == config.DriverPostgres {
		insertSQL += " RETURNING id"
	}

	// Prepared statements offer a significant speed increase if executed many times.
	var err error
	if s.insert, err = s.db.PrepareNamedContext(ctx, insertSQL); err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	statements := []struct {
		target **sqlx.Stmt
		query  string
	}{
		{&s.selectAll, `SELECT ` + columns + ` FROM persons ORDER BY id`},
		{&s.selectWhereId, `SELECT ` + columns + ` FROM persons WHERE id = ?`},
		{&s.selectWherePersonalId, `SELECT ` + columns + ` FROM persons WHERE personal_id = ?`},
		{&s.countWherePersonalId, `SELECT COUNT(*) FROM persons WHERE personal_id = ?`},
		{&s.updateWhereIdAndVersion, `
			UPDATE persons SET firstname = ?, lastname = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`},
		{&s.deleteWhereIdAndVersion, `DELETE FROM persons WHERE id = ? AND version = ?`},
	}
	for _, st := range statements {
		stmt, err := s.db.PreparexContext(ctx, s.db.Rebind(st.query))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("prepare %q: %w", st.query, err)
		}
		*st.target = stmt
	}
	return s, nil
}

// GetAll returns all persons ordered by id.
func (s *Store) GetAll(ctx context.Context) ([]model.Person, error) {
	persons := []model.Person{}
	if err := s.selectAll.SelectContext(ctx, &persons); err != nil {
		return nil, fmt.Errorf("select persons: %w", mapError(err))
	}
	return persons, nil
}

// GetById returns the person with the given id or ErrNotFound.
func (s *Store) GetById(ctx context.Context, id int64) (model.Person, error) {
	var p model.Person
	if err := s.selectWhereId.GetContext(ctx, &p, id); err != nil {
		return model.Person{}, fmt.Errorf("select person %d: %w", id, mapError(err))
	}
	return p, nil
}

// GetByPersonalId returns the person with the given personal id or ErrNotFound.
func (s *Store) GetByPersonalId(ctx context.Context, personalId string) (model.Person, error) {
	var p model.Person
	if err := s.selectWherePersonalId.GetContext(ctx, &p, personalId); err != nil {
		return model.Person{}, fmt.Errorf("select person %s: %w", personalId, mapError(err))
	}
	return p, nil
}

// ExistsByPersonalId reports whether a person with the given personal id is stored.
func (s *Store) ExistsByPersonalId(ctx context.Context, personalId string) (bool, error) {
	var count int
	if err := s.countWherePersonalId.GetContext(ctx, &count, personalId); err != nil {
		return false, fmt.Errorf("count person %s: %w", personalId, mapError(err))
	}
	return count > 0, nil
}

// Insert stores p and returns it with the id assigned by the database. The database rejecting
// the row, typically for a duplicate personal id, yields ErrConflict.
func (s *Store) Insert(ctx context.Context, p model.Person) (model.Person, error) {
	row := p
	row.CreatedAt = p.CreatedAt.UTC()
	row.UpdatedAt = p.UpdatedAt.UTC()

	if s.driver == config.DriverPostgres {
		// lib/pq does not support LastInsertId
		if err := s.insert.QueryRowxContext(ctx, row).Scan(&p.Id); err != nil {
			return model.Person{}, fmt.Errorf("insert person %s: %w", p.PersonalId, mapError(err))
		}
	} else {
		result, err := s.insert.ExecContext(ctx, row)
		if err != nil {
			return model.Person{}, fmt.Errorf("insert person %s: %w", p.PersonalId, mapError(err))
		}
		if p.Id, err = result.LastInsertId(); err != nil {
			return model.Person{}, fmt.Errorf("insert person %s: %w", p.PersonalId, err)
		}
	}
	p.Version = 1
	return p, nil
}

// Update writes the first name, last name and update time of p. It fails with ErrConcurrency
// if the stored row no longer carries the version of p. On success the version of the
// returned person is advanced.
func (s *Store) Update(ctx context.Context, p model.Person) (model.Person, error) {
	result, err := s.updateWhereIdAndVersion.ExecContext(ctx,
		p.FirstName, p.LastName, p.UpdatedAt.UTC(), p.Id, p.Version)
	if err != nil {
		return model.Person{}, fmt.Errorf("update person %s: %w", p.PersonalId, mapError(err))
	}
	if err := expectOneRow(result); err != nil {
		return model.Person{}, fmt.Errorf("update person %s: %w", p.PersonalId, err)
	}
	p.Version++
	return p, nil
}

// Delete removes p. It fails with ErrConcurrency if the stored row is gone or no longer
// carries the version of p.
func (s *Store) Delete(ctx context.Context, p model.Person) error {
	result, err := s.deleteWhereIdAndVersion.ExecContext(ctx, p.Id, p.Version)
	if err != nil {
		return fmt.Errorf("delete person %s: %w", p.PersonalId, mapError(err))
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("delete person %s: %w", p.PersonalId, err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the prepared statements. The underlying database is left open.
func (s *Store) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	for _, stmt := range []*sqlx.Stmt{
		s.selectAll, s.selectWhereId, s.selectWherePersonalId,
		s.countWherePersonalId, s.updateWhereIdAndVersion, s.deleteWhereIdAndVersion,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrConcurrency
	}
	return nil
}
