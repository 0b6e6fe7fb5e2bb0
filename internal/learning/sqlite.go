package learning

import (
	"context"
	"database/sql"
	"embed"

	"quarry/internal/errors"
	"quarry/internal/log"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed db/schema.sql
var dbFS embed.FS

// Compile-time check that SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository keeps mnemonics in an SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	logger log.Logging
}

// NewSQLiteRepository opens (or creates) the database at dbPath.
// An empty path uses an in-memory database.
func NewSQLiteRepository(dbPath string, logger log.Logging) (*SQLiteRepository, error) {
	db, err := InitDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return &SQLiteRepository{db: db, logger: logger}, nil
}

// InitDatabase opens the database and applies the embedded schema.
func InitDatabase(dbPath string) (*sql.DB, error) {
	connectionString := dbPath
	if connectionString == "" {
		connectionString = ":memory:"
	}

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to open SQLite database", err).
			WithContext("connectionString", connectionString)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	schemaSQL, err := dbFS.ReadFile("db/schema.sql")
	if err != nil {
		db.Close()
		return nil, errors.NewDatabaseError("failed to read schema SQL", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		db.Close()
		return nil, errors.NewDatabaseError("failed to initialize database schema", err)
	}
	return db, nil
}

// Load reads every mnemonic row.
func (r *SQLiteRepository) Load(ctx context.Context) (map[string]*Mnemonic, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT object_key, query, count FROM mnemonics`)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to query mnemonics", err).WithOperation("load")
	}
	defer rows.Close()

	out := make(map[string]*Mnemonic)
	for rows.Next() {
		var (
			key, query string
			count      int
		)
		if err := rows.Scan(&key, &query, &count); err != nil {
			return nil, errors.NewDatabaseError("failed to scan mnemonic row", err).WithOperation("load")
		}
		m, ok := out[key]
		if !ok {
			m = &Mnemonic{Queries: make(map[string]int)}
			out[key] = m
		}
		if query == "" {
			m.Count = count
		} else {
			m.Queries[query] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("error iterating mnemonic rows", err).WithOperation("load")
	}
	return out, nil
}

// Save replaces the table contents in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, mnemonics map[string]*Mnemonic) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseError("failed to begin transaction", err).WithOperation("save")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mnemonics`); err != nil {
		return errors.NewDatabaseError("failed to clear mnemonics", err).WithOperation("save")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO mnemonics (object_key, query, count) VALUES (?, ?, ?)`)
	if err != nil {
		return errors.NewDatabaseError("failed to prepare insert", err).WithOperation("save")
	}
	defer stmt.Close()

	for key, m := range mnemonics {
		if _, err := stmt.ExecContext(ctx, key, "", m.Count); err != nil {
			return errors.NewDatabaseError("failed to save mnemonic", err).
				WithOperation("save").
				WithContext("objectKey", key)
		}
		for query, n := range m.Queries {
			if _, err := stmt.ExecContext(ctx, key, query, n); err != nil {
				return errors.NewDatabaseError("failed to save mnemonic query", err).
					WithOperation("save").
					WithContext("objectKey", key)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError("failed to commit mnemonics", err).WithOperation("save")
	}
	r.logger.With(log.F("objects", len(mnemonics))).Debug("Wrote mnemonics to SQLite")
	return nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
