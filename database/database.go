package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Connect to and setup the database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Set the maximum number of open connections to 1.
	// A single writer keeps the checkpoint updates serialized at the
	// database level while staying fast enough for this workload.
	// Reference: https://stackoverflow.com/a/35805826
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	return db, nil
}
