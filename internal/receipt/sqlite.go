package receipt

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS receipts (
	position INTEGER PRIMARY KEY,
	id       TEXT NOT NULL,
	data     TEXT NOT NULL
)`

// SQLiteHistory implements the History interface using SQLite
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens (or creates) a SQLite database file
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// one writer at a time keeps ReplaceAll from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

// LoadAll returns every receipt in stored order
func (s *SQLiteHistory) LoadAll() ([]*Receipt, error) {
	rows, err := s.db.Query(`SELECT data FROM receipts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*Receipt, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var receipt Receipt
		if err := json.Unmarshal([]byte(data), &receipt); err != nil {
			return nil, fmt.Errorf("unmarshaling receipt: %w", err)
		}
		receipts = append(receipts, &receipt)
	}
	return receipts, rows.Err()
}

// ReplaceAll rewrites the table in one transaction
func (s *SQLiteHistory) ReplaceAll(receipts []*Receipt) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM receipts`); err != nil {
		return fmt.Errorf("clearing receipts: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO receipts (position, id, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, receipt := range receipts {
		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		if _, err := stmt.Exec(i, receipt.ID, string(data)); err != nil {
			return fmt.Errorf("inserting receipt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
