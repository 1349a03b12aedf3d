// Package storage persists search history, article records, readability
// scores, and generated story artifacts in a single SQLite database.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database behind the service.
type DB struct {
	db  *sql.DB
	now func() float64
}

// Option configures a DB.
type Option func(*DB)

// WithNowFunc overrides the clock used for created_at and published_at
// timestamps. Tests use it to pin time.
func WithNowFunc(fn func() float64) Option {
	return func(d *DB) { d.now = fn }
}

// OpenDB opens or creates the SQLite database at the given path.
func OpenDB(path string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	d := &DB{db: db, now: epochNow}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// epochNow is the default clock: epoch seconds with sub-second precision,
// matching the REAL timestamp columns.
func epochNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		-- Executed searches and their ranked results
		CREATE TABLE IF NOT EXISTS queries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			term TEXT NOT NULL,
			retmax INTEGER NOT NULL,
			created_at REAL NOT NULL
		);

		CREATE TABLE IF NOT EXISTS query_results (
			query_id INTEGER NOT NULL,
			pmid TEXT NOT NULL,
			rank INTEGER NOT NULL,
			PRIMARY KEY (query_id, pmid),
			FOREIGN KEY (query_id) REFERENCES queries(id)
		);

		-- Cached PubMed article records
		CREATE TABLE IF NOT EXISTS records (
			pmid TEXT PRIMARY KEY,
			title TEXT,
			abstract TEXT,
			journal TEXT,
			year TEXT,
			authors_json TEXT,
			doi TEXT,
			pmcid TEXT,
			publication_types_json TEXT,
			created_at REAL NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scores (
			pmid TEXT NOT NULL,
			readability_score REAL NOT NULL,
			created_at REAL NOT NULL,
			PRIMARY KEY (pmid)
		);

		-- Generated stories awaiting or holding publication
		CREATE TABLE IF NOT EXISTS artifacts (
			pmid TEXT PRIMARY KEY,
			headline TEXT,
			standfirst TEXT,
			story TEXT,
			prompt_text TEXT,
			abstract_snapshot TEXT,
			metadata_snapshot TEXT,
			featured_rank INTEGER,
			published_at REAL,
			created_at REAL NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// QueryRef is a logged search query that returned a given PMID.
type QueryRef struct {
	Term      string
	Retmax    int
	CreatedAt *float64
}

// Artifact is a stored story artifact row. Story and Metadata hold raw JSON
// documents; callers decode them with their own tolerant decoders.
type Artifact struct {
	PMID         string
	Headline     string
	Standfirst   string
	Story        json.RawMessage
	PromptText   string
	Abstract     string
	Metadata     json.RawMessage
	FeaturedRank *int
	PublishedAt  *float64
	CreatedAt    float64
}

// Published reports whether the artifact is publicly visible.
func (a Artifact) Published() bool {
	return a.PublishedAt != nil
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// nullableString converts a string to sql.NullString, treating empty as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableJSON marshals a slice for a nullable JSON column; nil stores NULL.
func nullableJSON(v []string) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// placeholders builds "?, ?, ?" for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = append(out, '?')
	}
	return string(out)
}
