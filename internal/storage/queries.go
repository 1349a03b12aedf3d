package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveSearch logs an executed search and its ranked result list.
func (d *DB) SaveSearch(ctx context.Context, term string, retmax int, pmids []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save search: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO queries (term, retmax, created_at) VALUES (?, ?, ?)",
		term, retmax, d.now())
	if err != nil {
		return fmt.Errorf("inserting query: %w", err)
	}
	queryID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading query id: %w", err)
	}

	for rank, pmid := range pmids {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO query_results (query_id, pmid, rank) VALUES (?, ?, ?)",
			queryID, pmid, rank); err != nil {
			return fmt.Errorf("inserting query result %s: %w", pmid, err)
		}
	}
	return tx.Commit()
}

// CachedSearch returns the result list of the most recent identical search.
// ok is false when no identical search exists or the newest one is older
// than maxAge; a negative maxAge disables the age check.
func (d *DB) CachedSearch(ctx context.Context, term string, retmax int, maxAge time.Duration) ([]string, bool, error) {
	var id int64
	var createdAt float64
	err := d.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM queries WHERE term = ? AND retmax = ? ORDER BY created_at DESC LIMIT 1",
		term, retmax).Scan(&id, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up cached search: %w", err)
	}
	if maxAge >= 0 && d.now()-createdAt > maxAge.Seconds() {
		return nil, false, nil
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT pmid FROM query_results WHERE query_id = ? ORDER BY rank ASC", id)
	if err != nil {
		return nil, false, fmt.Errorf("loading cached search results: %w", err)
	}
	defer rows.Close()

	pmids := []string{}
	for rows.Next() {
		var pmid string
		if err := rows.Scan(&pmid); err != nil {
			return nil, false, fmt.Errorf("scanning cached pmid: %w", err)
		}
		pmids = append(pmids, pmid)
	}
	return pmids, true, rows.Err()
}

// FindLatestQueryForPMID returns the most recent logged query whose result
// set contained pmid. With a before bound, entries created after the bound
// are excluded first; if none qualify, the newest entry overall is returned
// as a fallback. Returns nil when the pmid never appeared in any search.
func (d *DB) FindLatestQueryForPMID(ctx context.Context, pmid string, before *float64) (*QueryRef, error) {
	if pmid == "" {
		return nil, nil
	}

	const base = `SELECT q.term, q.retmax, q.created_at
		FROM queries q
		JOIN query_results qr ON qr.query_id = q.id
		WHERE qr.pmid = ?%s
		ORDER BY q.created_at DESC LIMIT 1`

	query := fmt.Sprintf(base, "")
	args := []interface{}{pmid}
	if before != nil {
		query = fmt.Sprintf(base, " AND q.created_at <= ?")
		args = append(args, *before)
	}

	ref, err := scanQueryRef(d.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("finding latest query for %s: %w", pmid, err)
	}
	if ref == nil && before != nil {
		ref, err = scanQueryRef(d.db.QueryRowContext(ctx, fmt.Sprintf(base, ""), pmid))
		if err != nil {
			return nil, fmt.Errorf("finding fallback query for %s: %w", pmid, err)
		}
	}
	return ref, nil
}

func scanQueryRef(s scanner) (*QueryRef, error) {
	var term sql.NullString
	var retmax sql.NullInt64
	var createdAt sql.NullFloat64

	if err := s.Scan(&term, &retmax, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	ref := QueryRef{Term: term.String, Retmax: int(retmax.Int64)}
	if createdAt.Valid {
		v := createdAt.Float64
		ref.CreatedAt = &v
	}
	return &ref, nil
}
