package storage

import (
	"context"
	"fmt"
)

// UpsertScores writes readability scores keyed by PMID. The first scoring
// time survives later rescores.
func (d *DB) UpsertScores(ctx context.Context, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning score upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scores (pmid, readability_score, created_at) VALUES (?, ?, ?)
		ON CONFLICT(pmid) DO UPDATE SET readability_score=excluded.readability_score
	`)
	if err != nil {
		return fmt.Errorf("preparing score upsert: %w", err)
	}
	defer stmt.Close()

	now := d.now()
	for pmid, score := range scores {
		if _, err := stmt.ExecContext(ctx, pmid, score, now); err != nil {
			return fmt.Errorf("upserting score for %s: %w", pmid, err)
		}
	}
	return tx.Commit()
}

// GetScores returns readability scores for the given PMIDs, keyed by PMID.
func (d *DB) GetScores(ctx context.Context, pmids []string) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(pmids) == 0 {
		return out, nil
	}

	args := make([]interface{}, len(pmids))
	for i, pmid := range pmids {
		args[i] = pmid
	}
	rows, err := d.db.QueryContext(ctx,
		"SELECT pmid, readability_score FROM scores WHERE pmid IN ("+placeholders(len(pmids))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("loading scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pmid string
		var score float64
		if err := rows.Scan(&pmid, &score); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		out[pmid] = score
	}
	return out, rows.Err()
}
