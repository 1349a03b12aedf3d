package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medbrief/newsroom/internal/record"
)

// UpsertRecords inserts or refreshes cached article records. The original
// insert time survives refreshes; only the article fields are replaced.
func (d *DB) UpsertRecords(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning record upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (pmid, title, abstract, journal, year, authors_json, doi, pmcid,
			publication_types_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pmid) DO UPDATE SET
			title=excluded.title, abstract=excluded.abstract, journal=excluded.journal,
			year=excluded.year, authors_json=excluded.authors_json, doi=excluded.doi,
			pmcid=excluded.pmcid, publication_types_json=excluded.publication_types_json
	`)
	if err != nil {
		return fmt.Errorf("preparing record upsert: %w", err)
	}
	defer stmt.Close()

	now := d.now()
	for _, rec := range records {
		if rec.PMID == "" {
			continue
		}
		authorsJSON, err := nullableJSON(rec.Authors)
		if err != nil {
			return fmt.Errorf("marshaling authors for %s: %w", rec.PMID, err)
		}
		typesJSON, err := nullableJSON(rec.PublicationTypes)
		if err != nil {
			return fmt.Errorf("marshaling publication types for %s: %w", rec.PMID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.PMID, rec.Title, rec.Abstract, rec.Journal, rec.Year,
			authorsJSON, rec.DOI, rec.PMCID, typesJSON, now); err != nil {
			return fmt.Errorf("upserting record %s: %w", rec.PMID, err)
		}
	}
	return tx.Commit()
}

// GetRecords returns the cached records for the given PMIDs, keyed by PMID.
// Missing PMIDs are simply absent from the map.
func (d *DB) GetRecords(ctx context.Context, pmids []string) (map[string]record.Record, error) {
	out := make(map[string]record.Record)
	if len(pmids) == 0 {
		return out, nil
	}

	args := make([]interface{}, len(pmids))
	for i, pmid := range pmids {
		args[i] = pmid
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT pmid, title, abstract, journal, year, authors_json, doi, pmcid, publication_types_json
		FROM records WHERE pmid IN (`+placeholders(len(pmids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[rec.PMID] = *rec
	}
	return out, rows.Err()
}

// GetRecord returns a single cached record, or nil when it is not cached.
func (d *DB) GetRecord(ctx context.Context, pmid string) (*record.Record, error) {
	records, err := d.GetRecords(ctx, []string{pmid})
	if err != nil {
		return nil, err
	}
	rec, ok := records[pmid]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func scanRecord(s scanner) (*record.Record, error) {
	var rec record.Record
	var title, abstract, journal, year, doi, pmcid sql.NullString
	var authorsJSON, typesJSON sql.NullString

	err := s.Scan(&rec.PMID, &title, &abstract, &journal, &year,
		&authorsJSON, &doi, &pmcid, &typesJSON)
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	rec.Title = title.String
	rec.Abstract = abstract.String
	rec.Journal = journal.String
	rec.Year = year.String
	rec.DOI = doi.String
	rec.PMCID = pmcid.String

	rec.Authors = []string{}
	if authorsJSON.Valid && authorsJSON.String != "" {
		if err := json.Unmarshal([]byte(authorsJSON.String), &rec.Authors); err != nil {
			return nil, fmt.Errorf("parsing authors JSON for %s: %w", rec.PMID, err)
		}
	}
	if typesJSON.Valid && typesJSON.String != "" {
		if err := json.Unmarshal([]byte(typesJSON.String), &rec.PublicationTypes); err != nil {
			return nil, fmt.Errorf("parsing publication types JSON for %s: %w", rec.PMID, err)
		}
	}
	return &rec, nil
}
