package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertArtifact writes a generated story artifact. An existing row keeps
// its featured_rank and published_at, so regenerating a published story does
// not unpublish it; created_at always resets to the time of generation.
// The FeaturedRank, PublishedAt, and CreatedAt fields of a are ignored.
func (d *DB) UpsertArtifact(ctx context.Context, a Artifact) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO artifacts (pmid, headline, standfirst, story, prompt_text, abstract_snapshot,
			metadata_snapshot, featured_rank, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?,
			(SELECT featured_rank FROM artifacts WHERE pmid = ?),
			(SELECT published_at FROM artifacts WHERE pmid = ?), ?)
		ON CONFLICT(pmid) DO UPDATE SET
			headline=excluded.headline, standfirst=excluded.standfirst, story=excluded.story,
			prompt_text=excluded.prompt_text, abstract_snapshot=excluded.abstract_snapshot,
			metadata_snapshot=excluded.metadata_snapshot, featured_rank=excluded.featured_rank,
			published_at=excluded.published_at, created_at=excluded.created_at`,
		a.PMID, a.Headline, a.Standfirst, string(a.Story), a.PromptText, a.Abstract,
		string(a.Metadata), a.PMID, a.PMID, d.now())
	if err != nil {
		return fmt.Errorf("upserting artifact %s: %w", a.PMID, err)
	}
	return nil
}

// PublishArtifact marks an artifact published now. A nil rank appends it
// after the highest existing featured rank.
func (d *DB) PublishArtifact(ctx context.Context, pmid string, rank *int) error {
	assigned := 0
	if rank == nil {
		var maxRank sql.NullInt64
		err := d.db.QueryRowContext(ctx,
			"SELECT MAX(featured_rank) FROM artifacts WHERE featured_rank IS NOT NULL").Scan(&maxRank)
		if err != nil {
			return fmt.Errorf("reading max featured rank: %w", err)
		}
		assigned = int(maxRank.Int64) + 1
	} else {
		assigned = *rank
	}

	_, err := d.db.ExecContext(ctx,
		"UPDATE artifacts SET published_at = ?, featured_rank = ? WHERE pmid = ?",
		d.now(), assigned, pmid)
	if err != nil {
		return fmt.Errorf("publishing artifact %s: %w", pmid, err)
	}
	return nil
}

// UnpublishArtifact clears the publish state and featured rank.
func (d *DB) UnpublishArtifact(ctx context.Context, pmid string) error {
	_, err := d.db.ExecContext(ctx,
		"UPDATE artifacts SET published_at = NULL, featured_rank = NULL WHERE pmid = ?", pmid)
	if err != nil {
		return fmt.Errorf("unpublishing artifact %s: %w", pmid, err)
	}
	return nil
}

// UpdateFeaturedRank sets or clears an artifact's featured rank.
func (d *DB) UpdateFeaturedRank(ctx context.Context, pmid string, rank *int) error {
	var value sql.NullInt64
	if rank != nil {
		value = sql.NullInt64{Int64: int64(*rank), Valid: true}
	}
	_, err := d.db.ExecContext(ctx,
		"UPDATE artifacts SET featured_rank = ? WHERE pmid = ?", value, pmid)
	if err != nil {
		return fmt.Errorf("updating featured rank for %s: %w", pmid, err)
	}
	return nil
}

// UpdateArtifactMetadata overwrites the metadata snapshot column only,
// leaving publish state, rank, and creation time untouched.
func (d *DB) UpdateArtifactMetadata(ctx context.Context, pmid string, metadata []byte) error {
	_, err := d.db.ExecContext(ctx,
		"UPDATE artifacts SET metadata_snapshot = ? WHERE pmid = ?", string(metadata), pmid)
	if err != nil {
		return fmt.Errorf("updating artifact metadata for %s: %w", pmid, err)
	}
	return nil
}

const selectArtifactFields = `pmid, headline, standfirst, story, prompt_text,
	abstract_snapshot, metadata_snapshot, featured_rank, published_at, created_at`

// GetArtifact retrieves an artifact by PMID, or nil when none exists.
func (d *DB) GetArtifact(ctx context.Context, pmid string) (*Artifact, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+selectArtifactFields+` FROM artifacts WHERE pmid = ?`, pmid)
	a, err := scanArtifact(row)
	if err != nil {
		return nil, fmt.Errorf("loading artifact %s: %w", pmid, err)
	}
	return a, nil
}

// ListArtifacts returns artifacts with featured ones first in rank order,
// then the rest newest-published first.
func (d *DB) ListArtifacts(ctx context.Context, publishedOnly bool) ([]Artifact, error) {
	query := `SELECT ` + selectArtifactFields + ` FROM artifacts`
	if publishedOnly {
		query += " WHERE published_at IS NOT NULL"
	}
	query += ` ORDER BY CASE WHEN featured_rank IS NULL THEN 1 ELSE 0 END,
		featured_rank ASC, published_at DESC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		if a != nil {
			artifacts = append(artifacts, *a)
		}
	}
	return artifacts, rows.Err()
}

func scanArtifact(s scanner) (*Artifact, error) {
	var a Artifact
	var headline, standfirst, story, promptText, abstract, metadata sql.NullString
	var featuredRank sql.NullInt64
	var publishedAt, createdAt sql.NullFloat64

	err := s.Scan(&a.PMID, &headline, &standfirst, &story, &promptText,
		&abstract, &metadata, &featuredRank, &publishedAt, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	a.Headline = headline.String
	a.Standfirst = standfirst.String
	a.PromptText = promptText.String
	a.Abstract = abstract.String
	if story.Valid && story.String != "" {
		a.Story = []byte(story.String)
	}
	if metadata.Valid && metadata.String != "" {
		a.Metadata = []byte(metadata.String)
	}
	if featuredRank.Valid {
		rank := int(featuredRank.Int64)
		a.FeaturedRank = &rank
	}
	if publishedAt.Valid {
		at := publishedAt.Float64
		a.PublishedAt = &at
	}
	a.CreatedAt = createdAt.Float64
	return &a, nil
}
