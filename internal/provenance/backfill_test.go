package provenance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/medbrief/newsroom/internal/logger"
	"github.com/medbrief/newsroom/internal/record"
	"github.com/medbrief/newsroom/internal/storage"
)

func newBackfillDB(t *testing.T) (*storage.DB, *float64) {
	t.Helper()

	now := 1000.0
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"),
		storage.WithNowFunc(func() float64 { return now }))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, &now
}

func loadSnapshot(t *testing.T, db *storage.DB, pmid string) Snapshot {
	t.Helper()
	artifact, err := db.GetArtifact(context.Background(), pmid)
	if err != nil || artifact == nil {
		t.Fatalf("GetArtifact(%s) = %v, err %v", pmid, artifact, err)
	}
	return DecodeSnapshot(artifact.Metadata)
}

func TestReconcilerRepairsLegacySnapshot(t *testing.T) {
	db, _ := newBackfillDB(t)
	ctx := context.Background()

	legacy := `{"title": "Old Study", "year": "2021", "search_term": "  heart  ",
		"search_ran_at": "1700000000", "search_ran_at_source": "manual_edit",
		"publication_date": "", "publication_date_raw": "", "publication_date_source": ""}`
	if err := db.UpsertArtifact(ctx, storage.Artifact{PMID: "123", Metadata: []byte(legacy)}); err != nil {
		t.Fatalf("UpsertArtifact() error = %v", err)
	}

	rec := NewReconciler(db, logger.Nop())
	updated, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if updated != 1 {
		t.Fatalf("Run() updated = %d, want 1", updated)
	}

	snap := loadSnapshot(t, db, "123")
	if snap.NeedsRewrite() {
		t.Error("snapshot still flagged for rewrite after reconciliation")
	}
	if snap.SearchTerm != "heart" {
		t.Errorf("SearchTerm = %q, want %q", snap.SearchTerm, "heart")
	}
	if snap.SearchRanAt == nil || *snap.SearchRanAt != 1700000000 {
		t.Errorf("SearchRanAt = %v, want 1700000000", snap.SearchRanAt)
	}
	if snap.SearchSource != SearchSourceUnknown {
		t.Errorf("SearchSource = %q, want %q", snap.SearchSource, SearchSourceUnknown)
	}
	if snap.PubDate != "2021" || snap.PubDateRaw != "2021" || snap.PubDateSource != DateSourceYearFallback {
		t.Errorf("date triple = %q/%q/%q, want 2021/2021/year_fallback",
			snap.PubDate, snap.PubDateRaw, snap.PubDateSource)
	}

	// Converged: a second pass changes nothing.
	updated, err = rec.Run(ctx)
	if err != nil {
		t.Fatalf("Run(second) error = %v", err)
	}
	if updated != 0 {
		t.Errorf("Run(second) updated = %d, want 0", updated)
	}
}

func TestReconcilerInfersFromQueryHistory(t *testing.T) {
	db, now := newBackfillDB(t)
	ctx := context.Background()

	*now = 100
	if err := db.SaveSearch(ctx, "older term", 20, []string{"111"}); err != nil {
		t.Fatalf("SaveSearch() error = %v", err)
	}
	*now = 700
	if err := db.SaveSearch(ctx, "newer term", 20, []string{"111"}); err != nil {
		t.Fatalf("SaveSearch() error = %v", err)
	}

	// Artifact created between the two searches: the earlier one wins.
	*now = 500
	meta := `{"search_term": "", "search_ran_at": null, "search_ran_at_source": "",
		"publication_date": "", "publication_date_raw": "", "publication_date_source": "unknown"}`
	if err := db.UpsertArtifact(ctx, storage.Artifact{PMID: "111", Metadata: []byte(meta)}); err != nil {
		t.Fatalf("UpsertArtifact() error = %v", err)
	}

	rec := NewReconciler(db, logger.Nop())
	updated, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if updated != 1 {
		t.Fatalf("Run() updated = %d, want 1", updated)
	}

	snap := loadSnapshot(t, db, "111")
	if snap.SearchTerm != "older term" {
		t.Errorf("SearchTerm = %q, want %q", snap.SearchTerm, "older term")
	}
	if snap.SearchRanAt == nil || *snap.SearchRanAt != 100 {
		t.Errorf("SearchRanAt = %v, want 100", snap.SearchRanAt)
	}
	if snap.SearchSource != SearchSourceInferred {
		t.Errorf("SearchSource = %q, want %q", snap.SearchSource, SearchSourceInferred)
	}

	if updated, _ := rec.Run(ctx); updated != 0 {
		t.Errorf("Run(second) updated = %d, want 0", updated)
	}
}

func TestReconcilerInferenceFallsBackToNewest(t *testing.T) {
	db, now := newBackfillDB(t)
	ctx := context.Background()

	// Artifact predates every logged query; the newest query overall is the
	// only candidate left.
	*now = 50
	meta := `{"search_term": "", "search_ran_at": null, "search_ran_at_source": "",
		"publication_date": "", "publication_date_raw": "", "publication_date_source": "unknown"}`
	if err := db.UpsertArtifact(ctx, storage.Artifact{PMID: "222", Metadata: []byte(meta)}); err != nil {
		t.Fatalf("UpsertArtifact() error = %v", err)
	}

	*now = 100
	if err := db.SaveSearch(ctx, "first term", 20, []string{"222"}); err != nil {
		t.Fatalf("SaveSearch() error = %v", err)
	}
	*now = 300
	if err := db.SaveSearch(ctx, "latest term", 20, []string{"222"}); err != nil {
		t.Fatalf("SaveSearch() error = %v", err)
	}

	rec := NewReconciler(db, logger.Nop())
	if _, err := rec.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := loadSnapshot(t, db, "222")
	if snap.SearchTerm != "latest term" {
		t.Errorf("SearchTerm = %q, want %q", snap.SearchTerm, "latest term")
	}
	if snap.SearchRanAt == nil || *snap.SearchRanAt != 300 {
		t.Errorf("SearchRanAt = %v, want 300", snap.SearchRanAt)
	}
}

func TestReconcilerFillsOnlyMissingFields(t *testing.T) {
	db, now := newBackfillDB(t)
	ctx := context.Background()

	*now = 100
	if err := db.SaveSearch(ctx, "inferred term", 20, []string{"333"}); err != nil {
		t.Fatalf("SaveSearch() error = %v", err)
	}

	// Term present, timestamp missing: only the timestamp is inferred.
	*now = 500
	meta := `{"search_term": "curator term", "search_ran_at": null, "search_ran_at_source": "bogus",
		"publication_date": "", "publication_date_raw": "", "publication_date_source": "unknown"}`
	if err := db.UpsertArtifact(ctx, storage.Artifact{PMID: "333", Metadata: []byte(meta)}); err != nil {
		t.Fatalf("UpsertArtifact() error = %v", err)
	}

	rec := NewReconciler(db, logger.Nop())
	if _, err := rec.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := loadSnapshot(t, db, "333")
	if snap.SearchTerm != "curator term" {
		t.Errorf("SearchTerm = %q, want %q", snap.SearchTerm, "curator term")
	}
	if snap.SearchRanAt == nil || *snap.SearchRanAt != 100 {
		t.Errorf("SearchRanAt = %v, want 100", snap.SearchRanAt)
	}
	if snap.SearchSource != SearchSourceInferred {
		t.Errorf("SearchSource = %q, want %q", snap.SearchSource, SearchSourceInferred)
	}
}

func TestReconcilerLeavesCanonicalRowsAlone(t *testing.T) {
	db, _ := newBackfillDB(t)
	ctx := context.Background()

	snap := BuildSnapshot(recordFixture(), "heart failure", f64(1700000000), SearchSourceCurator)
	encoded, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := db.UpsertArtifact(ctx, storage.Artifact{PMID: "123", Metadata: encoded}); err != nil {
		t.Fatalf("UpsertArtifact() error = %v", err)
	}

	rec := NewReconciler(db, logger.Nop())
	updated, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if updated != 0 {
		t.Errorf("Run() updated = %d, want 0 for canonical row", updated)
	}
}

func TestReconcilerHandlesCorruptAndBlank(t *testing.T) {
	db, _ := newBackfillDB(t)
	ctx := context.Background()

	if err := db.UpsertArtifact(ctx, storage.Artifact{PMID: "123", Metadata: []byte("not json at all")}); err != nil {
		t.Fatalf("UpsertArtifact() error = %v", err)
	}
	if err := db.UpsertArtifact(ctx, storage.Artifact{PMID: "  ", Metadata: []byte("{}")}); err != nil {
		t.Fatalf("UpsertArtifact(blank pmid) error = %v", err)
	}

	rec := NewReconciler(db, logger.Nop())
	updated, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if updated != 1 {
		t.Fatalf("Run() updated = %d, want 1 (blank pmid skipped)", updated)
	}

	snap := loadSnapshot(t, db, "123")
	if snap.NeedsRewrite() {
		t.Error("corrupt snapshot not rewritten in canonical form")
	}
	if snap.SearchSource != SearchSourceUnknown || snap.PubDateSource != DateSourceUnknown {
		t.Errorf("corrupt snapshot sources = %q/%q, want unknown/unknown",
			snap.SearchSource, snap.PubDateSource)
	}

	if updated, _ := rec.Run(ctx); updated != 0 {
		t.Errorf("Run(second) updated = %d, want 0", updated)
	}
}

func TestReconcilerPreservesPublishState(t *testing.T) {
	db, now := newBackfillDB(t)
	ctx := context.Background()

	*now = 500
	if err := db.UpsertArtifact(ctx, storage.Artifact{PMID: "123", Metadata: []byte(`{}`)}); err != nil {
		t.Fatalf("UpsertArtifact() error = %v", err)
	}
	*now = 600
	if err := db.PublishArtifact(ctx, "123", intPtr(3)); err != nil {
		t.Fatalf("PublishArtifact() error = %v", err)
	}

	rec := NewReconciler(db, logger.Nop())
	if updated, err := rec.Run(ctx); err != nil || updated != 1 {
		t.Fatalf("Run() = %d, %v", updated, err)
	}

	artifact, err := db.GetArtifact(ctx, "123")
	if err != nil || artifact == nil {
		t.Fatalf("GetArtifact() = %v, err %v", artifact, err)
	}
	if artifact.PublishedAt == nil || *artifact.PublishedAt != 600 {
		t.Errorf("PublishedAt = %v, want 600", artifact.PublishedAt)
	}
	if artifact.FeaturedRank == nil || *artifact.FeaturedRank != 3 {
		t.Errorf("FeaturedRank = %v, want 3", artifact.FeaturedRank)
	}
	if artifact.CreatedAt != 500 {
		t.Errorf("CreatedAt = %v, want 500", artifact.CreatedAt)
	}
}

// fakeStore exercises the error paths without a database.
type fakeStore struct {
	artifacts  []storage.Artifact
	listErr    error
	updateErr  error
	updated    []string
	queryCalls int
}

func (f *fakeStore) ListArtifacts(ctx context.Context, publishedOnly bool) ([]storage.Artifact, error) {
	return f.artifacts, f.listErr
}

func (f *fakeStore) FindLatestQueryForPMID(ctx context.Context, pmid string, before *float64) (*storage.QueryRef, error) {
	f.queryCalls++
	return nil, nil
}

func (f *fakeStore) UpdateArtifactMetadata(ctx context.Context, pmid string, metadata []byte) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, pmid)
	return nil
}

func TestReconcilerListFailureAborts(t *testing.T) {
	store := &fakeStore{listErr: errors.New("disk gone")}
	rec := NewReconciler(store, logger.Nop())

	updated, err := rec.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want list failure")
	}
	if updated != 0 {
		t.Errorf("Run() updated = %d, want 0", updated)
	}
}

func TestReconcilerUpdateFailureSkipsArtifact(t *testing.T) {
	store := &fakeStore{
		artifacts: []storage.Artifact{
			{PMID: "1", Metadata: []byte(`{}`), CreatedAt: 100},
			{PMID: "2", Metadata: []byte(`{}`), CreatedAt: 100},
		},
		updateErr: errors.New("locked"),
	}
	rec := NewReconciler(store, logger.Nop())

	updated, err := rec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (per-artifact faults skip)", err)
	}
	if updated != 0 {
		t.Errorf("Run() updated = %d, want 0", updated)
	}
	if store.queryCalls != 2 {
		t.Errorf("inference lookups = %d, want 2 (both artifacts visited)", store.queryCalls)
	}
}

func intPtr(v int) *int { return &v }

func recordFixture() record.Record {
	return record.Record{
		PMID:          "123",
		Title:         "Test Title",
		Journal:       "Fake Journal",
		Year:          "2024",
		Authors:       []string{"Ann Author"},
		PubDate:       "2023-11-02",
		PubDateRaw:    "2023-11-02",
		PubDateSource: DateSourceElectronic,
	}
}
