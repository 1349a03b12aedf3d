package provenance

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medbrief/newsroom/internal/logger"
	"github.com/medbrief/newsroom/internal/storage"
)

var (
	backfillRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsroom_backfill_runs_total",
		Help: "Provenance reconciliation passes started.",
	})

	backfillUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsroom_backfill_updates_total",
		Help: "Artifacts whose provenance metadata was rewritten.",
	})
)

// Store is the slice of the storage layer the reconciler touches.
type Store interface {
	ListArtifacts(ctx context.Context, publishedOnly bool) ([]storage.Artifact, error)
	FindLatestQueryForPMID(ctx context.Context, pmid string, before *float64) (*storage.QueryRef, error)
	UpdateArtifactMetadata(ctx context.Context, pmid string, metadata []byte) error
}

// Reconciler backfills artifact provenance metadata in place: it repairs
// legacy encodings, infers missing search provenance from the query history,
// and re-resolves publication dates. It runs once at service startup and on
// demand from the CLI, and converges: a second pass over reconciled data
// updates nothing.
type Reconciler struct {
	store Store
	log   logger.Logger
}

func NewReconciler(store Store, log logger.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Run reconciles every stored artifact and returns the number updated.
// Per-artifact storage faults are logged and skipped; only a failure to list
// the artifacts at all aborts the pass.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	backfillRuns.Inc()

	artifacts, err := r.store.ListArtifacts(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list artifacts for provenance backfill: %w", err)
	}

	updates := 0
	for _, artifact := range artifacts {
		pmid := strings.TrimSpace(artifact.PMID)
		if pmid == "" {
			continue
		}

		snap := DecodeSnapshot(artifact.Metadata)
		changed := snap.NeedsRewrite()

		if term := strings.TrimSpace(snap.SearchTerm); term != snap.SearchTerm {
			snap.SearchTerm = term
			changed = true
		}

		inferredUsed := false
		if snap.SearchTerm == "" || snap.SearchRanAt == nil {
			inferred, err := r.inferQuery(ctx, pmid, artifact.CreatedAt)
			if err != nil {
				r.log.Warn("query history lookup failed, skipping artifact",
					logger.String("pmid", pmid), logger.Error(err))
				continue
			}
			if inferred != nil {
				term := strings.TrimSpace(inferred.Term)
				ranAt := CoerceEpoch(inferred.CreatedAt)
				if snap.SearchTerm == "" && term != "" {
					snap.SearchTerm = term
					changed = true
					inferredUsed = true
				}
				if snap.SearchRanAt == nil && ranAt != nil {
					snap.SearchRanAt = ranAt
					changed = true
					inferredUsed = true
				}
			}
		}

		if !ValidSearchSource(strings.TrimSpace(snap.SearchSource)) {
			if inferredUsed {
				snap.SearchSource = SearchSourceInferred
			} else {
				snap.SearchSource = SearchSourceUnknown
			}
			changed = true
		}

		resolved := ResolveDate(DateInput{
			Date:   snap.PubDate,
			Raw:    snap.PubDateRaw,
			Source: snap.PubDateSource,
			Year:   snap.Year,
		})
		if snap.PubDate != resolved.Date {
			snap.PubDate = resolved.Date
			changed = true
		}
		if snap.PubDateRaw != resolved.Raw {
			snap.PubDateRaw = resolved.Raw
			changed = true
		}
		if snap.PubDateSource != resolved.Source {
			snap.PubDateSource = resolved.Source
			changed = true
		}

		if !changed {
			continue
		}
		encoded, err := snap.Encode()
		if err != nil {
			r.log.Error("encode metadata snapshot", logger.String("pmid", pmid), logger.Error(err))
			continue
		}
		if err := r.store.UpdateArtifactMetadata(ctx, pmid, encoded); err != nil {
			r.log.Warn("persist metadata snapshot failed, skipping artifact",
				logger.String("pmid", pmid), logger.Error(err))
			continue
		}
		updates++
	}

	if updates > 0 {
		backfillUpdates.Add(float64(updates))
		r.log.Infof("Backfilled artifact provenance for %d artifact(s)", updates)
	}
	return updates, nil
}

// inferQuery finds the search most plausibly behind an artifact: the latest
// query that returned its PMID at or before the artifact's creation time.
// Falling back to the latest query regardless of timing covers artifacts
// created before query logging existed, or clock skew.
func (r *Reconciler) inferQuery(ctx context.Context, pmid string, createdAt float64) (*storage.QueryRef, error) {
	var before *float64
	if createdAt > 0 {
		before = &createdAt
	}
	return r.store.FindLatestQueryForPMID(ctx, pmid, before)
}
