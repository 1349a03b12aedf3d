// Package provenance resolves and repairs the metadata that records how an
// artifact entered the system: which search surfaced it, when that search
// ran, and where its publication date came from.
package provenance

import (
	"math"
	"strconv"
	"strings"
)

// Search provenance sources: how the search behind an artifact is known.
const (
	SearchSourceCurator  = "curator_search_action"
	SearchSourceInferred = "query_history_inferred"
	SearchSourceUnknown  = "unknown"
)

// Publication date sources: which part of the PubMed record supplied the
// date.
const (
	DateSourceElectronic   = "electronic_pub_date"
	DateSourceJournalIssue = "journal_issue_pub_date"
	DateSourceYearFallback = "year_fallback"
	DateSourceUnknown      = "unknown"
)

// ValidSearchSource reports whether s is a recognized search source.
func ValidSearchSource(s string) bool {
	switch s {
	case SearchSourceCurator, SearchSourceInferred, SearchSourceUnknown:
		return true
	}
	return false
}

// ValidDateSource reports whether s is a recognized publication date source.
func ValidDateSource(s string) bool {
	switch s {
	case DateSourceElectronic, DateSourceJournalIssue, DateSourceYearFallback, DateSourceUnknown:
		return true
	}
	return false
}

// CoerceEpoch normalizes a loosely typed epoch-seconds value. Numbers and
// numeric strings parse as usual; blank strings, unparsable text,
// non-positive or non-finite values, and anything else coerce to nil.
// Legacy metadata rows stored timestamps in all of these shapes.
func CoerceEpoch(v any) *float64 {
	switch value := v.(type) {
	case nil:
		return nil
	case *float64:
		if value == nil {
			return nil
		}
		return positiveEpoch(*value)
	case float64:
		return positiveEpoch(value)
	case float32:
		return positiveEpoch(float64(value))
	case int:
		return positiveEpoch(float64(value))
	case int64:
		return positiveEpoch(float64(value))
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil
		}
		return positiveEpoch(parsed)
	default:
		return nil
	}
}

func positiveEpoch(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return nil
	}
	return &f
}
