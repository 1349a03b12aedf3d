package provenance

import (
	"strings"

	"github.com/medbrief/newsroom/internal/record"
)

// PublicationDate is a resolved publication date triple.
type PublicationDate struct {
	Date   string
	Raw    string
	Source string
}

// DateInput carries the fields the resolver inspects. Both freshly parsed
// records and stored metadata snapshots reduce to it.
type DateInput struct {
	Date   string
	Raw    string
	Source string
	Year   string
}

// ResolveDate applies the publication date precedence:
//
//  1. A non-empty canonical date wins. A missing raw companion defaults to
//     the date itself, and an unrecognized source is re-derived: year_fallback
//     when the record's free-text year equals the date, unknown otherwise.
//  2. Otherwise a non-empty free-text year stands in for both date and raw,
//     marked year_fallback.
//  3. Otherwise everything is empty and the source is unknown.
//
// The function is pure. Artifact creation and backfill reconciliation both
// call it, so the two paths can never disagree on resolution.
func ResolveDate(in DateInput) PublicationDate {
	date := strings.TrimSpace(in.Date)
	raw := strings.TrimSpace(in.Raw)
	source := strings.TrimSpace(in.Source)

	if date != "" {
		if raw == "" {
			raw = date
		}
		if !ValidDateSource(source) {
			year := strings.TrimSpace(in.Year)
			if year != "" && date == year {
				source = DateSourceYearFallback
			} else {
				source = DateSourceUnknown
			}
		}
		return PublicationDate{Date: date, Raw: raw, Source: source}
	}

	if year := strings.TrimSpace(in.Year); year != "" {
		return PublicationDate{Date: year, Raw: year, Source: DateSourceYearFallback}
	}
	return PublicationDate{Source: DateSourceUnknown}
}

// ResolveRecordDate resolves the publication date for a parsed PubMed
// record.
func ResolveRecordDate(rec record.Record) PublicationDate {
	return ResolveDate(DateInput{
		Date:   rec.PubDate,
		Raw:    rec.PubDateRaw,
		Source: rec.PubDateSource,
		Year:   rec.Year,
	})
}
