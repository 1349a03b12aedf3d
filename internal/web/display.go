package web

import (
	"math"
	"strings"
	"time"

	"github.com/medbrief/newsroom/internal/provenance"
)

// MetadataView wraps a provenance snapshot with display-ready strings for
// the templates. Unknown values render as the literal "Unknown" rather than
// an empty cell.
type MetadataView struct {
	provenance.Snapshot

	SearchTermDisplay  string
	SearchRanAtDisplay string
	PubDateDisplay     string
}

// AuthorsLine joins the snapshot authors for display.
func (v MetadataView) AuthorsLine() string {
	return strings.Join(v.Authors, ", ")
}

func metadataForDisplay(s provenance.Snapshot) MetadataView {
	view := MetadataView{Snapshot: s}

	view.SearchTermDisplay = strings.TrimSpace(s.SearchTerm)
	if view.SearchTermDisplay == "" {
		view.SearchTermDisplay = "Unknown"
	}
	view.SearchRanAtDisplay = formatDatetime(s.SearchRanAt)
	if view.SearchRanAtDisplay == "" {
		view.SearchRanAtDisplay = "Unknown"
	}
	view.PubDateDisplay = FormatPublicationDate(s.PubDate, s.PubDateRaw)
	if view.PubDateDisplay == "" {
		view.PubDateDisplay = "Unknown"
	}
	return view
}

func epochTime(epoch float64) time.Time {
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// formatDate renders an epoch as "Jan 02, 2006", or "" when absent.
func formatDate(epoch *float64) string {
	if epoch == nil || *epoch == 0 {
		return ""
	}
	return epochTime(*epoch).Format("Jan 02, 2006")
}

// formatDatetime renders an epoch as "Jan 02, 2006 15:04", or "" when absent.
func formatDatetime(epoch *float64) string {
	if epoch == nil || *epoch == 0 {
		return ""
	}
	return epochTime(*epoch).Format("Jan 02, 2006 15:04")
}

// rawDateLayouts are the shapes PubMed raw date text arrives in, tried in
// order once commas are stripped and whitespace collapsed.
var rawDateLayouts = []struct{ in, out string }{
	{"2006 Jan 2", "Jan 02 2006"},
	{"2006 January 2", "Jan 02 2006"},
	{"Jan 2 2006", "Jan 02 2006"},
	{"January 2 2006", "Jan 02 2006"},
	{"2006 Jan", "Jan 2006"},
	{"2006 January", "Jan 2006"},
	{"Jan 2006", "Jan 2006"},
	{"January 2006", "Jan 2006"},
	{"2006", "Jan 02 2006"},
}

// FormatPublicationDate renders a publication date for display. Canonical
// values (YYYY, YYYY-MM, YYYY-MM-DD) format directly, except that a bare
// year defers to the raw PubMed text when one exists: the raw form may carry
// a month and day the canonical form dropped. Input that matches nothing
// passes through unchanged.
func FormatPublicationDate(value, raw string) string {
	value = strings.TrimSpace(value)
	raw = strings.TrimSpace(raw)

	if value != "" {
		parts := strings.Split(value, "-")
		switch len(parts) {
		case 3:
			if allDigits(parts) {
				if t, err := time.Parse("2006-1-2", value); err == nil {
					return t.Format("Jan 02 2006")
				}
			}
		case 2:
			if allDigits(parts) {
				if t, err := time.Parse("2006-1", value); err == nil {
					return t.Format("Jan 02 2006")
				}
			}
		case 1:
			if allDigits(parts) && raw == "" {
				if t, err := time.Parse("2006", value); err == nil {
					return t.Format("Jan 02 2006")
				}
			}
		}
	}

	if raw != "" {
		cleaned := strings.Join(strings.Fields(strings.ReplaceAll(raw, ",", " ")), " ")
		for _, layout := range rawDateLayouts {
			if t, err := time.Parse(layout.in, cleaned); err == nil {
				return t.Format(layout.out)
			}
		}
	}

	if value != "" {
		return value
	}
	return raw
}

func allDigits(parts []string) bool {
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
