package provenance

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/medbrief/newsroom/internal/record"
)

// Snapshot is the provenance metadata persisted alongside a generated
// artifact. SearchRanAt is nil when the originating search time is unknown.
//
// Decoding is deliberately forgiving: older rows stored timestamps as
// strings, nulls where strings belong, or missing fields entirely. Those
// rows decode into sane zero values and are flagged via NeedsRewrite so the
// backfill reconciler rewrites them in canonical form exactly once.
type Snapshot struct {
	Title         string   `json:"title"`
	Journal       string   `json:"journal"`
	Year          string   `json:"year"`
	Authors       []string `json:"authors"`
	DOI           string   `json:"doi"`
	PMCID         string   `json:"pmcid"`
	SearchTerm    string   `json:"search_term"`
	SearchRanAt   *float64 `json:"search_ran_at"`
	SearchSource  string   `json:"search_ran_at_source"`
	PubDate       string   `json:"publication_date"`
	PubDateRaw    string   `json:"publication_date_raw"`
	PubDateSource string   `json:"publication_date_source"`

	legacy bool
}

// BuildSnapshot assembles the metadata snapshot for a record. The search
// timestamp is epoch-coerced, an unrecognized search source collapses to
// unknown, the term is trimmed, and the publication date triple comes from
// ResolveRecordDate.
func BuildSnapshot(rec record.Record, term string, ranAt *float64, source string) Snapshot {
	resolved := ResolveRecordDate(rec)
	if !ValidSearchSource(source) {
		source = SearchSourceUnknown
	}
	authors := rec.Authors
	if authors == nil {
		authors = []string{}
	}
	return Snapshot{
		Title:         rec.Title,
		Journal:       rec.Journal,
		Year:          rec.Year,
		Authors:       authors,
		DOI:           rec.DOI,
		PMCID:         rec.PMCID,
		SearchTerm:    strings.TrimSpace(term),
		SearchRanAt:   CoerceEpoch(ranAt),
		SearchSource:  source,
		PubDate:       resolved.Date,
		PubDateRaw:    resolved.Raw,
		PubDateSource: resolved.Source,
	}
}

// DecodeSnapshot parses a stored metadata snapshot. A missing or corrupt
// document decodes as an empty snapshot flagged for rewrite; reconciliation
// then proceeds as if no provenance exists.
func DecodeSnapshot(data []byte) Snapshot {
	var s Snapshot
	if len(data) == 0 || json.Unmarshal(data, &s) != nil {
		return Snapshot{Authors: []string{}, legacy: true}
	}
	return s
}

// Encode renders the snapshot in canonical JSON form.
func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// NeedsRewrite reports whether the stored encoding of any provenance field
// differed from canonical form, so the row should be rewritten even when no
// field-level repair applies.
func (s Snapshot) NeedsRewrite() bool { return s.legacy }

// provenance fields whose stored encoding drives NeedsRewrite. The
// descriptive record fields (title, journal, authors, ...) are never
// rewritten on their own.
func (s *Snapshot) canonicalFields() map[string]any {
	return map[string]any{
		"search_term":             s.SearchTerm,
		"search_ran_at":           s.SearchRanAt,
		"search_ran_at_source":    s.SearchSource,
		"publication_date":        s.PubDate,
		"publication_date_raw":    s.PubDateRaw,
		"publication_date_source": s.PubDateSource,
	}
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	s.Title = looseString(fields["title"])
	s.Journal = looseString(fields["journal"])
	s.Year = looseString(fields["year"])
	s.Authors = looseStrings(fields["authors"])
	s.DOI = looseString(fields["doi"])
	s.PMCID = looseString(fields["pmcid"])
	s.SearchTerm = looseString(fields["search_term"])
	s.SearchRanAt = CoerceEpoch(looseValue(fields["search_ran_at"]))
	s.SearchSource = looseString(fields["search_ran_at_source"])
	s.PubDate = looseString(fields["publication_date"])
	s.PubDateRaw = looseString(fields["publication_date_raw"])
	s.PubDateSource = looseString(fields["publication_date_source"])

	s.legacy = false
	for key, value := range s.canonicalFields() {
		raw, ok := fields[key]
		if !ok || !canonicalJSONEqual(raw, value) {
			s.legacy = true
			break
		}
	}
	return nil
}

// canonicalJSONEqual reports whether raw is byte-identical to the canonical
// encoding of value, ignoring surrounding whitespace.
func canonicalJSONEqual(raw json.RawMessage, value any) bool {
	want, err := json.Marshal(value)
	if err != nil {
		return false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return false
	}
	return bytes.Equal(buf.Bytes(), want)
}

func looseValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// looseString extracts a string field, tolerating the shapes legacy rows
// accumulated: null, absent, and stray numbers or booleans.
func looseString(raw json.RawMessage) string {
	switch v := looseValue(raw).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func looseStrings(raw json.RawMessage) []string {
	items, _ := looseValue(raw).([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return out
}
