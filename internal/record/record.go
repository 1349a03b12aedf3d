// Package record defines the PubMed article record shared across the
// pipeline: the eUtils parser produces records, storage caches them, and the
// provenance and story layers consume them.
package record

// Record is a single PubMed article.
//
// The publication date triple is only populated on freshly parsed eUtils
// responses. Persisted rows do not carry it, so callers that need a date for
// a cached record re-fetch from the API.
type Record struct {
	PMID             string   `json:"pmid"`
	Title            string   `json:"title"`
	Abstract         string   `json:"abstract"`
	Journal          string   `json:"journal"`
	Year             string   `json:"year"`
	Authors          []string `json:"authors"`
	DOI              string   `json:"doi,omitempty"`
	PMCID            string   `json:"pmcid,omitempty"`
	PublicationTypes []string `json:"publication_types,omitempty"`

	PubDate       string `json:"publication_date,omitempty"`
	PubDateRaw    string `json:"publication_date_raw,omitempty"`
	PubDateSource string `json:"publication_date_source,omitempty"`
}

// HasPubDate reports whether the record carries a canonical publication date.
func (r Record) HasPubDate() bool {
	return r.PubDate != ""
}
