package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON)
// and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// BackfillResponse is the response for the backfill command.
type BackfillResponse struct {
	Updated int `json:"updated"`
}

// SearchResponse is the response for the search command.
type SearchResponse struct {
	Term    string               `json:"term"`
	Results []SearchResultOutput `json:"results"`
}

// SearchResultOutput is one ranked article in search command output.
type SearchResultOutput struct {
	PMID             string   `json:"pmid"`
	Title            string   `json:"title"`
	Journal          string   `json:"journal"`
	Year             string   `json:"year"`
	DOI              string   `json:"doi,omitempty"`
	PublicationTypes []string `json:"publication_types,omitempty"`
	Readability      *float64 `json:"readability_score"`
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
