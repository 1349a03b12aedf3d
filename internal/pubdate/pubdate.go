// Package pubdate normalizes the publication date fragments found in PubMed
// records into canonical "YYYY", "YYYY-MM", or "YYYY-MM-DD" strings.
package pubdate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// monthNames maps English month names and abbreviations to month numbers.
// PubMed mostly emits three-letter abbreviations, but MedlineDate text
// occasionally spells months out or uses "Sept".
var monthNames = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

var (
	yearRe         = regexp.MustCompile(`\b(\d{4})\b`)
	numericMonthRe = regexp.MustCompile(`\b(0?[1-9]|1[0-2])\b`)
	dayRe          = regexp.MustCompile(`\b([0-2]?\d|3[0-1])\b`)
	monthTokenRe   = regexp.MustCompile(`\b([A-Za-z]{3,9})\.?\b`)
)

// monthNumber resolves a month fragment to 1-12. It accepts names,
// abbreviations with or without a trailing dot, and bare numeric months.
// Returns 0 when the fragment holds no recognizable month.
func monthNumber(text string) int {
	month := strings.ToLower(strings.TrimRight(strings.TrimSpace(text), "."))
	if month == "" {
		return 0
	}
	if n, ok := monthNames[month]; ok {
		return n
	}
	if m := numericMonthRe.FindStringSubmatch(month); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// Normalize builds a canonical date from separate year, month, and day
// fragments. The result carries as much precision as the fragments support:
// an unrecognizable month or day truncates the date rather than failing it,
// and a missing or unrecognizable year yields "".
func Normalize(year, month, day string) string {
	ym := yearRe.FindStringSubmatch(strings.TrimSpace(year))
	if ym == nil {
		return ""
	}
	y := ym[1]

	m := monthNumber(month)
	if m == 0 {
		return y
	}

	dm := dayRe.FindStringSubmatch(strings.TrimSpace(day))
	if dm == nil {
		return fmt.Sprintf("%s-%02d", y, m)
	}
	d, _ := strconv.Atoi(dm[1])
	if d <= 0 {
		return fmt.Sprintf("%s-%02d", y, m)
	}
	return fmt.Sprintf("%s-%02d-%02d", y, m, d)
}

// NormalizeMedline parses a free-form MedlineDate value such as
// "2022 Sep-Oct" or "2000 Spring". The first four-digit year anchors the
// date; a month token and day are only looked for after it, so a range
// keeps its opening month.
func NormalizeMedline(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	loc := yearRe.FindStringSubmatchIndex(t)
	if loc == nil {
		return ""
	}
	year := t[loc[2]:loc[3]]
	rest := t[loc[1]:]

	var monthToken, dayToken string
	if m := monthTokenRe.FindStringSubmatchIndex(rest); m != nil {
		monthToken = rest[m[2]:m[3]]
		if d := dayRe.FindStringSubmatch(rest[m[1]:]); d != nil {
			dayToken = d[1]
		}
	}
	return Normalize(year, monthToken, dayToken)
}
