// Package readability ranks article abstracts with the Dale-Chall formula,
// which scores text by sentence length and the share of words outside a
// familiar-words list.
package readability

import (
	_ "embed"
	"math"
	"regexp"
	"strings"

	"github.com/medbrief/newsroom/internal/record"
)

var (
	wordRe     = regexp.MustCompile(`[A-Za-z]+(?:'[A-Za-z]+)?`)
	sentenceRe = regexp.MustCompile(`[.!?]+`)
)

// suffixes tried when a word is not directly in the familiar list. "cats"
// counts as easy when "cat" is familiar.
var suffixes = []string{"'s", "s", "es", "ed", "ing", "ly"}

//go:embed data/dale_chall_easy_words.txt
var easyWordsData string

var easyWords = loadEasyWords(easyWordsData)

func loadEasyWords(data string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, line := range strings.Split(data, "\n") {
		if word := strings.ToLower(strings.TrimSpace(line)); word != "" {
			words[word] = struct{}{}
		}
	}
	return words
}

func tokenizeWords(text string) []string {
	if text == "" {
		return nil
	}
	matches := wordRe.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.ToLower(m)
	}
	return matches
}

func countSentences(text string) int {
	if text == "" {
		return 0
	}
	count := 0
	for _, part := range sentenceRe.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}
	if count > 0 {
		return count
	}
	if wordRe.MatchString(text) {
		return 1
	}
	return 0
}

// isEasy reports whether a word is familiar. An empty familiar list makes
// every word easy, so a missing word list degrades scores instead of
// breaking them.
func isEasy(word string, easy map[string]struct{}) bool {
	if len(easy) == 0 {
		return true
	}
	if _, ok := easy[word]; ok {
		return true
	}
	for _, suffix := range suffixes {
		if strings.HasSuffix(word, suffix) && len(word) > len(suffix)+1 {
			if _, ok := easy[word[:len(word)-len(suffix)]]; ok {
				return true
			}
		}
	}
	return false
}

// Score computes the Dale-Chall readability score of a text. Lower is
// easier. The second return is false when the text has no scorable words.
func Score(text string) (float64, bool) {
	words := tokenizeWords(text)
	if len(words) == 0 {
		return 0, false
	}
	sentences := countSentences(text)
	if sentences <= 0 {
		sentences = 1
	}

	difficult := 0
	for _, word := range words {
		if !isEasy(word, easyWords) {
			difficult++
		}
	}
	difficultPct := float64(difficult) / float64(len(words)) * 100.0

	score := 0.1579*difficultPct + 0.0496*(float64(len(words))/float64(sentences))
	if difficultPct > 5.0 {
		score += 3.6365
	}
	return math.Round(score*1000) / 1000, true
}

// ScoreRecords scores each record's abstract, keyed by PMID. Records with
// no PMID or no scorable abstract are skipped.
func ScoreRecords(records []record.Record) map[string]float64 {
	scores := make(map[string]float64)
	for _, rec := range records {
		if rec.PMID == "" {
			continue
		}
		if score, ok := Score(rec.Abstract); ok {
			scores[rec.PMID] = score
		}
	}
	return scores
}
