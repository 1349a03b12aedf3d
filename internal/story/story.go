// Package story turns article records into short news stories with an
// OpenAI-compatible chat completions API, behind an LRU cache keyed by the
// exact prompt.
package story

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Story is a generated news story for one article.
type Story struct {
	Headline        string   `json:"headline"`
	Standfirst      string   `json:"standfirst"`
	Paragraphs      []string `json:"story_paragraphs"`
	WhatHappensNext string   `json:"what_happens_next"`
}

// storySchema constrains the model output. what_happens_next stays optional;
// not every study suggests a next step.
var storySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"headline": {"type": "string"},
		"standfirst": {"type": "string"},
		"story_paragraphs": {"type": "array", "items": {"type": "string"}},
		"what_happens_next": {"type": "string"}
	},
	"required": ["headline", "standfirst", "story_paragraphs"],
	"additionalProperties": false
}`)

// normalizeStory coerces a decoded model response into a Story, tolerating
// sloppy shapes: a bare string where the paragraph list should be, numbers
// where strings should be, and null entries.
func normalizeStory(data map[string]any, fallbackTitle string) Story {
	story := Story{
		Headline:        strings.TrimSpace(toString(data["headline"])),
		Standfirst:      strings.TrimSpace(toString(data["standfirst"])),
		WhatHappensNext: strings.TrimSpace(toString(data["what_happens_next"])),
		Paragraphs:      []string{},
	}
	if story.Headline == "" {
		story.Headline = fallbackTitle
	}

	switch v := data["story_paragraphs"].(type) {
	case string:
		if text := strings.TrimSpace(v); text != "" {
			story.Paragraphs = append(story.Paragraphs, text)
		}
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			if text := strings.TrimSpace(toString(item)); text != "" {
				story.Paragraphs = append(story.Paragraphs, text)
			}
		}
	}
	return story
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
