package story

import (
	"reflect"
	"testing"
)

func TestNormalizeStory(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want Story
	}{
		{
			name: "full story",
			data: map[string]any{
				"headline":          "  Big Finding  ",
				"standfirst":        " It matters. ",
				"story_paragraphs":  []any{"One.", "Two."},
				"what_happens_next": " More trials. ",
			},
			want: Story{
				Headline:        "Big Finding",
				Standfirst:      "It matters.",
				Paragraphs:      []string{"One.", "Two."},
				WhatHappensNext: "More trials.",
			},
		},
		{
			name: "null paragraphs",
			data: map[string]any{"headline": "H", "story_paragraphs": nil},
			want: Story{Headline: "H", Paragraphs: []string{}},
		},
		{
			name: "string paragraphs",
			data: map[string]any{"headline": "H", "story_paragraphs": "  One paragraph.  "},
			want: Story{Headline: "H", Paragraphs: []string{"One paragraph."}},
		},
		{
			name: "paragraph list sanitized",
			data: map[string]any{
				"headline":         "H",
				"story_paragraphs": []any{"  First paragraph. ", "", nil, float64(123)},
			},
			want: Story{Headline: "H", Paragraphs: []string{"First paragraph.", "123"}},
		},
		{
			name: "missing headline falls back",
			data: map[string]any{"story_paragraphs": []any{"P."}},
			want: Story{Headline: "Fallback title", Paragraphs: []string{"P."}},
		},
		{
			name: "blank headline falls back",
			data: map[string]any{"headline": "   "},
			want: Story{Headline: "Fallback title", Paragraphs: []string{}},
		},
		{
			name: "numeric headline stringified",
			data: map[string]any{"headline": float64(42)},
			want: Story{Headline: "42", Paragraphs: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeStory(tt.data, "Fallback title")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalizeStory() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
