package story

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/medbrief/newsroom/internal/record"
)

// ErrMissingKernel is returned for prompt templates without the {kernel}
// placeholder, which would silently drop the study from the prompt.
var ErrMissingKernel = errors.New("prompt template is invalid: missing {kernel} placeholder")

//go:embed prompts/newsroom_prompt.txt
var defaultTemplate string

// DefaultTemplate returns the built-in newsroom prompt template.
func DefaultTemplate() string {
	return defaultTemplate
}

// LoadTemplate reads a prompt template from disk and validates it.
func LoadTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("prompt template could not be loaded: %w", err)
	}
	if err := ValidateTemplate(string(data)); err != nil {
		return "", err
	}
	return string(data), nil
}

// ValidateTemplate checks that a template carries the {kernel} placeholder.
func ValidateTemplate(template string) error {
	if !strings.Contains(template, "{kernel}") {
		return ErrMissingKernel
	}
	return nil
}

// buildKernel condenses a record into the study kernel the prompt is built
// around. The author list is capped at six names.
func buildKernel(rec record.Record) string {
	authors := rec.Authors
	if len(authors) > 6 {
		authors = authors[:6]
	}
	lines := []string{
		"Title: " + rec.Title,
		"Journal: " + rec.Journal,
		"Year: " + rec.Year,
		"Authors: " + strings.Join(authors, ", "),
		"PMID: " + rec.PMID,
		"Abstract:",
		rec.Abstract,
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
