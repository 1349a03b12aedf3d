package pubmed

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultIncludeTypes are the publication types that mark primary research.
var defaultIncludeTypes = []string{
	"Clinical Trial",
	"Randomized Controlled Trial",
	"Controlled Clinical Trial",
	"Clinical Trial, Phase I",
	"Clinical Trial, Phase II",
	"Clinical Trial, Phase III",
	"Clinical Trial, Phase IV",
	"Observational Study",
	"Comparative Study",
	"Multicenter Study",
	"Evaluation Study",
	"Validation Study",
}

// defaultExcludeTypes are secondary literature and other types that a
// curation search should never surface.
var defaultExcludeTypes = []string{
	"Review",
	"Systematic Review",
	"Meta-Analysis",
	"Editorial",
	"Letter",
	"Comment",
	"Guideline",
	"Practice Guideline",
	"Clinical Trial Protocol",
	"Preprint",
}

// Filter restricts searches to primary research by publication type. The
// zero value applies the built-in include and exclude lists.
type Filter struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// DefaultFilter returns the built-in primary-research filter.
func DefaultFilter() Filter {
	return Filter{
		Include: defaultIncludeTypes,
		Exclude: defaultExcludeTypes,
	}
}

// LoadFilter reads a filter profile from a YAML file. Lists left empty in
// the file fall back to the built-in defaults.
func LoadFilter(path string) (Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Filter{}, fmt.Errorf("reading filter profile: %w", err)
	}

	var f Filter
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Filter{}, fmt.Errorf("parsing filter profile %s: %w", path, err)
	}
	return f, nil
}

// Query wraps a search term with the publication-type restrictions: only
// journal articles of an included type, minus every excluded type.
func (f Filter) Query(term string) string {
	include := f.Include
	if len(include) == 0 {
		include = defaultIncludeTypes
	}
	exclude := f.Exclude
	if len(exclude) == 0 {
		exclude = defaultExcludeTypes
	}

	return fmt.Sprintf(`(%s) AND "journal article"[pt] AND (%s) NOT (%s)`,
		term, typeClause(include), typeClause(exclude))
}

func typeClause(types []string) string {
	parts := make([]string, len(types))
	for i, pt := range types {
		parts[i] = fmt.Sprintf("%q[pt]", pt)
	}
	return strings.Join(parts, " OR ")
}
