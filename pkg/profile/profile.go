// Package profile loads domain profiles: per-domain alias tables, keyword
// filters, topic definitions and confidence overrides. A profile is loaded
// once per pipeline run and passed around as an immutable value, never held
// as global state.
package profile

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Topic describes the domain topic node a profile revolves around.
type Topic struct {
	ID    string `yaml:"id"`
	Slug  string `yaml:"slug"`
	Label string `yaml:"label"`
}

// Instrument is a seedable instrument entry from the profile.
type Instrument struct {
	ID    string `yaml:"id"`    // BWB register id or CELEX number
	Title string `yaml:"title"`
}

// Filters hold the keyword filters used to tag nodes as belonging to the
// profile's domain.
type Filters struct {
	TitleContains   []string `yaml:"title_contains"`
	DossierKeywords []string `yaml:"dossier_keywords"`
}

// Confidence holds the configurable scoring constants for citation
// detection. Zero values fall back to the package defaults in cite.
type Confidence struct {
	Article    float64 `yaml:"article"`
	Instrument float64 `yaml:"instrument"`
	Range      float64 `yaml:"range"`
}

// Profile is the parsed domain profile.
type Profile struct {
	Name              string            `yaml:"name"`
	Topic             Topic             `yaml:"topic"`
	CodeAliases       map[string]string `yaml:"code_aliases"`       // short code -> instrument id (Sr -> BWBR0001854)
	InstrumentAliases map[string]string `yaml:"instrument_aliases"` // full name -> instrument id
	NLInstruments     []Instrument      `yaml:"nl_instruments"`
	EUInstruments     []Instrument      `yaml:"eu_instruments"`
	BWBIDs            []string          `yaml:"bwb_ids"`
	Filters           Filters           `yaml:"filters"`
	Confidence        Confidence        `yaml:"confidence"`
	// TextFields designates which node properties the semantic linker scans,
	// per node type name.
	TextFields map[string][]string `yaml:"text_fields"`
}

// Load reads and validates a profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read profile %s", path)
	}
	return Parse(data)
}

// Parse decodes a profile from YAML bytes.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "parse profile")
	}
	p.normalize()
	return &p, nil
}

func (p *Profile) normalize() {
	p.CodeAliases = normalizeAliases(p.CodeAliases, strings.ToUpper)
	p.InstrumentAliases = normalizeAliases(p.InstrumentAliases, strings.ToLower)

	cleaned := p.BWBIDs[:0]
	for _, id := range p.BWBIDs {
		if trimmed := strings.ToUpper(strings.TrimSpace(id)); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	p.BWBIDs = cleaned

	if p.Topic.Slug != "" {
		p.Topic.Slug = strings.ToLower(strings.TrimSpace(p.Topic.Slug))
	}
}

func normalizeAliases(aliases map[string]string, fold func(string) string) map[string]string {
	normalized := make(map[string]string, len(aliases))
	for alias, target := range aliases {
		alias = strings.TrimSpace(alias)
		target = strings.ToUpper(strings.TrimSpace(target))
		if alias == "" || target == "" {
			continue
		}
		normalized[fold(alias)] = target
	}
	return normalized
}

// TextFieldsFor returns the designated text properties for a node type,
// falling back to sensible defaults when the profile does not name any.
func (p *Profile) TextFieldsFor(nodeType string) []string {
	if fields, ok := p.TextFields[nodeType]; ok && len(fields) > 0 {
		return fields
	}
	switch nodeType {
	case "instrument", "instrument_article":
		return []string{"text"}
	case "judgment":
		return []string{"text", "raw_xml"}
	case "publication", "procedure":
		return []string{"title", "onderwerp"}
	}
	return nil
}

// Keywords returns every filter keyword, lower-cased.
func (p *Profile) Keywords() []string {
	merged := make([]string, 0, len(p.Filters.TitleContains)+len(p.Filters.DossierKeywords))
	for _, kw := range append(append([]string{}, p.Filters.TitleContains...), p.Filters.DossierKeywords...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			merged = append(merged, kw)
		}
	}
	return merged
}
