package cite

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Default confidence constants. These are configurable policy values, not
// hardwired business rules: an article-level citation is worth 0.9, a bare
// instrument mention 0.5, and an article implied by a range citation 0.8.
const (
	DefaultArticleConfidence    = 0.9
	DefaultInstrumentConfidence = 0.5
	DefaultRangeConfidence      = 0.8
	DefaultSnippetWindow        = 40
)

// Options tune the scanner's confidence scoring and snippet capture.
type Options struct {
	ArticleConfidence    float64
	InstrumentConfidence float64
	RangeConfidence      float64
	SnippetWindow        int
}

func (o Options) withDefaults() Options {
	if o.ArticleConfidence <= 0 {
		o.ArticleConfidence = DefaultArticleConfidence
	}
	if o.InstrumentConfidence <= 0 {
		o.InstrumentConfidence = DefaultInstrumentConfidence
	}
	if o.RangeConfidence <= 0 {
		o.RangeConfidence = DefaultRangeConfidence
	}
	if o.SnippetWindow <= 0 {
		o.SnippetWindow = DefaultSnippetWindow
	}
	return o
}

// Detection is one resolved citation within a scanned text.
type Detection struct {
	TargetKey     string
	InstrumentID  string
	ArticleNumber string
	Specificity   Specificity
	Confidence    float64
	RawMatch      string
	Snippet       string
	// Occurrences counts how often the same target was cited within the
	// scanned text.
	Occurrences int

	firstPos int
}

// Scanner finds citation-like fragments in text and resolves them against an
// alias table. Scanning is pure and deterministic: the same text and table
// always produce the same detections in the same order.
type Scanner struct {
	resolver *Resolver
	opts     Options

	articleRe    *regexp.Regexp
	instrumentRe *regexp.Regexp
}

const numberBlockPattern = `\d+[a-z]{0,4}(?::\d+[a-z]{0,4})?` +
	`(?:\s*(?:tot\s+en\s+met|tot|en|,|&|-)\s*\d+[a-z]{0,4}(?::\d+[a-z]{0,4})?)*`

var identifierAlternatives = []string{
	`BWBR0\d{6}`,
	`CELEX:\s*3\d{4}[A-Z]\d{4}(?:\(\d{2}\))?`,
	`Richtlijn\s+\d{4}/\d+(?:/EU|/EG)?`,
	`Verordening\s+\d{4}/\d+(?:/EU|/EG)?`,
}

// NewScanner builds a Scanner over the given alias table.
func NewScanner(table AliasTable, opts Options) *Scanner {
	instrumentAlt := instrumentAlternation(table)
	return &Scanner{
		resolver: NewResolver(table),
		opts:     opts.withDefaults(),
		articleRe: regexp.MustCompile(fmt.Sprintf(
			`(?i)\b(?:de\s+|het\s+)?(?:artikelen|artikel|art\.?)\s+(?:%s)\s+(?:van\s+(?:de\s+|het\s+)?)?(?:%s)\b`,
			numberBlockPattern, instrumentAlt)),
		instrumentRe: regexp.MustCompile(fmt.Sprintf(`(?i)\b(?:%s)\b`, instrumentAlt)),
	}
}

// instrumentAlternation builds the alternation of every way an instrument
// can be written: configured aliases first (longest first, so multi-word
// names win over their prefixes), then the fixed identifier patterns.
func instrumentAlternation(table AliasTable) string {
	aliases := make([]string, 0, len(table.Codes)+len(table.Names))
	for alias := range table.Codes {
		if alias = strings.TrimSpace(alias); alias != "" {
			aliases = append(aliases, alias)
		}
	}
	for alias := range table.Names {
		if alias = strings.TrimSpace(alias); alias != "" {
			aliases = append(aliases, alias)
		}
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})

	alternatives := make([]string, 0, len(aliases)+len(identifierAlternatives))
	for _, alias := range aliases {
		alternatives = append(alternatives, regexp.QuoteMeta(alias))
	}
	alternatives = append(alternatives, identifierAlternatives...)
	return strings.Join(alternatives, "|")
}

// Scan partitions text into candidate citation fragments, resolves each one,
// and returns the deduplicated detections. Detections sharing a target key
// are folded into one, keeping the maximum confidence and counting
// occurrences. Malformed text yields zero detections, never an error.
func (s *Scanner) Scan(text string) []Detection {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	detections := make(map[string]*Detection)
	var claimed [][2]int

	// Pass 1: article-level citations. Their spans are claimed so the
	// instrument pass does not double-report the alias inside them.
	for _, span := range s.articleRe.FindAllStringIndex(text, -1) {
		fragment := text[span[0]:span[1]]
		resolutions := s.resolver.Resolve(fragment)
		if len(resolutions) == 0 {
			continue
		}
		claimed = append(claimed, [2]int{span[0], span[1]})
		for _, resolution := range resolutions {
			s.record(detections, resolution, fragment, text, span)
		}
	}

	// Pass 2: bare instrument mentions outside claimed spans.
	for _, span := range s.instrumentRe.FindAllStringIndex(text, -1) {
		if overlapsAny(span, claimed) {
			continue
		}
		fragment := text[span[0]:span[1]]
		for _, resolution := range s.resolver.Resolve(fragment) {
			s.record(detections, resolution, fragment, text, span)
		}
	}

	ordered := make([]Detection, 0, len(detections))
	for _, detection := range detections {
		ordered = append(ordered, *detection)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].firstPos != ordered[j].firstPos {
			return ordered[i].firstPos < ordered[j].firstPos
		}
		return ordered[i].TargetKey < ordered[j].TargetKey
	})
	return ordered
}

func (s *Scanner) record(detections map[string]*Detection, resolution Resolution, fragment, text string, span []int) {
	confidence := s.confidenceFor(resolution.Specificity)

	existing, ok := detections[resolution.TargetKey]
	if !ok {
		detections[resolution.TargetKey] = &Detection{
			TargetKey:     resolution.TargetKey,
			InstrumentID:  resolution.InstrumentID,
			ArticleNumber: resolution.ArticleNumber,
			Specificity:   resolution.Specificity,
			Confidence:    confidence,
			RawMatch:      fragment,
			Snippet:       s.snippet(text, span),
			Occurrences:   1,
			firstPos:      span[0],
		}
		return
	}

	existing.Occurrences++
	if confidence > existing.Confidence {
		existing.Confidence = confidence
		existing.Specificity = resolution.Specificity
		existing.RawMatch = fragment
		existing.Snippet = s.snippet(text, span)
	}
}

func (s *Scanner) confidenceFor(specificity Specificity) float64 {
	switch specificity {
	case SpecificityArticle:
		return s.opts.ArticleConfidence
	case SpecificityRange:
		return s.opts.RangeConfidence
	}
	return s.opts.InstrumentConfidence
}

// snippet returns a bounded window of text around the match, rune-safe.
func (s *Scanner) snippet(text string, span []int) string {
	runes := []rune(text)
	start := len([]rune(text[:span[0]]))
	end := len([]rune(text[:span[1]]))

	begin := start - s.opts.SnippetWindow
	if begin < 0 {
		begin = 0
	}
	finish := end + s.opts.SnippetWindow
	if finish > len(runes) {
		finish = len(runes)
	}
	return strings.TrimSpace(string(runes[begin:finish]))
}

func overlapsAny(span []int, claimed [][2]int) bool {
	for _, c := range claimed {
		if span[0] < c[1] && span[1] > c[0] {
			return true
		}
	}
	return false
}
