// Package cite turns free-form legal text into typed, confidence-scored
// citation targets. Matching is literal and alias-driven: a fragment resolves
// only when it equals a configured alias or a recognized register identifier,
// optionally preceded by an article marker. No fuzzy matching, no NLP.
package cite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lawgraph/pkg/graph"
)

// Specificity discriminates how precise a resolved citation is. It feeds
// confidence scoring in the scanner.
type Specificity int

const (
	// SpecificityInstrument is a bare instrument mention ("zie Sr").
	SpecificityInstrument Specificity = iota
	// SpecificityArticle is an instrument plus an explicit article number
	// ("art. 35 Sr").
	SpecificityArticle
	// SpecificityRange marks article numbers implied by a range citation
	// ("artikelen 12 tot en met 15"), which are less certain than numbers
	// spelled out literally.
	SpecificityRange
)

// AliasTable maps citation shorthand to instrument identifiers. It is built
// once per pipeline run from the domain profile and treated as immutable.
type AliasTable struct {
	// Codes maps short codes to instrument ids ("Sr" -> "BWBR0001854").
	Codes map[string]string
	// Names maps full instrument names to instrument ids
	// ("wetboek van strafrecht" -> "BWBR0001854").
	Names map[string]string
}

// Resolution is one candidate target for a resolved fragment.
type Resolution struct {
	TargetKey     string
	InstrumentID  string
	ArticleNumber string
	Specificity   Specificity
}

// Resolver resolves literal text fragments to instrument or article keys.
// It is pure: same fragment, same table, same result.
type Resolver struct {
	codes map[string]string
	names map[string]string
}

var (
	articleMarkerRe = regexp.MustCompile(`(?i)^(?:de\s+|het\s+)?(?:artikel(?:en)?|art\.?)\s+(.+)$`)
	articleNumberRe = regexp.MustCompile(`(?i)^\d+[a-z]{0,4}(?::\d+[a-z]{0,4})?$`)
	bwbIDRe         = regexp.MustCompile(`(?i)^BWBR0\d{6}$`)
	celexRe         = regexp.MustCompile(`(?i)^(?:CELEX:\s*)?(3\d{4}[A-Z]\d{4}(?:\(\d{2}\))?)$`)
	directiveRe     = regexp.MustCompile(`(?i)^richtlijn\s+(\d{4})/(\d+)(?:/(?:EU|EG))?$`)
	regulationRe    = regexp.MustCompile(`(?i)^verordening\s+(\d{4})/(\d+)(?:/(?:EU|EG))?$`)
	rangeSplitRe    = regexp.MustCompile(`(?i)\s*(?:tot\s+en\s+met|tot|en|,|&|-)\s*`)
)

// NewResolver builds a Resolver over the given alias table. Alias lookup is
// case-insensitive; the table values are canonicalized to upper case.
func NewResolver(table AliasTable) *Resolver {
	codes := make(map[string]string, len(table.Codes))
	for alias, target := range table.Codes {
		alias = strings.ToUpper(strings.TrimSpace(alias))
		target = strings.ToUpper(strings.TrimSpace(target))
		if alias != "" && target != "" {
			codes[alias] = target
		}
	}
	names := make(map[string]string, len(table.Names))
	for alias, target := range table.Names {
		alias = strings.ToLower(strings.TrimSpace(alias))
		target = strings.ToUpper(strings.TrimSpace(target))
		if alias != "" && target != "" {
			names[alias] = target
		}
	}
	return &Resolver{codes: codes, names: names}
}

// Resolve maps a candidate fragment to zero or more citation targets. A
// fragment that matches nothing yields an empty slice; absence of a match is
// a normal outcome, never an error.
func (r *Resolver) Resolve(fragment string) []Resolution {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil
	}

	if m := articleMarkerRe.FindStringSubmatch(fragment); m != nil {
		if resolutions := r.resolveArticleFragment(m[1]); len(resolutions) > 0 {
			return resolutions
		}
		return nil
	}

	if instrumentID, ok := r.resolveInstrumentToken(fragment); ok {
		return []Resolution{{
			TargetKey:    instrumentID,
			InstrumentID: instrumentID,
			Specificity:  SpecificityInstrument,
		}}
	}
	return nil
}

// resolveArticleFragment handles the remainder after an article marker:
// a number block (possibly an enumeration or range) followed by an
// instrument token.
func (r *Resolver) resolveArticleFragment(rest string) []Resolution {
	numbers, instrumentToken := splitNumbersBlock(rest)
	if len(numbers) == 0 || instrumentToken == "" {
		return nil
	}
	instrumentID, ok := r.resolveInstrumentToken(instrumentToken)
	if !ok {
		return nil
	}

	resolutions := make([]Resolution, 0, len(numbers))
	seen := make(map[string]bool, len(numbers))
	for _, number := range numbers {
		canonical := graph.NormalizeArticleNumber(number.value)
		if canonical == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true
		specificity := SpecificityArticle
		if number.fromRange {
			specificity = SpecificityRange
		}
		resolutions = append(resolutions, Resolution{
			TargetKey:     instrumentID + ":" + canonical,
			InstrumentID:  instrumentID,
			ArticleNumber: canonical,
			Specificity:   specificity,
		})
	}
	return resolutions
}

// resolveInstrumentToken resolves one instrument token: a short-code alias,
// a full-name alias, or a recognized register identifier.
func (r *Resolver) resolveInstrumentToken(token string) (string, bool) {
	token = strings.TrimSpace(strings.TrimSuffix(token, "."))
	token = strings.TrimPrefix(strings.TrimPrefix(token, "van de "), "van het ")
	token = strings.TrimPrefix(token, "van ")
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	if target, ok := r.codes[strings.ToUpper(token)]; ok {
		return target, true
	}
	if target, ok := r.names[strings.ToLower(token)]; ok {
		return target, true
	}
	if bwbIDRe.MatchString(token) {
		return strings.ToUpper(token), true
	}
	if m := celexRe.FindStringSubmatch(token); m != nil {
		return strings.ToUpper(m[1]), true
	}
	if m := directiveRe.FindStringSubmatch(token); m != nil {
		return formatCelex("L", m[1], m[2]), true
	}
	if m := regulationRe.FindStringSubmatch(token); m != nil {
		return formatCelex("R", m[1], m[2]), true
	}
	return "", false
}

type articleNumber struct {
	value     string
	fromRange bool
}

// splitNumbersBlock splits "35 en 36 Sr" into its article numbers and the
// trailing instrument token. Ranges joined by "tot" or "tot en met" are
// expanded to the intermediate numbers, which are tagged as range-derived.
func splitNumbersBlock(rest string) ([]articleNumber, string) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return nil, ""
	}

	// Walk from the left while fields still look like a number enumeration;
	// everything after it is the instrument token.
	split := 0
	for split < len(fields) {
		field := strings.Trim(fields[split], ",&-")
		if field == "" || articleNumberRe.MatchString(field) || isRangeConnector(field) {
			split++
			continue
		}
		break
	}
	if split == 0 || split >= len(fields) {
		return nil, ""
	}

	block := strings.Join(fields[:split], " ")
	instrumentToken := strings.Join(fields[split:], " ")

	parts := rangeSplitRe.Split(block, -1)
	numbers := make([]articleNumber, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" && articleNumberRe.MatchString(part) {
			numbers = append(numbers, articleNumber{value: part})
		}
	}
	numbers = append(numbers, expandRanges(block)...)
	return numbers, instrumentToken
}

func isRangeConnector(field string) bool {
	switch strings.ToLower(field) {
	case "tot", "en", "met", ",", "&", "-":
		return true
	}
	return false
}

var rangePairRe = regexp.MustCompile(`(?i)(\d+)[a-z]{0,4}\s+tot(?:\s+en\s+met)?\s+(\d+)[a-z]{0,4}`)

// expandRanges yields the intermediate article numbers implied by a
// "12 tot en met 15" style range.
func expandRanges(block string) []articleNumber {
	var numbers []articleNumber
	for _, m := range rangePairRe.FindAllStringSubmatch(block, -1) {
		lo, err1 := strconv.Atoi(m[1])
		hi, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		for n := lo + 1; n < hi; n++ {
			numbers = append(numbers, articleNumber{value: strconv.Itoa(n), fromRange: true})
		}
	}
	return numbers
}

func formatCelex(sector string, year, number string) string {
	padded := number
	for len(padded) < 4 {
		padded = "0" + padded
	}
	return fmt.Sprintf("3%s%s%s", year, sector, padded)
}
