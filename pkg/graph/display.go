package graph

import "fmt"

// DisplayName derives the human-readable name for a node from its current
// properties. Stores recompute it after every property merge so it never
// goes stale.
func DisplayName(nodeType NodeType, props map[string]any) string {
	switch nodeType {
	case NodeInstrument:
		return instrumentDisplayName(props)
	case NodeInstrumentArticle:
		return articleDisplayName(props)
	case NodeJudgment:
		return judgmentDisplayName(props)
	case NodePublication:
		return publicationDisplayName(props)
	case NodeProcedure:
		return procedureDisplayName(props)
	case NodeTopic:
		return topicDisplayName(props)
	}
	if name := firstProp(props, "name", "label", "title"); name != "" {
		return name
	}
	return string(nodeType)
}

func firstProp(props map[string]any, names ...string) string {
	for _, name := range names {
		if value := stringProp(props, name); value != "" {
			return value
		}
	}
	return ""
}

func instrumentDisplayName(props map[string]any) string {
	title := firstProp(props, "title", "official_title")
	bwbID := stringProp(props, "bwb_id")
	celex := stringProp(props, "celex")

	if title != "" {
		if suffix := firstNonEmpty(bwbID, celex); suffix != "" {
			return fmt.Sprintf("%s (%s)", title, suffix)
		}
		return title
	}
	if bwbID != "" {
		return "BWB " + bwbID
	}
	if celex != "" {
		return "EU " + celex
	}
	return "Instrument"
}

func articleDisplayName(props map[string]any) string {
	if number := stringProp(props, "article_number"); number != "" {
		return "Art. " + number
	}
	return "Artikel"
}

func judgmentDisplayName(props map[string]any) string {
	ecli := stringProp(props, "ecli")
	title := firstProp(props, "title", "case_title", "zaaknaam")
	caseNumber := firstProp(props, "zaaknummer", "case_number")

	switch {
	case ecli != "" && title != "":
		return fmt.Sprintf("%s (%s)", title, ecli)
	case ecli != "":
		return ecli
	case caseNumber != "":
		return "Uitspraak " + caseNumber
	}
	return "Uitspraak"
}

func publicationDisplayName(props map[string]any) string {
	title := stringProp(props, "title")
	identifier := firstProp(props, "kamerstuknummer", "document_number", "external_id")

	if title != "" && identifier != "" {
		return fmt.Sprintf("%s (%s)", title, identifier)
	}
	if title != "" {
		return title
	}
	return "Publicatie"
}

func procedureDisplayName(props map[string]any) string {
	if title := stringProp(props, "title"); title != "" {
		return title
	}
	if identifier := firstProp(props, "procedure_id", "external_id"); identifier != "" {
		return "Procedure " + identifier
	}
	return "Procedure"
}

func topicDisplayName(props map[string]any) string {
	if name := firstProp(props, "label", "name", "slug", "code"); name != "" {
		return name
	}
	return "Topic"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
