package graph

import "strings"

// Node keys join their identity parts with a colon; edge keys join node keys
// and the relation with a pipe. Both stay readable on purpose: keys double as
// external identifiers and debugging anchors, so no hashing.
const (
	nodeKeySeparator = ":"
	edgeKeySeparator = "|"
)

// DeriveNodeKey computes the stable key for a node of the given type from its
// identity properties. The key is a pure function of a fixed subset of the
// properties: repeated derivations over the same logical entity always return
// the same key. A missing or empty identity field yields an
// InvalidIdentityError.
func DeriveNodeKey(nodeType NodeType, props map[string]any) (string, error) {
	switch nodeType {
	case NodeInstrument:
		if bwbID := normalizeIdentifier(stringProp(props, "bwb_id")); bwbID != "" {
			return bwbID, nil
		}
		if celex := normalizeIdentifier(stringProp(props, "celex")); celex != "" {
			return celex, nil
		}
		return "", &InvalidIdentityError{Type: nodeType, Field: "bwb_id|celex"}

	case NodeInstrumentArticle:
		bwbID := normalizeIdentifier(stringProp(props, "bwb_id"))
		if bwbID == "" {
			return "", &InvalidIdentityError{Type: nodeType, Field: "bwb_id"}
		}
		article := NormalizeArticleNumber(stringProp(props, "article_number"))
		if article == "" {
			return "", &InvalidIdentityError{Type: nodeType, Field: "article_number"}
		}
		return bwbID + nodeKeySeparator + article, nil

	case NodeProcedure:
		id := keyPart(stringProp(props, "external_id"))
		if id == "" {
			return "", &InvalidIdentityError{Type: nodeType, Field: "external_id"}
		}
		return id, nil

	case NodePublication:
		id := keyPart(stringProp(props, "external_id"))
		if id == "" {
			return "", &InvalidIdentityError{Type: nodeType, Field: "external_id"}
		}
		return id, nil

	case NodeJudgment:
		ecli := normalizeIdentifier(stringProp(props, "ecli"))
		if ecli == "" {
			return "", &InvalidIdentityError{Type: nodeType, Field: "ecli"}
		}
		return ecli, nil

	case NodeTopic:
		if slug := strings.ToLower(keyPart(stringProp(props, "slug"))); slug != "" {
			return slug, nil
		}
		return "", &InvalidIdentityError{Type: nodeType, Field: "slug"}
	}

	return "", &InvalidIdentityError{Type: nodeType, Field: "type"}
}

// DeriveEdgeKey computes the stable key for the (from, to, relation) triple.
// Plain concatenation is collision-free because node keys never contain the
// separator.
func DeriveEdgeKey(fromKey, toKey string, relation Relation) string {
	return fromKey + edgeKeySeparator + toKey + edgeKeySeparator + string(relation)
}

// NormalizeArticleNumber canonicalizes an article number for key derivation:
// trimmed, lower-cased, inner whitespace removed ("35 a" and "35a" are the
// same article in the source material).
func NormalizeArticleNumber(value string) string {
	return strings.ToLower(removeSpace(keyPart(value)))
}

// normalizeIdentifier canonicalizes registry identifiers that are
// case-insensitive in the source domain (BWB register ids, CELEX numbers,
// ECLIs): trimmed, upper-cased, inner whitespace removed.
func normalizeIdentifier(value string) string {
	return strings.ToUpper(removeSpace(keyPart(value)))
}

// keyPart trims a raw identity value and strips the edge separator so
// concatenated keys stay unambiguous.
func keyPart(value string) string {
	return strings.TrimSpace(strings.ReplaceAll(value, edgeKeySeparator, ""))
}

func removeSpace(value string) string {
	return strings.Join(strings.Fields(value), "")
}
