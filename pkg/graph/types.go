package graph

import (
	"encoding/json"
	"strings"
	"time"
)

// NodeType identifies the collection a node belongs to. Keys are unique
// within one node type, not across the whole graph.
type NodeType string

const (
	NodeInstrument        NodeType = "instrument"
	NodeInstrumentArticle NodeType = "instrument_article"
	NodeProcedure         NodeType = "procedure"
	NodePublication       NodeType = "publication"
	NodeJudgment          NodeType = "judgment"
	NodeTopic             NodeType = "topic"
)

// NodeTypes lists every node type in a stable order.
var NodeTypes = []NodeType{
	NodeInstrument,
	NodeInstrumentArticle,
	NodeProcedure,
	NodePublication,
	NodeJudgment,
	NodeTopic,
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Relation is the type of a directed edge between two nodes.
type Relation string

const (
	RelPartOfInstrument Relation = "PART_OF_INSTRUMENT"
	RelPartOfProcedure  Relation = "PART_OF_PROCEDURE"
	RelRelatedTopic     Relation = "RELATED_TOPIC"
	RelMentionsArticle  Relation = "MENTIONS_ARTICLE"
)

// Partition separates structural edges from inferred ones. An edge's
// partition is fixed at creation time.
type Partition string

const (
	PartitionStrict   Partition = "strict"
	PartitionSemantic Partition = "semantic"
)

// Other returns the opposite partition.
func (p Partition) Other() Partition {
	if p == PartitionStrict {
		return PartitionSemantic
	}
	return PartitionStrict
}

// Node is a typed entity in the legal graph. Key is a pure function of the
// node's identity properties (see DeriveNodeKey); DisplayName is recomputed
// from the current properties on every write.
type Node struct {
	Type        NodeType       `json:"type"`
	Key         string         `json:"key"`
	Properties  map[string]any `json:"properties"`
	Labels      []string       `json:"labels,omitempty"`
	DisplayName string         `json:"display_name"`
}

// StringProp returns the named property as a trimmed string, or "" when it
// is absent or not a string.
func (n *Node) StringProp(name string) string {
	return stringProp(n.Properties, name)
}

// Edge is a directed, typed relationship between two node keys. At most one
// edge exists per (from, to, relation) triple per partition.
type Edge struct {
	Key        string    `json:"key"`
	FromKey    string    `json:"from_key"`
	ToKey      string    `json:"to_key"`
	Relation   Relation  `json:"relation"`
	Partition  Partition `json:"partition"`
	Confidence float64   `json:"confidence"`
	Meta       EdgeMeta  `json:"meta"`
}

// EdgeMeta carries provenance for an edge: where the relationship was
// detected and, for semantic edges, the matched text. Occurrences counts how
// many times the same triple has been detected.
type EdgeMeta struct {
	Source      string `json:"source,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
	RawMatch    string `json:"raw_match,omitempty"`
	Occurrences int    `json:"occurrences"`
}

// RawSource is a write-once audit record of an ingested payload. The payload
// is persisted as a JSON document; mappers read individual fields out of it
// without re-decoding the whole value.
type RawSource struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Kind       string          `json:"kind"`
	ExternalID string          `json:"external_id"`
	Payload    json.RawMessage `json:"payload"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// NewRawSource builds a RawSource from an already-decoded payload mapping,
// as handed over by the retrieval collaborators.
func NewRawSource(source, kind, externalID string, payload map[string]any) (RawSource, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return RawSource{}, err
	}
	return RawSource{
		Source:     source,
		Kind:       kind,
		ExternalID: externalID,
		Payload:    encoded,
		FetchedAt:  time.Now().UTC().Truncate(time.Second),
	}, nil
}

func stringProp(props map[string]any, name string) string {
	if props == nil {
		return ""
	}
	value, ok := props[name]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
