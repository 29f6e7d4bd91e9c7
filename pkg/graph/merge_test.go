package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeProperties_ScalarLastWriteWins(t *testing.T) {
	merged := MergeProperties(
		map[string]any{"title": "oud", "bwb_id": "BWBR0001854"},
		map[string]any{"title": "nieuw"},
	)
	assert.Equal(t, "nieuw", merged["title"])
	assert.Equal(t, "BWBR0001854", merged["bwb_id"])
}

func TestMergeProperties_ListUnionKeepsFirstSeenOrder(t *testing.T) {
	merged := MergeProperties(
		map[string]any{"tags": []string{"a", "b"}},
		map[string]any{"tags": []string{"b", "c", "a"}},
	)
	assert.Equal(t, []string{"a", "b", "c"}, merged["tags"])
}

func TestMergeProperties_AnyListUnion(t *testing.T) {
	merged := MergeProperties(
		map[string]any{"tags": []any{"a", "b"}},
		map[string]any{"tags": []any{"b", "c"}},
	)
	assert.Equal(t, []any{"a", "b", "c"}, merged["tags"])
}

func TestMergeProperties_DoesNotMutateInputs(t *testing.T) {
	existing := map[string]any{"title": "oud"}
	incoming := map[string]any{"title": "nieuw"}
	_ = MergeProperties(existing, incoming)
	assert.Equal(t, "oud", existing["title"])
}

func TestMergeProperties_Idempotent(t *testing.T) {
	incoming := map[string]any{"title": "t", "tags": []string{"x", "y"}}
	once := MergeProperties(nil, incoming)
	twice := MergeProperties(once, incoming)
	assert.Equal(t, once, twice)
}

func TestMergeEdge_ConfidenceNeverDecreases(t *testing.T) {
	edge := Edge{Confidence: 0.9, Meta: EdgeMeta{Occurrences: 1}}
	MergeEdge(&edge, Edge{Confidence: 0.5})
	assert.Equal(t, 0.9, edge.Confidence)

	MergeEdge(&edge, Edge{Confidence: 0.95})
	assert.Equal(t, 0.95, edge.Confidence)
}

func TestMergeEdge_CountsOccurrences(t *testing.T) {
	edge := Edge{Confidence: 0.9, Meta: EdgeMeta{Occurrences: 1}}
	MergeEdge(&edge, Edge{Confidence: 0.9, Meta: EdgeMeta{Occurrences: 1}})
	assert.Equal(t, 2, edge.Meta.Occurrences)

	// A merge without an explicit count still counts as one detection.
	MergeEdge(&edge, Edge{Confidence: 0.9})
	assert.Equal(t, 3, edge.Meta.Occurrences)
}

func TestMergeEdge_LatestProvenanceWins(t *testing.T) {
	edge := Edge{Meta: EdgeMeta{Snippet: "eerste", RawMatch: "art. 35 Sr", Occurrences: 1}}
	MergeEdge(&edge, Edge{Meta: EdgeMeta{Snippet: "tweede"}})
	assert.Equal(t, "tweede", edge.Meta.Snippet)
	assert.Equal(t, "art. 35 Sr", edge.Meta.RawMatch)
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		name     string
		nodeType NodeType
		props    map[string]any
		want     string
	}{
		{"article", NodeInstrumentArticle, map[string]any{"article_number": "35"}, "Art. 35"},
		{"instrument bwb", NodeInstrument, map[string]any{"bwb_id": "BWBR0001854"}, "BWB BWBR0001854"},
		{"instrument titled", NodeInstrument, map[string]any{"bwb_id": "BWBR0001854", "title": "Wetboek van Strafrecht"}, "Wetboek van Strafrecht (BWBR0001854)"},
		{"instrument eu", NodeInstrument, map[string]any{"celex": "32012L0029"}, "EU 32012L0029"},
		{"judgment", NodeJudgment, map[string]any{"ecli": "ECLI:NL:HR:2020:123"}, "ECLI:NL:HR:2020:123"},
		{"judgment empty", NodeJudgment, map[string]any{}, "Uitspraak"},
		{"publication", NodePublication, map[string]any{}, "Publicatie"},
		{"procedure", NodeProcedure, map[string]any{"external_id": "2023Z1"}, "Procedure 2023Z1"},
		{"topic", NodeTopic, map[string]any{"label": "Strafrecht"}, "Strafrecht"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DisplayName(tc.nodeType, tc.props))
		})
	}
}

func TestNewRawSource_EncodesPayload(t *testing.T) {
	record, err := NewRawSource("bwb", "bwb_xml", "BWBR0001854", map[string]any{
		"bwb_id": "BWBR0001854",
	})
	require.NoError(t, err)
	assert.Equal(t, "bwb", record.Source)
	assert.JSONEq(t, `{"bwb_id":"BWBR0001854"}`, string(record.Payload))
	assert.False(t, record.FetchedAt.IsZero())
}
