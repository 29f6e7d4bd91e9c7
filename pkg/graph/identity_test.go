package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveNodeKey_InstrumentArticle(t *testing.T) {
	key, err := DeriveNodeKey(NodeInstrumentArticle, map[string]any{
		"bwb_id":         "BWBR0001854",
		"article_number": "35",
	})
	require.NoError(t, err)
	assert.Equal(t, "BWBR0001854:35", key)
}

func TestDeriveNodeKey_NormalizesCase(t *testing.T) {
	key, err := DeriveNodeKey(NodeInstrumentArticle, map[string]any{
		"bwb_id":         " bwbr0001854 ",
		"article_number": "35 A",
	})
	require.NoError(t, err)
	assert.Equal(t, "BWBR0001854:35a", key)
}

func TestDeriveNodeKey_Deterministic(t *testing.T) {
	first, err := DeriveNodeKey(NodeInstrument, map[string]any{
		"bwb_id": "BWBR0001854",
		"title":  "Wetboek van Strafrecht",
	})
	require.NoError(t, err)

	// Non-identity properties do not influence the key.
	second, err := DeriveNodeKey(NodeInstrument, map[string]any{
		"bwb_id": "BWBR0001854",
		"title":  "a completely different title",
		"extra":  42,
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDeriveNodeKey_InstrumentFallsBackToCelex(t *testing.T) {
	key, err := DeriveNodeKey(NodeInstrument, map[string]any{"celex": "32012l0029"})
	require.NoError(t, err)
	assert.Equal(t, "32012L0029", key)
}

func TestDeriveNodeKey_PerType(t *testing.T) {
	cases := []struct {
		name     string
		nodeType NodeType
		props    map[string]any
		want     string
	}{
		{"procedure", NodeProcedure, map[string]any{"external_id": "2023Z12345"}, "2023Z12345"},
		{"publication", NodePublication, map[string]any{"external_id": "doc-1"}, "doc-1"},
		{"judgment", NodeJudgment, map[string]any{"ecli": "ecli:nl:hr:2020:123"}, "ECLI:NL:HR:2020:123"},
		{"topic", NodeTopic, map[string]any{"slug": "Strafrecht"}, "strafrecht"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := DeriveNodeKey(tc.nodeType, tc.props)
			require.NoError(t, err)
			assert.Equal(t, tc.want, key)
		})
	}
}

func TestDeriveNodeKey_MissingIdentity(t *testing.T) {
	cases := []struct {
		name     string
		nodeType NodeType
		props    map[string]any
	}{
		{"instrument without ids", NodeInstrument, map[string]any{"title": "naamloos"}},
		{"article without number", NodeInstrumentArticle, map[string]any{"bwb_id": "BWBR0001854"}},
		{"article with blank number", NodeInstrumentArticle, map[string]any{"bwb_id": "BWBR0001854", "article_number": "  "}},
		{"judgment without ecli", NodeJudgment, map[string]any{}},
		{"nil properties", NodeProcedure, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DeriveNodeKey(tc.nodeType, tc.props)
			require.Error(t, err)
			assert.True(t, IsInvalidIdentity(err))
		})
	}
}

func TestDeriveNodeKey_StripsEdgeSeparator(t *testing.T) {
	key, err := DeriveNodeKey(NodeProcedure, map[string]any{"external_id": "zaak|1"})
	require.NoError(t, err)
	assert.NotContains(t, key, "|")
}

func TestDeriveEdgeKey(t *testing.T) {
	key := DeriveEdgeKey("BWBR0001854:35", "BWBR0001854", RelPartOfInstrument)
	assert.Equal(t, "BWBR0001854:35|BWBR0001854|PART_OF_INSTRUMENT", key)
}

func TestNormalizeArticleNumber(t *testing.T) {
	assert.Equal(t, "35", NormalizeArticleNumber(" 35 "))
	assert.Equal(t, "35a", NormalizeArticleNumber("35 A"))
	assert.Equal(t, "6:162", NormalizeArticleNumber("6:162"))
	assert.Equal(t, "", NormalizeArticleNumber("   "))
}
