package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawgraph/pkg/graph"
)

const sampleBWBXML = `<wetgeving>
  <citeertitel>Wetboek van Strafrecht</citeertitel>
  <artikel>
    <kop><label>Artikel</label><nr>35</nr></kop>
    <lid><lidnr>1</lidnr><al>De eerste regel van   het artikel.</al></lid>
    <lid><lidnr>2</lidnr><al>De tweede regel.</al></lid>
  </artikel>
  <artikel label="Artikel 36">
    <al>Een artikel zonder leden.</al>
  </artikel>
</wetgeving>`

func bwbRecord(t *testing.T, payload map[string]any) graph.RawSource {
	t.Helper()
	record, err := graph.NewRawSource("bwb", "bwb_xml", "BWBR0001854", payload)
	require.NoError(t, err)
	return record
}

func TestBWBMapper_MapNodes(t *testing.T) {
	mapper := NewBWBMapper()
	record := bwbRecord(t, map[string]any{"bwb_id": "BWBR0001854", "xml": sampleBWBXML})

	nodes, err := mapper.MapNodes(record)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	instrument := nodes[0]
	assert.Equal(t, graph.NodeInstrument, instrument.Type)
	assert.Equal(t, "BWBR0001854", instrument.Properties["bwb_id"])
	assert.Equal(t, "Wetboek van Strafrecht", instrument.Properties["title"])
	assert.Equal(t, []string{"BWB"}, instrument.Labels)

	first := nodes[1]
	assert.Equal(t, graph.NodeInstrumentArticle, first.Type)
	assert.Equal(t, "35", first.Properties["article_number"])
	assert.Equal(t, "1. De eerste regel van het artikel.\n2. De tweede regel.", first.Properties["text"])

	// The second article has no <kop>, its number comes from the label
	// attribute, its text from bare <al> runs.
	second := nodes[2]
	assert.Equal(t, "36", second.Properties["article_number"])
	assert.Equal(t, "Een artikel zonder leden.", second.Properties["text"])
}

func TestBWBMapper_MapNodesExternalIDFallback(t *testing.T) {
	mapper := NewBWBMapper()
	record := bwbRecord(t, map[string]any{"xml": sampleBWBXML})

	nodes, err := mapper.MapNodes(record)
	require.NoError(t, err)
	assert.Equal(t, "BWBR0001854", nodes[0].Properties["bwb_id"])
}

func TestBWBMapper_MapNodesMissingXML(t *testing.T) {
	mapper := NewBWBMapper()
	record := bwbRecord(t, map[string]any{"bwb_id": "BWBR0001854"})

	_, err := mapper.MapNodes(record)
	assert.Error(t, err)
}

func TestBWBMapper_MapNodesNoArticles(t *testing.T) {
	mapper := NewBWBMapper()
	record := bwbRecord(t, map[string]any{
		"bwb_id": "BWBR0001854",
		"xml":    "<wetgeving><citeertitel>Lege regeling</citeertitel></wetgeving>",
	})

	_, err := mapper.MapNodes(record)
	assert.Error(t, err)
}

func TestBWBMapper_MapNodesFallbackTitle(t *testing.T) {
	mapper := NewBWBMapper()
	record := bwbRecord(t, map[string]any{
		"bwb_id": "BWBR0001854",
		"xml":    "<wetgeving><artikel><kop><nr>1</nr></kop><al>Tekst.</al></artikel></wetgeving>",
	})

	nodes, err := mapper.MapNodes(record)
	require.NoError(t, err)
	assert.Equal(t, "BWB-regeling BWBR0001854", nodes[0].Properties["title"])
}

func TestBWBMapper_MapEdges(t *testing.T) {
	mapper := NewBWBMapper()
	record := bwbRecord(t, map[string]any{"bwb_id": "BWBR0001854", "xml": sampleBWBXML})

	nodes, err := mapper.MapNodes(record)
	require.NoError(t, err)

	edges, err := mapper.MapEdges(record, nodes)
	require.NoError(t, err)
	require.Len(t, edges, 2)

	for _, edge := range edges {
		assert.Equal(t, "BWBR0001854", edge.ToKey)
		assert.Equal(t, graph.RelPartOfInstrument, edge.Relation)
		assert.Equal(t, graph.PartitionStrict, edge.Partition)
		assert.Equal(t, "bwb-normalize", edge.Meta.Source)
	}
	assert.Equal(t, "BWBR0001854:35", edges[0].FromKey)
	assert.Equal(t, "BWBR0001854:36", edges[1].FromKey)
}
