package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawgraph/pkg/graph"
)

func seedArticle(t *testing.T, store *MemoryStore) (string, string) {
	t.Helper()
	ctx := context.Background()

	instrumentKey, err := store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeInstrument,
		Properties: map[string]any{"bwb_id": "BWBR0001854", "title": "Wetboek van Strafrecht"},
	})
	require.NoError(t, err)

	articleKey, err := store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeInstrumentArticle,
		Properties: map[string]any{"bwb_id": "BWBR0001854", "article_number": "35", "text": "..."},
	})
	require.NoError(t, err)

	return instrumentKey, articleKey
}

func TestMemoryStore_UpsertNodeIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	upsert := NodeUpsert{
		Type:       graph.NodeInstrumentArticle,
		Properties: map[string]any{"bwb_id": "BWBR0001854", "article_number": "35"},
	}

	first, err := store.UpsertNode(ctx, upsert)
	require.NoError(t, err)
	assert.Equal(t, "BWBR0001854:35", first)

	second, err := store.UpsertNode(ctx, upsert)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	counts, err := store.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[graph.NodeInstrumentArticle])
}

func TestMemoryStore_UpsertNodeMergesProperties(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeInstrument,
		Properties: map[string]any{"bwb_id": "BWBR0001854"},
		Labels:     []string{"BWB"},
	})
	require.NoError(t, err)

	key, err := store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeInstrument,
		Properties: map[string]any{"bwb_id": "BWBR0001854", "title": "Wetboek van Strafrecht"},
		Labels:     []string{"Strafrecht"},
	})
	require.NoError(t, err)

	node, err := store.GetNode(ctx, graph.NodeInstrument, key)
	require.NoError(t, err)
	assert.Equal(t, "Wetboek van Strafrecht", node.Properties["title"])
	assert.Equal(t, []string{"BWB", "Strafrecht"}, node.Labels)
	assert.Equal(t, "Wetboek van Strafrecht (BWBR0001854)", node.DisplayName)
}

func TestMemoryStore_UpsertNodeRejectsInvalidIdentity(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.UpsertNode(context.Background(), NodeUpsert{
		Type:       graph.NodeInstrumentArticle,
		Properties: map[string]any{"bwb_id": "BWBR0001854"},
	})
	require.Error(t, err)
	assert.True(t, graph.IsInvalidIdentity(err))

	_, err = store.UpsertNode(context.Background(), NodeUpsert{Type: "unknown"})
	require.Error(t, err)
	assert.True(t, graph.IsInvalidIdentity(err))
}

func TestMemoryStore_RejectsCrossTypeKeyCollision(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeTopic,
		Properties: map[string]any{"slug": "gedeeld"},
	})
	require.NoError(t, err)

	// Edge endpoints resolve by key alone, so the same key may not anchor
	// nodes of two types.
	_, err = store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeProcedure,
		Properties: map[string]any{"external_id": "gedeeld"},
	})
	require.Error(t, err)
	assert.True(t, graph.IsKeyCollision(err))

	// Re-upserting under the original type still merges.
	_, err = store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeTopic,
		Properties: map[string]any{"slug": "gedeeld", "label": "Gedeeld"},
	})
	require.NoError(t, err)
}

func TestMemoryStore_EdgeTripleUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	instrumentKey, articleKey := seedArticle(t, store)

	upsert := EdgeUpsert{
		FromKey:   articleKey,
		ToKey:     instrumentKey,
		Relation:  graph.RelPartOfInstrument,
		Partition: graph.PartitionStrict,
	}
	for i := 0; i < 3; i++ {
		_, err := store.UpsertEdge(ctx, upsert)
		require.NoError(t, err)
	}

	edges, err := store.EdgesFrom(ctx, articleKey, graph.RelPartOfInstrument, graph.PartitionStrict)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].Confidence)
	assert.Equal(t, 3, edges[0].Meta.Occurrences)
}

func TestMemoryStore_EdgeConfidenceMonotonic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, articleKey := seedArticle(t, store)

	judgmentKey, err := store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeJudgment,
		Properties: map[string]any{"ecli": "ECLI:NL:HR:2020:123"},
	})
	require.NoError(t, err)

	upsert := EdgeUpsert{
		FromKey:    judgmentKey,
		ToKey:      articleKey,
		Relation:   graph.RelMentionsArticle,
		Partition:  graph.PartitionSemantic,
		Confidence: 0.9,
	}
	_, err = store.UpsertEdge(ctx, upsert)
	require.NoError(t, err)

	// A weaker re-detection must not lower the stored confidence.
	upsert.Confidence = 0.5
	_, err = store.UpsertEdge(ctx, upsert)
	require.NoError(t, err)

	edges, err := store.EdgesFrom(ctx, judgmentKey, graph.RelMentionsArticle, graph.PartitionSemantic)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.9, edges[0].Confidence)
	assert.Equal(t, 2, edges[0].Meta.Occurrences)
}

func TestMemoryStore_DanglingEdgeRejected(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, articleKey := seedArticle(t, store)

	_, err := store.UpsertEdge(ctx, EdgeUpsert{
		FromKey:   articleKey,
		ToKey:     "BWBR0001903",
		Relation:  graph.RelPartOfInstrument,
		Partition: graph.PartitionStrict,
	})
	require.Error(t, err)
	assert.True(t, graph.IsDanglingReference(err))

	// No partial edge remains.
	edges, err := store.EdgesFrom(ctx, articleKey, "", "")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMemoryStore_PartitionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	instrumentKey, articleKey := seedArticle(t, store)

	_, err := store.UpsertEdge(ctx, EdgeUpsert{
		FromKey:   articleKey,
		ToKey:     instrumentKey,
		Relation:  graph.RelPartOfInstrument,
		Partition: graph.PartitionStrict,
	})
	require.NoError(t, err)

	_, err = store.UpsertEdge(ctx, EdgeUpsert{
		FromKey:    articleKey,
		ToKey:      instrumentKey,
		Relation:   graph.RelPartOfInstrument,
		Partition:  graph.PartitionSemantic,
		Confidence: 0.5,
	})
	require.Error(t, err)
	assert.True(t, graph.IsPartitionConflict(err))
}

func TestMemoryStore_RelatedTopicMayCoexist(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	instrumentKey, _ := seedArticle(t, store)

	topicKey, err := store.UpsertNode(ctx, NodeUpsert{
		Type:       graph.NodeTopic,
		Properties: map[string]any{"slug": "strafrecht"},
	})
	require.NoError(t, err)

	// Seeded strict membership and keyword-derived semantic membership are
	// both valid at the same time.
	_, err = store.UpsertEdge(ctx, EdgeUpsert{
		FromKey:   instrumentKey,
		ToKey:     topicKey,
		Relation:  graph.RelRelatedTopic,
		Partition: graph.PartitionStrict,
	})
	require.NoError(t, err)

	_, err = store.UpsertEdge(ctx, EdgeUpsert{
		FromKey:    instrumentKey,
		ToKey:      topicKey,
		Relation:   graph.RelRelatedTopic,
		Partition:  graph.PartitionSemantic,
		Confidence: 1.0,
	})
	require.NoError(t, err)

	counts, err := store.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[graph.PartitionStrict])
	assert.Equal(t, 1, counts[graph.PartitionSemantic])
}

func TestMemoryStore_StrictEdgeConfidenceIsOne(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	instrumentKey, articleKey := seedArticle(t, store)

	_, err := store.UpsertEdge(ctx, EdgeUpsert{
		FromKey:    articleKey,
		ToKey:      instrumentKey,
		Relation:   graph.RelPartOfInstrument,
		Partition:  graph.PartitionStrict,
		Confidence: 0.3,
	})
	require.NoError(t, err)

	edges, err := store.EdgesFrom(ctx, articleKey, graph.RelPartOfInstrument, graph.PartitionStrict)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].Confidence)
}

func TestMemoryStore_EdgesToAndFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	instrumentKey, articleKey := seedArticle(t, store)

	_, err := store.UpsertEdge(ctx, EdgeUpsert{
		FromKey:   articleKey,
		ToKey:     instrumentKey,
		Relation:  graph.RelPartOfInstrument,
		Partition: graph.PartitionStrict,
	})
	require.NoError(t, err)

	edges, err := store.EdgesTo(ctx, instrumentKey, graph.RelPartOfInstrument, graph.PartitionStrict)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	edges, err = store.EdgesTo(ctx, instrumentKey, graph.RelMentionsArticle, "")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMemoryStore_GetNodeNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetNode(context.Background(), graph.NodeInstrument, "BWBR0000000")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestMemoryStore_GetNodeReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	instrumentKey, _ := seedArticle(t, store)

	node, err := store.GetNode(ctx, graph.NodeInstrument, instrumentKey)
	require.NoError(t, err)
	node.Properties["title"] = "aangepast"

	again, err := store.GetNode(ctx, graph.NodeInstrument, instrumentKey)
	require.NoError(t, err)
	assert.Equal(t, "Wetboek van Strafrecht", again.Properties["title"])
}

func TestMemoryStore_RawSources(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old, err := graph.NewRawSource("bwb", "bwb_xml", "BWBR0001854", map[string]any{"xml": "<wet/>"})
	require.NoError(t, err)
	old.FetchedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.InsertRawSource(ctx, old)
	require.NoError(t, err)

	recent, err := graph.NewRawSource("bwb", "bwb_xml", "BWBR0001903", map[string]any{"xml": "<wet/>"})
	require.NoError(t, err)
	recent.FetchedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	id, err := store.InsertRawSource(ctx, recent)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	all, err := store.RawSources(ctx, "bwb", []string{"bwb_xml"}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	since, err := store.RawSources(ctx, "bwb", nil, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "BWBR0001903", since[0].ExternalID)

	other, err := store.RawSources(ctx, "tk", nil, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, other)
}
