package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
	"lawgraph/pkg/profile"
)

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	prof, err := profile.Parse([]byte(`
name: strafrecht
topic:
  id: topic-strafrecht
  slug: strafrecht
  label: Strafrecht
nl_instruments:
  - id: BWBR0001854
    title: Wetboek van Strafrecht
  - id: BWBR0001903
    title: Wetboek van Strafvordering
eu_instruments:
  - id: 32012L0029
    title: Richtlijn 2012/29/EU
`))
	require.NoError(t, err)
	return prof
}

func TestSeeder_Run(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	seeder := NewSeeder(store, testProfile(t), nil)
	summary, err := seeder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "strafrecht", summary.TopicKey)
	assert.Equal(t, 3, summary.Instruments)
	assert.Equal(t, 3, summary.Edges)

	topic, err := store.GetNode(ctx, graph.NodeTopic, "strafrecht")
	require.NoError(t, err)
	assert.Equal(t, "Strafrecht", topic.Properties["label"])
	assert.Equal(t, []string{"Domain"}, topic.Labels)

	instrument, err := store.GetNode(ctx, graph.NodeInstrument, "BWBR0001854")
	require.NoError(t, err)
	assert.Equal(t, "Wetboek van Strafrecht", instrument.Properties["title"])
	assert.Equal(t, []string{"BWB", "Strafrecht"}, instrument.Labels)

	eu, err := store.GetNode(ctx, graph.NodeInstrument, "32012L0029")
	require.NoError(t, err)
	assert.Equal(t, []string{"EU", "Strafrecht"}, eu.Labels)

	edges, err := store.EdgesTo(ctx, "strafrecht", graph.RelRelatedTopic, graph.PartitionStrict)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	for _, edge := range edges {
		assert.Equal(t, 1.0, edge.Confidence)
		assert.Equal(t, "profile-seed", edge.Meta.Source)
	}
}

func TestSeeder_RunIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	seeder := NewSeeder(store, testProfile(t), nil)
	_, err := seeder.Run(ctx)
	require.NoError(t, err)
	_, err = seeder.Run(ctx)
	require.NoError(t, err)

	counts, err := store.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[graph.NodeTopic])
	assert.Equal(t, 3, counts[graph.NodeInstrument])

	edgeCounts, err := store.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, edgeCounts[graph.PartitionStrict])
}

func TestSeeder_RequiresTopicSlug(t *testing.T) {
	store := storage.NewMemoryStore()

	seeder := NewSeeder(store, &profile.Profile{}, nil)
	_, err := seeder.Run(context.Background())
	assert.Error(t, err)
}
