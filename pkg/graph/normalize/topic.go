package normalize

import (
	"strings"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
	"lawgraph/pkg/profile"
)

// matchesKeywords reports whether any profile keyword occurs in the given
// texts, case-insensitively.
func matchesKeywords(prof *profile.Profile, texts ...string) bool {
	keywords := prof.Keywords()
	if len(keywords) == 0 {
		return false
	}
	for _, text := range texts {
		if text == "" {
			continue
		}
		lowered := strings.ToLower(text)
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				return true
			}
		}
	}
	return false
}

// topicEdge builds the semantic RELATED_TOPIC edge from a tagged node to the
// profile's topic node. The edge dangles until the topic has been seeded; the
// pipeline skips it in that case and a replay picks it up.
func topicEdge(prof *profile.Profile, fromKey, source string) (storage.EdgeUpsert, bool) {
	if prof == nil || prof.Topic.Slug == "" {
		return storage.EdgeUpsert{}, false
	}
	topicKey, err := graph.DeriveNodeKey(graph.NodeTopic, map[string]any{"slug": prof.Topic.Slug})
	if err != nil {
		return storage.EdgeUpsert{}, false
	}
	return storage.EdgeUpsert{
		FromKey:    fromKey,
		ToKey:      topicKey,
		Relation:   graph.RelRelatedTopic,
		Partition:  graph.PartitionSemantic,
		Confidence: 1.0,
		Meta:       graph.EdgeMeta{Source: source},
	}, true
}
