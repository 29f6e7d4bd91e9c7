package semantic

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
	"lawgraph/pkg/profile"
)

// Node types eligible for topic membership.
var taggedTypes = []graph.NodeType{
	graph.NodeInstrument,
	graph.NodeProcedure,
	graph.NodePublication,
	graph.NodeJudgment,
}

// Tagger sweeps stored nodes against the profile's keyword filters and
// writes semantic RELATED_TOPIC edges to the topic node. Normalization tags
// nodes as they come in; the tagger covers nodes ingested before the profile
// existed or under an older filter set.
type Tagger struct {
	store   storage.Store
	profile *profile.Profile
	logger  *logrus.Logger
}

// NewTagger builds a tagger for the profile's topic.
func NewTagger(store storage.Store, prof *profile.Profile, logger *logrus.Logger) *Tagger {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Tagger{store: store, profile: prof, logger: logger}
}

// Run tags every matching node. The topic node must exist; seed it first.
func (t *Tagger) Run(ctx context.Context) (Result, error) {
	if t.profile.Topic.Slug == "" {
		return Result{}, errors.New("profile has no topic")
	}
	topicKey, err := graph.DeriveNodeKey(graph.NodeTopic, map[string]any{"slug": t.profile.Topic.Slug})
	if err != nil {
		return Result{}, err
	}
	if _, err := t.store.GetNode(ctx, graph.NodeTopic, topicKey); err != nil {
		return Result{}, errors.Wrapf(err, "topic %s", topicKey)
	}

	keywords := t.profile.Keywords()
	var result Result
	for _, nodeType := range taggedTypes {
		nodes, err := t.store.NodesByType(ctx, nodeType)
		if err != nil {
			return result, errors.Wrapf(err, "load %s nodes", nodeType)
		}

		for _, node := range nodes {
			result.NodesScanned++
			if !t.matches(node, keywords) {
				continue
			}

			_, err := t.store.UpsertEdge(ctx, storage.EdgeUpsert{
				FromKey:    node.Key,
				ToKey:      topicKey,
				Relation:   graph.RelRelatedTopic,
				Partition:  graph.PartitionSemantic,
				Confidence: 1.0,
				Meta:       graph.EdgeMeta{Source: "topic-tagger"},
			})
			if err != nil {
				return result, errors.Wrapf(err, "tag %s", node.Key)
			}
			result.EdgesWritten++
		}
	}

	t.logger.WithFields(logrus.Fields{
		"topic":         topicKey,
		"nodes_scanned": result.NodesScanned,
		"edges_written": result.EdgesWritten,
	}).Info("Topic tagging completed")

	return result, nil
}

func (t *Tagger) matches(node graph.Node, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, field := range []string{"title", "onderwerp", "text"} {
		value, ok := node.Properties[field].(string)
		if !ok || value == "" {
			continue
		}
		lowered := strings.ToLower(value)
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				return true
			}
		}
	}
	return false
}
