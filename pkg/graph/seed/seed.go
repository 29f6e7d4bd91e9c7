// Package seed bootstraps a domain profile into the graph: the topic node,
// the profile's instruments, and the strict RELATED_TOPIC edges between them.
package seed

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
	"lawgraph/pkg/profile"
)

// Summary reports what a seed run wrote.
type Summary struct {
	TopicKey    string
	Instruments int
	Edges       int
}

// Seeder writes a profile's canonical nodes. Seeding is idempotent; running
// it again merges into the existing nodes.
type Seeder struct {
	store   storage.Store
	profile *profile.Profile
	logger  *logrus.Logger
}

// NewSeeder builds a seeder for the given profile.
func NewSeeder(store storage.Store, prof *profile.Profile, logger *logrus.Logger) *Seeder {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Seeder{store: store, profile: prof, logger: logger}
}

// Run seeds the topic and instruments.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	topic := s.profile.Topic
	if topic.Slug == "" {
		return Summary{}, errors.New("profile topic has no slug")
	}

	props := map[string]any{"slug": topic.Slug}
	if topic.ID != "" {
		props["id"] = topic.ID
	}
	if topic.Label != "" {
		props["label"] = topic.Label
	}

	topicKey, err := s.store.UpsertNode(ctx, storage.NodeUpsert{
		Type:       graph.NodeTopic,
		Properties: props,
		Labels:     []string{"Domain"},
	})
	if err != nil {
		return Summary{}, errors.Wrap(err, "seed topic")
	}

	summary := Summary{TopicKey: topicKey}

	for _, instrument := range s.profile.NLInstruments {
		if err := s.seedInstrument(ctx, &summary, topicKey, map[string]any{
			"bwb_id": instrument.ID,
			"title":  instrument.Title,
		}, []string{"BWB", topic.Label}); err != nil {
			return summary, err
		}
	}
	for _, instrument := range s.profile.EUInstruments {
		if err := s.seedInstrument(ctx, &summary, topicKey, map[string]any{
			"celex": instrument.ID,
			"title": instrument.Title,
		}, []string{"EU", topic.Label}); err != nil {
			return summary, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"topic":       topicKey,
		"instruments": summary.Instruments,
		"edges":       summary.Edges,
	}).Info("Profile seed completed")

	return summary, nil
}

func (s *Seeder) seedInstrument(ctx context.Context, summary *Summary, topicKey string, props map[string]any, labels []string) error {
	cleaned := labels[:0]
	for _, label := range labels {
		if label != "" {
			cleaned = append(cleaned, label)
		}
	}

	key, err := s.store.UpsertNode(ctx, storage.NodeUpsert{
		Type:       graph.NodeInstrument,
		Properties: props,
		Labels:     cleaned,
	})
	if err != nil {
		return errors.Wrap(err, "seed instrument")
	}
	summary.Instruments++

	_, err = s.store.UpsertEdge(ctx, storage.EdgeUpsert{
		FromKey:   key,
		ToKey:     topicKey,
		Relation:  graph.RelRelatedTopic,
		Partition: graph.PartitionStrict,
		Meta:      graph.EdgeMeta{Source: "profile-seed"},
	})
	if err != nil {
		return errors.Wrapf(err, "link instrument %s to topic", key)
	}
	summary.Edges++
	return nil
}
