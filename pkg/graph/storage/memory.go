package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/metrics"
)

// MemoryStore is an in-process Store. It implements the full merge contract
// and is what the pipeline tests run against; production runs use the Neo4j
// store behind the same interface.
type MemoryStore struct {
	mutex sync.RWMutex

	nodes      map[graph.NodeType]map[string]*graph.Node
	keyCounts  map[string]int
	edges      map[graph.Partition]map[string]*graph.Edge
	rawSources []graph.RawSource

	logger *logrus.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	nodes := make(map[graph.NodeType]map[string]*graph.Node, len(graph.NodeTypes))
	for _, nodeType := range graph.NodeTypes {
		nodes[nodeType] = make(map[string]*graph.Node)
	}
	return &MemoryStore{
		nodes:     nodes,
		keyCounts: make(map[string]int),
		edges: map[graph.Partition]map[string]*graph.Edge{
			graph.PartitionStrict:   {},
			graph.PartitionSemantic: {},
		},
		logger: logger,
	}
}

// UpsertNode implements Store.
func (s *MemoryStore) UpsertNode(ctx context.Context, upsert NodeUpsert) (string, error) {
	if !upsert.Type.Valid() {
		return "", &graph.InvalidIdentityError{Type: upsert.Type, Field: "type"}
	}
	key, err := graph.DeriveNodeKey(upsert.Type, upsert.Properties)
	if err != nil {
		return "", err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	collection := s.nodes[upsert.Type]
	existing, ok := collection[key]
	if !ok {
		// Keys anchor edge endpoints without a type, so a key may belong to
		// one node type only.
		if s.keyCounts[key] > 0 {
			return "", &graph.KeyCollisionError{
				Key:       key,
				Requested: upsert.Type,
				Existing:  s.typeOfKey(key),
			}
		}
		node := &graph.Node{
			Type:       upsert.Type,
			Key:        key,
			Properties: graph.MergeProperties(nil, upsert.Properties),
			Labels:     graph.UnionStrings(nil, upsert.Labels),
		}
		node.DisplayName = graph.DisplayName(node.Type, node.Properties)
		collection[key] = node
		s.keyCounts[key]++
		metrics.NodesUpserted.WithLabelValues(string(upsert.Type), "created").Inc()
		return key, nil
	}

	existing.Properties = graph.MergeProperties(existing.Properties, upsert.Properties)
	existing.Labels = graph.UnionStrings(existing.Labels, upsert.Labels)
	existing.DisplayName = graph.DisplayName(existing.Type, existing.Properties)
	metrics.NodesUpserted.WithLabelValues(string(upsert.Type), "updated").Inc()
	return key, nil
}

// typeOfKey returns the type of the node holding key. Callers hold the lock
// and have already established that the key exists.
func (s *MemoryStore) typeOfKey(key string) graph.NodeType {
	for _, nodeType := range graph.NodeTypes {
		if _, ok := s.nodes[nodeType][key]; ok {
			return nodeType
		}
	}
	return ""
}

// UpsertEdge implements Store.
func (s *MemoryStore) UpsertEdge(ctx context.Context, upsert EdgeUpsert) (string, error) {
	upsert.normalize()
	edgeKey := graph.DeriveEdgeKey(upsert.FromKey, upsert.ToKey, upsert.Relation)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.keyCounts[upsert.FromKey] == 0 {
		return "", &graph.DanglingReferenceError{Key: upsert.FromKey}
	}
	if s.keyCounts[upsert.ToKey] == 0 {
		return "", &graph.DanglingReferenceError{Key: upsert.ToKey}
	}

	if !partitionAllowsCoexistence(upsert.Relation) {
		if _, claimed := s.edges[upsert.Partition.Other()][edgeKey]; claimed {
			return "", &graph.PartitionConflictError{
				EdgeKey:   edgeKey,
				Existing:  upsert.Partition.Other(),
				Requested: upsert.Partition,
			}
		}
	}

	partition := s.edges[upsert.Partition]
	existing, ok := partition[edgeKey]
	if !ok {
		partition[edgeKey] = &graph.Edge{
			Key:        edgeKey,
			FromKey:    upsert.FromKey,
			ToKey:      upsert.ToKey,
			Relation:   upsert.Relation,
			Partition:  upsert.Partition,
			Confidence: upsert.Confidence,
			Meta:       upsert.Meta,
		}
	} else {
		graph.MergeEdge(existing, graph.Edge{Confidence: upsert.Confidence, Meta: upsert.Meta})
	}
	metrics.EdgesUpserted.WithLabelValues(string(upsert.Relation), string(upsert.Partition)).Inc()
	return edgeKey, nil
}

// GetNode implements Store.
func (s *MemoryStore) GetNode(ctx context.Context, nodeType graph.NodeType, key string) (*graph.Node, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	node, ok := s.nodes[nodeType][key]
	if !ok {
		return nil, graph.ErrNodeNotFound
	}
	return copyNode(node), nil
}

// HasNode implements Store.
func (s *MemoryStore) HasNode(ctx context.Context, key string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.keyCounts[key] > 0, nil
}

// NodesByType implements Store. Nodes come back in key order so repeated
// pipeline runs see a stable sequence.
func (s *MemoryStore) NodesByType(ctx context.Context, nodeType graph.NodeType) ([]graph.Node, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	collection := s.nodes[nodeType]
	keys := make([]string, 0, len(collection))
	for key := range collection {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	nodes := make([]graph.Node, 0, len(keys))
	for _, key := range keys {
		nodes = append(nodes, *copyNode(collection[key]))
	}
	return nodes, nil
}

// EdgesFrom implements Store.
func (s *MemoryStore) EdgesFrom(ctx context.Context, fromKey string, relation graph.Relation, partition graph.Partition) ([]graph.Edge, error) {
	return s.filterEdges(partition, func(edge *graph.Edge) bool {
		return edge.FromKey == fromKey && (relation == "" || edge.Relation == relation)
	}), nil
}

// EdgesTo implements Store.
func (s *MemoryStore) EdgesTo(ctx context.Context, toKey string, relation graph.Relation, partition graph.Partition) ([]graph.Edge, error) {
	return s.filterEdges(partition, func(edge *graph.Edge) bool {
		return edge.ToKey == toKey && (relation == "" || edge.Relation == relation)
	}), nil
}

func (s *MemoryStore) filterEdges(partition graph.Partition, match func(*graph.Edge) bool) []graph.Edge {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	partitions := []graph.Partition{graph.PartitionStrict, graph.PartitionSemantic}
	if partition != "" {
		partitions = []graph.Partition{partition}
	}

	var edges []graph.Edge
	for _, p := range partitions {
		for _, edge := range s.edges[p] {
			if match(edge) {
				edges = append(edges, *edge)
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Partition != edges[j].Partition {
			return edges[i].Partition < edges[j].Partition
		}
		return edges[i].Key < edges[j].Key
	})
	return edges
}

// InsertRawSource implements Store. Raw records are write-once; the returned
// id is generated here.
func (s *MemoryStore) InsertRawSource(ctx context.Context, record graph.RawSource) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.FetchedAt.IsZero() {
		record.FetchedAt = time.Now().UTC()
	}
	s.rawSources = append(s.rawSources, record)
	return record.ID, nil
}

// RawSources implements Store.
func (s *MemoryStore) RawSources(ctx context.Context, source string, kinds []string, since time.Time) ([]graph.RawSource, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	kindSet := make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		kindSet[kind] = true
	}

	var records []graph.RawSource
	for _, record := range s.rawSources {
		if source != "" && record.Source != source {
			continue
		}
		if len(kindSet) > 0 && !kindSet[record.Kind] {
			continue
		}
		if !since.IsZero() && record.FetchedAt.Before(since) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// CountNodes implements Store.
func (s *MemoryStore) CountNodes(ctx context.Context) (map[graph.NodeType]int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counts := make(map[graph.NodeType]int, len(s.nodes))
	for nodeType, collection := range s.nodes {
		counts[nodeType] = len(collection)
	}
	return counts, nil
}

// CountEdges implements Store.
func (s *MemoryStore) CountEdges(ctx context.Context) (map[graph.Partition]int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return map[graph.Partition]int{
		graph.PartitionStrict:   len(s.edges[graph.PartitionStrict]),
		graph.PartitionSemantic: len(s.edges[graph.PartitionSemantic]),
	}, nil
}

// Close implements Store.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func copyNode(node *graph.Node) *graph.Node {
	copied := *node
	copied.Properties = graph.MergeProperties(nil, node.Properties)
	copied.Labels = graph.UnionStrings(nil, node.Labels)
	return &copied
}
