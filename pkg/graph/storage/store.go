// Package storage implements the graph upsert/merge contract over nodes and
// the two edge partitions. Every write is keyed and idempotent, which is what
// lets pipeline runs be repeated and parallelized freely.
package storage

import (
	"context"
	"time"

	"lawgraph/pkg/graph"
)

// NodeUpsert is the input for an idempotent node write. The node key is
// derived from the properties, never supplied by the caller.
type NodeUpsert struct {
	Type       graph.NodeType
	Properties map[string]any
	Labels     []string
}

// EdgeUpsert is the input for an idempotent edge write. Strict edges always
// carry confidence 1.0; the stores normalize this.
type EdgeUpsert struct {
	FromKey    string
	ToKey      string
	Relation   graph.Relation
	Partition  graph.Partition
	Confidence float64
	Meta       graph.EdgeMeta
}

func (u *EdgeUpsert) normalize() {
	if u.Partition == graph.PartitionStrict {
		u.Confidence = 1.0
	}
	if u.Confidence < 0 {
		u.Confidence = 0
	}
	if u.Confidence > 1 {
		u.Confidence = 1
	}
	if u.Meta.Occurrences <= 0 {
		u.Meta.Occurrences = 1
	}
}

// Store is the persistence contract the pipelines write through and the
// query layer reads from. Nodes are addressed by (type, key), edges by
// endpoint key, relation and partition. Implementations must make each
// keyed upsert atomic so concurrent workers racing on the same key converge
// to the same merged state.
type Store interface {
	// UpsertNode derives the node key from the properties and creates or
	// merges the node. Returns the key.
	UpsertNode(ctx context.Context, upsert NodeUpsert) (string, error)

	// UpsertEdge creates or merges the edge for the (from, to, relation)
	// triple in the given partition. Returns the edge key. Fails with a
	// DanglingReferenceError when an endpoint does not exist and with a
	// PartitionConflictError when the triple is already claimed by the
	// other partition.
	UpsertEdge(ctx context.Context, upsert EdgeUpsert) (string, error)

	// GetNode fetches one node, or graph.ErrNodeNotFound.
	GetNode(ctx context.Context, nodeType graph.NodeType, key string) (*graph.Node, error)

	// HasNode reports whether any node exists with the given key,
	// regardless of type.
	HasNode(ctx context.Context, key string) (bool, error)

	// NodesByType returns every node of one type.
	NodesByType(ctx context.Context, nodeType graph.NodeType) ([]graph.Node, error)

	// EdgesFrom returns the edges leaving fromKey, filtered by relation and
	// partition (empty values match everything).
	EdgesFrom(ctx context.Context, fromKey string, relation graph.Relation, partition graph.Partition) ([]graph.Edge, error)

	// EdgesTo returns the edges arriving at toKey, with the same filters.
	EdgesTo(ctx context.Context, toKey string, relation graph.Relation, partition graph.Partition) ([]graph.Edge, error)

	// InsertRawSource appends a write-once audit record and returns its id.
	InsertRawSource(ctx context.Context, record graph.RawSource) (string, error)

	// RawSources returns audit records for a source, optionally filtered by
	// kind and fetch time.
	RawSources(ctx context.Context, source string, kinds []string, since time.Time) ([]graph.RawSource, error)

	// CountNodes returns the node count per type.
	CountNodes(ctx context.Context) (map[graph.NodeType]int, error)

	// CountEdges returns the edge count per partition.
	CountEdges(ctx context.Context) (map[graph.Partition]int, error)

	Close(ctx context.Context) error
}

// partitionAllowsCoexistence reports whether a relation may hold the same
// triple in both partitions. RELATED_TOPIC legitimately exists both as
// explicit taxonomy (strict) and as inferred linkage (semantic); for every
// other relation a cross-partition duplicate is a configuration error.
func partitionAllowsCoexistence(relation graph.Relation) bool {
	return relation == graph.RelRelatedTopic
}
