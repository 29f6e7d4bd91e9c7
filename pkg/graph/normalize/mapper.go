// Package normalize turns raw source records into graph nodes and strict
// edges. Each upstream register gets its own Mapper; the Pipeline drains the
// raw source log through the mappers and writes the results to a Store.
package normalize

import (
	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
)

// Mapper translates raw records of one source into node and edge upserts.
// Mappers are pure: they never touch the store, so they can run concurrently
// and their output is testable without a backend.
type Mapper interface {
	// Source names the upstream register this mapper consumes.
	Source() string

	// Kinds lists the raw record kinds the mapper understands.
	Kinds() []string

	// MapNodes extracts the nodes contained in one raw record.
	MapNodes(record graph.RawSource) ([]storage.NodeUpsert, error)

	// MapEdges extracts the edges implied by one raw record. Node keys are
	// derived from the upserts returned by MapNodes, so MapEdges runs after
	// the nodes have been written.
	MapEdges(record graph.RawSource, nodes []storage.NodeUpsert) ([]storage.EdgeUpsert, error)
}

func nodeKey(upsert storage.NodeUpsert) (string, error) {
	return graph.DeriveNodeKey(upsert.Type, upsert.Properties)
}
