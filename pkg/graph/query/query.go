// Package query provides filtered reads over a graph store. Filters compose
// into a Query value that the CLI and the exporter evaluate against the
// Store interface, so the same query runs on the in-memory and the Neo4j
// backend.
package query

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
)

// NodeFilter narrows a node listing.
type NodeFilter struct {
	// Type restricts the listing to one node type. Empty means all types.
	Type graph.NodeType

	// Label requires the node to carry this label.
	Label string

	// Contains requires the display name or a string property to contain
	// this text, case-insensitively.
	Contains string
}

// EdgeFilter narrows an edge listing.
type EdgeFilter struct {
	FromKey  string
	ToKey    string
	Relation graph.Relation

	// Partition restricts to one partition. Empty means both.
	Partition graph.Partition

	// MinConfidence drops edges below this confidence.
	MinConfidence float64
}

// Query bundles paging options.
type Query struct {
	Limit int
	Skip  int
}

// Runner evaluates queries against a store.
type Runner struct {
	store storage.Store
}

// NewRunner builds a query runner over the given store.
func NewRunner(store storage.Store) *Runner {
	return &Runner{store: store}
}

// Nodes lists nodes matching the filter, in key order per type.
func (r *Runner) Nodes(ctx context.Context, filter NodeFilter, q Query) ([]graph.Node, error) {
	types := graph.NodeTypes
	if filter.Type != "" {
		if !filter.Type.Valid() {
			return nil, errors.Errorf("unknown node type %q", filter.Type)
		}
		types = []graph.NodeType{filter.Type}
	}

	var matched []graph.Node
	for _, nodeType := range types {
		nodes, err := r.store.NodesByType(ctx, nodeType)
		if err != nil {
			return nil, errors.Wrapf(err, "list %s nodes", nodeType)
		}
		for _, node := range nodes {
			if matchesNode(node, filter) {
				matched = append(matched, node)
			}
		}
	}
	return page(matched, q), nil
}

// Edges lists edges matching the filter. At least one endpoint key is
// required.
func (r *Runner) Edges(ctx context.Context, filter EdgeFilter, q Query) ([]graph.Edge, error) {
	var (
		edges []graph.Edge
		err   error
	)
	switch {
	case filter.FromKey != "":
		edges, err = r.store.EdgesFrom(ctx, filter.FromKey, filter.Relation, filter.Partition)
	case filter.ToKey != "":
		edges, err = r.store.EdgesTo(ctx, filter.ToKey, filter.Relation, filter.Partition)
	default:
		return nil, errors.New("edge query needs a from or to key")
	}
	if err != nil {
		return nil, errors.Wrap(err, "list edges")
	}

	if filter.MinConfidence > 0 {
		kept := edges[:0]
		for _, edge := range edges {
			if edge.Confidence >= filter.MinConfidence {
				kept = append(kept, edge)
			}
		}
		edges = kept
	}
	return page(edges, q), nil
}

// NodeByKey resolves a key whose type is unknown by probing each node type.
func (r *Runner) NodeByKey(ctx context.Context, key string) (*graph.Node, error) {
	for _, nodeType := range graph.NodeTypes {
		node, err := r.store.GetNode(ctx, nodeType, key)
		if err == nil {
			return node, nil
		}
		if !errors.Is(err, graph.ErrNodeNotFound) {
			return nil, err
		}
	}
	return nil, graph.ErrNodeNotFound
}

func matchesNode(node graph.Node, filter NodeFilter) bool {
	if filter.Label != "" {
		found := false
		for _, label := range node.Labels {
			if label == filter.Label {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Contains != "" {
		needle := strings.ToLower(filter.Contains)
		if strings.Contains(strings.ToLower(node.DisplayName), needle) {
			return true
		}
		for _, value := range node.Properties {
			text, ok := value.(string)
			if ok && strings.Contains(strings.ToLower(text), needle) {
				return true
			}
		}
		return false
	}
	return true
}

func page[T any](items []T, q Query) []T {
	if q.Skip > 0 {
		if q.Skip >= len(items) {
			return nil
		}
		items = items[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(items) {
		items = items[:q.Limit]
	}
	return items
}
