// Package algorithms walks the stored graph. Traversal treats edges as
// undirected so a judgment citing an article and the instrument containing
// that article end up in the same neighborhood.
package algorithms

import (
	"context"

	"github.com/pkg/errors"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/query"
	"lawgraph/pkg/graph/storage"
)

type TraversalType string

const (
	BFS TraversalType = "BFS"
	DFS TraversalType = "DFS"
)

// Options restrict which edges a traversal follows.
type Options struct {
	// Relation follows only edges of this relation. Empty follows all.
	Relation graph.Relation

	// Partition follows only edges in this partition. Empty follows both.
	Partition graph.Partition
}

// Traversal walks the graph outward from a start node.
type Traversal struct {
	store  storage.Store
	runner *query.Runner
}

// NewTraversal builds a traversal over the given store.
func NewTraversal(store storage.Store) *Traversal {
	return &Traversal{store: store, runner: query.NewRunner(store)}
}

// Traverse collects the nodes reachable from startKey within maxDepth hops.
// The start node itself is depth zero and always included.
func (t *Traversal) Traverse(ctx context.Context, startKey string, maxDepth int, traversalType TraversalType, opts Options) ([]graph.Node, error) {
	visited := make(map[string]bool)

	switch traversalType {
	case BFS:
		return t.bfs(ctx, startKey, maxDepth, opts, visited)
	case DFS:
		var result []graph.Node
		if err := t.dfs(ctx, startKey, maxDepth, opts, visited, &result); err != nil {
			return nil, err
		}
		return result, nil
	default:
		return nil, errors.Errorf("unsupported traversal type %q", traversalType)
	}
}

func (t *Traversal) bfs(ctx context.Context, startKey string, maxDepth int, opts Options, visited map[string]bool) ([]graph.Node, error) {
	queue := []string{startKey}
	var result []graph.Node

	for depth := 0; len(queue) > 0 && depth <= maxDepth; depth++ {
		levelSize := len(queue)
		for i := 0; i < levelSize; i++ {
			current := queue[0]
			queue = queue[1:]

			if visited[current] {
				continue
			}
			visited[current] = true

			node, err := t.runner.NodeByKey(ctx, current)
			if err != nil {
				return nil, errors.Wrapf(err, "resolve %s", current)
			}
			result = append(result, *node)

			neighbors, err := t.neighbors(ctx, current, opts)
			if err != nil {
				return nil, err
			}
			for _, neighbor := range neighbors {
				if !visited[neighbor] {
					queue = append(queue, neighbor)
				}
			}
		}
	}
	return result, nil
}

func (t *Traversal) dfs(ctx context.Context, currentKey string, remainingDepth int, opts Options, visited map[string]bool, result *[]graph.Node) error {
	if remainingDepth < 0 || visited[currentKey] {
		return nil
	}
	visited[currentKey] = true

	node, err := t.runner.NodeByKey(ctx, currentKey)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", currentKey)
	}
	*result = append(*result, *node)

	neighbors, err := t.neighbors(ctx, currentKey, opts)
	if err != nil {
		return err
	}
	for _, neighbor := range neighbors {
		if !visited[neighbor] {
			if err := t.dfs(ctx, neighbor, remainingDepth-1, opts, visited, result); err != nil {
				return err
			}
		}
	}
	return nil
}

// neighbors lists the keys adjacent to the given key in either direction.
func (t *Traversal) neighbors(ctx context.Context, key string, opts Options) ([]string, error) {
	outgoing, err := t.store.EdgesFrom(ctx, key, opts.Relation, opts.Partition)
	if err != nil {
		return nil, errors.Wrapf(err, "edges from %s", key)
	}
	incoming, err := t.store.EdgesTo(ctx, key, opts.Relation, opts.Partition)
	if err != nil {
		return nil, errors.Wrapf(err, "edges to %s", key)
	}

	var keys []string
	for _, edge := range outgoing {
		keys = append(keys, edge.ToKey)
	}
	for _, edge := range incoming {
		keys = append(keys, edge.FromKey)
	}
	return keys, nil
}
