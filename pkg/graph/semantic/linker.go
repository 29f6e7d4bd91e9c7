// Package semantic derives the semantic edge partition from node content:
// citation links from text-bearing nodes to the articles and instruments they
// mention, and topic edges for nodes matching the domain profile's filters.
package semantic

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/cite"
	"lawgraph/pkg/graph/metrics"
	"lawgraph/pkg/graph/storage"
	"lawgraph/pkg/profile"
)

const defaultWorkers = 4

// Node types whose text is scanned for citations.
var scannedTypes = []graph.NodeType{
	graph.NodeInstrument,
	graph.NodeInstrumentArticle,
	graph.NodeProcedure,
	graph.NodePublication,
	graph.NodeJudgment,
}

// Result summarizes a linkage run.
type Result struct {
	NodesScanned int
	EdgesWritten int
	// EdgesSkipped counts detections whose target node does not exist yet.
	// Skipped detections are not errors; a later run picks them up once the
	// target has been normalized.
	EdgesSkipped int
}

func (r *Result) add(other Result) {
	r.NodesScanned += other.NodesScanned
	r.EdgesWritten += other.EdgesWritten
	r.EdgesSkipped += other.EdgesSkipped
}

// Linker scans text-bearing nodes for citations and writes MENTIONS_ARTICLE
// edges into the semantic partition.
type Linker struct {
	store   storage.Store
	profile *profile.Profile
	scanner *cite.Scanner
	logger  *logrus.Logger
	workers int
}

// NewLinker builds a linker whose alias table and confidence values come
// from the profile.
func NewLinker(store storage.Store, prof *profile.Profile, logger *logrus.Logger, workers int) *Linker {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if workers <= 0 {
		workers = defaultWorkers
	}

	scanner := cite.NewScanner(cite.AliasTable{
		Codes: prof.CodeAliases,
		Names: prof.InstrumentAliases,
	}, cite.Options{
		ArticleConfidence:    prof.Confidence.Article,
		InstrumentConfidence: prof.Confidence.Instrument,
		RangeConfidence:      prof.Confidence.Range,
	})

	return &Linker{
		store:   store,
		profile: prof,
		scanner: scanner,
		logger:  logger,
		workers: workers,
	}
}

// Run scans every text-bearing node and upserts an edge per detected
// citation. Re-running over the same graph converges: existing edges gain
// occurrences, no duplicates appear.
func (l *Linker) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	defer func() {
		metrics.PipelineDuration.WithLabelValues("link").Observe(time.Since(started).Seconds())
	}()

	var total Result
	for _, nodeType := range scannedTypes {
		result, err := l.linkType(ctx, nodeType)
		total.add(result)
		if err != nil {
			return total, err
		}
	}

	l.logger.WithFields(logrus.Fields{
		"nodes_scanned": total.NodesScanned,
		"edges_written": total.EdgesWritten,
		"edges_skipped": total.EdgesSkipped,
	}).Info("Citation linkage completed")

	return total, nil
}

func (l *Linker) linkType(ctx context.Context, nodeType graph.NodeType) (Result, error) {
	nodes, err := l.store.NodesByType(ctx, nodeType)
	if err != nil {
		return Result{}, errors.Wrapf(err, "load %s nodes", nodeType)
	}

	var (
		mu     sync.Mutex
		result Result
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(l.workers)

	for _, node := range nodes {
		node := node
		group.Go(func() error {
			partial, err := l.linkNode(groupCtx, node)
			mu.Lock()
			result.add(partial)
			mu.Unlock()
			return err
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (l *Linker) linkNode(ctx context.Context, node graph.Node) (Result, error) {
	result := Result{NodesScanned: 1}

	text := l.nodeText(node)
	if text == "" {
		return result, nil
	}

	detections := l.scanner.Scan(text)
	metrics.CitationsDetected.Add(float64(len(detections)))

	for _, detection := range detections {
		// An article never mentions itself.
		if detection.TargetKey == node.Key {
			continue
		}

		_, err := l.store.UpsertEdge(ctx, storage.EdgeUpsert{
			FromKey:    node.Key,
			ToKey:      detection.TargetKey,
			Relation:   graph.RelMentionsArticle,
			Partition:  graph.PartitionSemantic,
			Confidence: detection.Confidence,
			Meta: graph.EdgeMeta{
				Source:      "citation-linker",
				Snippet:     detection.Snippet,
				RawMatch:    detection.RawMatch,
				Occurrences: detection.Occurrences,
			},
		})
		switch {
		case err == nil:
			result.EdgesWritten++
		case graph.IsDanglingReference(err):
			result.EdgesSkipped++
			metrics.EdgesSkipped.Inc()
			l.logger.WithFields(logrus.Fields{
				"from":   node.Key,
				"target": detection.TargetKey,
			}).Debug("Skipping citation to unknown target")
		default:
			return result, errors.Wrapf(err, "link %s to %s", node.Key, detection.TargetKey)
		}
	}

	return result, nil
}

// nodeText joins the node's designated text properties.
func (l *Linker) nodeText(node graph.Node) string {
	var parts []string
	for _, field := range l.profile.TextFieldsFor(string(node.Type)) {
		if value, ok := node.Properties[field].(string); ok && value != "" {
			parts = append(parts, value)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
