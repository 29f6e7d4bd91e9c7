// Package main provides the lawgraph binary: batch commands that build and
// enrich a legal document graph from ingested register dumps.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/algorithms"
	"lawgraph/pkg/graph/metrics"
	"lawgraph/pkg/graph/normalize"
	"lawgraph/pkg/graph/query"
	"lawgraph/pkg/graph/seed"
	"lawgraph/pkg/graph/semantic"
	"lawgraph/pkg/graph/storage"
	"lawgraph/pkg/graph/visualizer"
	"lawgraph/pkg/profile"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	logger  *logrus.Logger
	store   storage.Store
	profile *profile.Profile
}

func rootCmd() *cobra.Command {
	var (
		profilePath string
		logLevel    string
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "lawgraph",
		Short: "Legal document graph builder",
		Long: `Lawgraph builds a graph of Dutch and EU legal documents: instruments,
articles, parliamentary procedures, publications and judgments, linked by
strict containment edges and semantic citation edges.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&profilePath, "profile", "p", "config/strafrecht.yml", "Domain profile (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().IntVar(&workers, "workers", 4, "Worker pool size for pipeline runs")

	cmd.AddCommand(
		seedCmd(&profilePath, &logLevel),
		ingestCmd(&profilePath, &logLevel),
		normalizeCmd(&profilePath, &logLevel, &workers),
		linkCmd(&profilePath, &logLevel, &workers),
		tagCmd(&profilePath, &logLevel),
		queryCmd(&profilePath, &logLevel),
		relatedCmd(&profilePath, &logLevel),
		exportCmd(&profilePath, &logLevel),
		statsCmd(&profilePath, &logLevel),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("lawgraph version %s\n", version)
			},
		},
	)

	return cmd
}

// setup loads the environment, profile and store shared by every command.
func setup(profilePath, logLevel string) (*app, error) {
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		logger.SetLevel(level)
	}

	prof, err := profile.Load(profilePath)
	if err != nil {
		return nil, err
	}

	store, err := openStore(logger)
	if err != nil {
		return nil, err
	}

	return &app{logger: logger, store: store, profile: prof}, nil
}

// openStore picks a backend from the environment. Neo4j is the default when
// an URI is configured, the in-memory store otherwise.
func openStore(logger *logrus.Logger) (storage.Store, error) {
	backend := os.Getenv("LAWGRAPH_STORE")
	uri := os.Getenv("NEO4J_URI")

	switch {
	case backend == "memory", backend == "" && uri == "":
		logger.Warn("Using in-memory store, data will not survive the process")
		return storage.NewMemoryStore(), nil
	case backend == "neo4j", backend == "":
		if uri == "" {
			uri = "neo4j://localhost:7687"
		}
		return storage.NewNeo4jStore(
			uri,
			os.Getenv("NEO4J_USERNAME"),
			os.Getenv("NEO4J_PASSWORD"),
			logger,
		)
	default:
		return nil, errors.Errorf("unknown store backend %q", backend)
	}
}

func runWithApp(profilePath, logLevel *string, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup(*profilePath, *logLevel)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		defer func() {
			if err := a.store.Close(context.Background()); err != nil {
				a.logger.WithError(err).Warn("Closing store failed")
			}
		}()

		return fn(ctx, a, args)
	}
}

func seedCmd(profilePath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the profile's topic and instruments",
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, _ []string) error {
			summary, err := seed.NewSeeder(a.store, a.profile, a.logger).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded topic %s: %d instruments, %d edges\n",
				summary.TopicKey, summary.Instruments, summary.Edges)
			return nil
		}),
	}
}

func ingestCmd(profilePath, logLevel *string) *cobra.Command {
	var source, kind string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Load raw source records from NDJSON files",
		Long: `Ingest reads newline-delimited JSON records into the raw source log.
Each line is either a full record {"source": ..., "kind": ..., "external_id": ...,
"payload": {...}} or, with --source and --kind set, a bare payload object.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, args []string) error {
			total := 0
			for _, path := range args {
				count, err := ingestFile(ctx, a, path, source, kind)
				if err != nil {
					return errors.Wrapf(err, "ingest %s", path)
				}
				total += count
			}
			fmt.Printf("Ingested %d raw records\n", total)
			return nil
		}),
	}

	cmd.Flags().StringVar(&source, "source", "", "Source for bare payload lines (bwb, tk, eurlex, rechtspraak)")
	cmd.Flags().StringVar(&kind, "kind", "", "Record kind for bare payload lines")
	return cmd
}

func ingestFile(ctx context.Context, a *app, path, source, kind string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		record, err := decodeRawRecord(line, source, kind)
		if err != nil {
			return count, err
		}
		if _, err := a.store.InsertRawSource(ctx, record); err != nil {
			return count, err
		}
		count++
	}
	return count, scanner.Err()
}

func decodeRawRecord(line []byte, defaultSource, defaultKind string) (graph.RawSource, error) {
	var envelope struct {
		Source     string         `json:"source"`
		Kind       string         `json:"kind"`
		ExternalID string         `json:"external_id"`
		Payload    map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return graph.RawSource{}, errors.Wrap(err, "decode record")
	}

	if envelope.Payload == nil {
		// Bare payload line, the envelope fields come from the flags.
		var payload map[string]any
		if err := json.Unmarshal(line, &payload); err != nil {
			return graph.RawSource{}, errors.Wrap(err, "decode payload")
		}
		envelope.Source = defaultSource
		envelope.Kind = defaultKind
		envelope.Payload = payload
	}

	if envelope.Source == "" || envelope.Kind == "" {
		return graph.RawSource{}, errors.New("record has no source or kind (set --source and --kind for bare payloads)")
	}
	return graph.NewRawSource(envelope.Source, envelope.Kind, envelope.ExternalID, envelope.Payload)
}

func normalizeCmd(profilePath, logLevel *string, workers *int) *cobra.Command {
	var (
		since            string
		failureTolerance float64
	)

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize raw records into graph nodes and strict edges",
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, _ []string) error {
			opts := normalize.Options{Workers: *workers, FailureTolerance: &failureTolerance}
			if since != "" {
				parsed, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return errors.Wrap(err, "parse --since")
				}
				opts.Since = parsed
			}

			mappers := []normalize.Mapper{
				normalize.NewBWBMapper(),
				normalize.NewTKMapper(a.profile),
				normalize.NewEurlexMapper(a.profile),
				normalize.NewRechtspraakMapper(a.profile),
			}

			result, err := normalize.NewPipeline(a.store, mappers, a.logger, opts).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Normalized %d records: %d nodes, %d edges, %d skipped, %d failures\n",
				result.RecordsRead, result.NodesWritten, result.EdgesWritten,
				result.EdgesSkipped, result.Failures)
			return nil
		}),
	}

	cmd.Flags().StringVar(&since, "since", "", "Only process raw records fetched at or after this RFC 3339 time")
	cmd.Flags().Float64Var(&failureTolerance, "failure-tolerance", 0.2, "Fraction of records allowed to fail before the run errors (0 fails on any)")
	return cmd
}

func linkCmd(profilePath, logLevel *string, workers *int) *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Scan node text for citations and write semantic edges",
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, _ []string) error {
			result, err := semantic.NewLinker(a.store, a.profile, a.logger, *workers).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Scanned %d nodes: %d edges written, %d skipped\n",
				result.NodesScanned, result.EdgesWritten, result.EdgesSkipped)
			return nil
		}),
	}
}

func tagCmd(profilePath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tag",
		Short: "Tag nodes matching the profile's filters with topic edges",
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, _ []string) error {
			result, err := semantic.NewTagger(a.store, a.profile, a.logger).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Scanned %d nodes: %d topic edges written\n",
				result.NodesScanned, result.EdgesWritten)
			return nil
		}),
	}
}

func queryCmd(profilePath, logLevel *string) *cobra.Command {
	var (
		nodeType string
		label    string
		contains string
		limit    int
		skip     int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List graph nodes matching a filter",
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, _ []string) error {
			runner := query.NewRunner(a.store)
			nodes, err := runner.Nodes(ctx, query.NodeFilter{
				Type:     graph.NodeType(nodeType),
				Label:    label,
				Contains: contains,
			}, query.Query{Limit: limit, Skip: skip})
			if err != nil {
				return err
			}

			for _, node := range nodes {
				fmt.Printf("%-20s %-30s %s\n", node.Type, node.Key, node.DisplayName)
			}
			fmt.Printf("%d nodes\n", len(nodes))
			return nil
		}),
	}

	cmd.Flags().StringVar(&nodeType, "type", "", "Node type filter")
	cmd.Flags().StringVar(&label, "label", "", "Label filter")
	cmd.Flags().StringVar(&contains, "contains", "", "Substring filter on display name and properties")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of nodes to print")
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of matching nodes to skip")
	return cmd
}

func relatedCmd(profilePath, logLevel *string) *cobra.Command {
	var (
		depth     int
		relation  string
		partition string
	)

	cmd := &cobra.Command{
		Use:   "related <key>",
		Short: "Walk the neighborhood of a node",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, args []string) error {
			traversal := algorithms.NewTraversal(a.store)
			nodes, err := traversal.Traverse(ctx, args[0], depth, algorithms.BFS, algorithms.Options{
				Relation:  graph.Relation(relation),
				Partition: graph.Partition(partition),
			})
			if err != nil {
				return err
			}

			for _, node := range nodes {
				fmt.Printf("%-20s %-30s %s\n", node.Type, node.Key, node.DisplayName)
			}
			fmt.Printf("%d nodes within %d hops of %s\n", len(nodes), depth, args[0])
			return nil
		}),
	}

	cmd.Flags().IntVar(&depth, "depth", 2, "Maximum number of hops from the start node")
	cmd.Flags().StringVar(&relation, "relation", "", "Follow only edges of this relation")
	cmd.Flags().StringVar(&partition, "partition", "", "Follow only edges in this partition (strict, semantic)")
	return cmd
}

func exportCmd(profilePath, logLevel *string) *cobra.Command {
	var (
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the graph as a D3 HTML page or JSON snapshot",
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, _ []string) error {
			snapshot, err := visualizer.BuildSnapshot(ctx, a.store)
			if err != nil {
				return err
			}

			viz := visualizer.NewD3Visualizer(output)
			switch format {
			case "html":
				err = viz.WriteHTML(snapshot)
			case "json":
				err = viz.WriteJSON(snapshot)
			default:
				return errors.Errorf("unknown export format %q", format)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Exported %d nodes and %d edges to %s\n",
				len(snapshot.Nodes), len(snapshot.Edges), output)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", "lawgraph.html", "Output file path")
	cmd.Flags().StringVar(&format, "format", "html", "Export format (html, json)")
	return cmd
}

func statsCmd(profilePath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print node and edge counts",
		RunE: runWithApp(profilePath, logLevel, func(ctx context.Context, a *app, _ []string) error {
			nodeCounts, err := a.store.CountNodes(ctx)
			if err != nil {
				return err
			}
			edgeCounts, err := a.store.CountEdges(ctx)
			if err != nil {
				return err
			}

			fmt.Println("Nodes:")
			for _, nodeType := range graph.NodeTypes {
				metrics.GraphNodeCount.WithLabelValues(string(nodeType)).Set(float64(nodeCounts[nodeType]))
				fmt.Printf("  %-20s %s\n", nodeType, strconv.Itoa(nodeCounts[nodeType]))
			}
			fmt.Println("Edges:")
			for _, partition := range []graph.Partition{graph.PartitionStrict, graph.PartitionSemantic} {
				metrics.GraphEdgeCount.WithLabelValues(string(partition)).Set(float64(edgeCounts[partition]))
				fmt.Printf("  %-20s %s\n", partition, strconv.Itoa(edgeCounts[partition]))
			}
			return nil
		}),
	}
}
