package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store metrics
	NodesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lawgraph_nodes_upserted_total",
			Help: "Total number of node upserts by node type and outcome",
		},
		[]string{"node_type", "outcome"},
	)

	EdgesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lawgraph_edges_upserted_total",
			Help: "Total number of edge upserts by relation and partition",
		},
		[]string{"relation", "partition"},
	)

	// Pipeline metrics
	RecordFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lawgraph_record_failures_total",
			Help: "Total number of raw records skipped during normalization",
		},
		[]string{"source"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "lawgraph_pipeline_duration_seconds",
			Help: "Time spent per pipeline run",
		},
		[]string{"pipeline"},
	)

	// Citation metrics
	CitationsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lawgraph_citations_detected_total",
			Help: "Total number of citation detections across scanned nodes",
		},
	)

	EdgesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lawgraph_semantic_edges_skipped_total",
			Help: "Detections skipped because their target node does not exist yet",
		},
	)

	// Graph size, refreshed by the stats command
	GraphNodeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lawgraph_graph_nodes",
			Help: "Number of nodes in the graph by node type",
		},
		[]string{"node_type"},
	)

	GraphEdgeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lawgraph_graph_edges",
			Help: "Number of edges in the graph by partition",
		},
		[]string{"partition"},
	)
)
