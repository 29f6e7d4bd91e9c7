// Package visualizer renders a stored graph as a standalone D3.js HTML page
// or as a plain JSON snapshot. The snapshot shape is stable so downstream
// tooling can consume the JSON export directly.
package visualizer

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
)

const d3Template = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Law Graph</title>
    <script src="https://d3js.org/d3.v7.min.js"></script>
    <style>
        body {
            margin: 0;
            font-family: Arial, sans-serif;
        }
        #graph {
            width: 100%;
            height: 100vh;
            background-color: #f5f5f5;
        }
        .node {
            stroke: #fff;
            stroke-width: 1.5px;
        }
        .link {
            stroke: #999;
            stroke-opacity: 0.6;
        }
        .link.semantic {
            stroke-dasharray: 4 2;
        }
        .node-label {
            font-size: 10px;
            pointer-events: none;
        }
        .controls {
            position: absolute;
            top: 10px;
            left: 10px;
            background-color: rgba(255,255,255,0.8);
            padding: 10px;
            border-radius: 5px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
    </style>
</head>
<body>
    <div id="graph"></div>
    <div class="controls">
        <h3>Law Graph</h3>
        <p>Nodes: {{.NodeCount}}, Edges: {{.EdgeCount}}</p>
        <div>
            <label for="node-type-filter">Filter by node type:</label>
            <select id="node-type-filter">
                <option value="all">All Types</option>
            </select>
        </div>
    </div>

    <script>
        const graphData = {{.GraphData}};

        const simulation = d3.forceSimulation(graphData.nodes)
            .force("link", d3.forceLink(graphData.edges).id(d => d.id).distance(100))
            .force("charge", d3.forceManyBody().strength(-300))
            .force("center", d3.forceCenter(window.innerWidth / 2, window.innerHeight / 2));

        const svg = d3.select("#graph")
            .append("svg")
            .attr("width", "100%")
            .attr("height", "100%")
            .call(d3.zoom().on("zoom", (event) => {
                g.attr("transform", event.transform);
            }));

        const g = svg.append("g");

        const nodeTypes = [...new Set(graphData.nodes.map(node => node.type))];
        const colorScale = d3.scaleOrdinal(d3.schemeCategory10).domain(nodeTypes);

        nodeTypes.forEach(type => {
            d3.select("#node-type-filter")
                .append("option")
                .attr("value", type)
                .text(type);
        });

        const link = g.append("g")
            .selectAll("line")
            .data(graphData.edges)
            .enter()
            .append("line")
            .attr("class", d => "link " + d.partition)
            .attr("stroke-width", d => 1 + d.confidence * 2);

        const node = g.append("g")
            .selectAll("circle")
            .data(graphData.nodes)
            .enter()
            .append("circle")
            .attr("class", "node")
            .attr("r", 8)
            .attr("fill", d => colorScale(d.type))
            .call(d3.drag()
                .on("start", dragstarted)
                .on("drag", dragged)
                .on("end", dragended));

        const label = g.append("g")
            .selectAll("text")
            .data(graphData.nodes)
            .enter()
            .append("text")
            .attr("class", "node-label")
            .attr("dx", 12)
            .attr("dy", ".35em")
            .text(d => d.label);

        node.append("title")
            .text(d => d.label + " (" + d.type + ")");

        link.append("title")
            .text(d => d.relation + " [" + d.partition + ", " + d.confidence.toFixed(2) + "]");

        simulation.on("tick", () => {
            link
                .attr("x1", d => d.source.x)
                .attr("y1", d => d.source.y)
                .attr("x2", d => d.target.x)
                .attr("y2", d => d.target.y);

            node
                .attr("cx", d => d.x)
                .attr("cy", d => d.y);

            label
                .attr("x", d => d.x)
                .attr("y", d => d.y);
        });

        d3.select("#node-type-filter").on("change", function() {
            const selectedType = this.value;

            if (selectedType === "all") {
                node.style("visibility", "visible");
                link.style("visibility", "visible");
                label.style("visibility", "visible");
                return;
            }

            node.style("visibility", d => d.type === selectedType ? "visible" : "hidden");
            label.style("visibility", d => d.type === selectedType ? "visible" : "hidden");
            link.style("visibility", d => {
                const sourceVisible = d.source.type === selectedType;
                const targetVisible = d.target.type === selectedType;
                return sourceVisible || targetVisible ? "visible" : "hidden";
            });
        });

        function dragstarted(event, d) {
            if (!event.active) simulation.alphaTarget(0.3).restart();
            d.fx = d.x;
            d.fy = d.y;
        }

        function dragged(event, d) {
            d.fx = event.x;
            d.fy = event.y;
        }

        function dragended(event, d) {
            if (!event.active) simulation.alphaTarget(0);
            d.fx = null;
            d.fy = null;
        }
    </script>
</body>
</html>
`

// SnapshotNode is one node in an exported snapshot.
type SnapshotNode struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"`
	Label  string   `json:"label"`
	Labels []string `json:"labels,omitempty"`
}

// SnapshotEdge is one edge in an exported snapshot. Source and Target hold
// node ids, matching what d3.forceLink expects.
type SnapshotEdge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Relation   string  `json:"relation"`
	Partition  string  `json:"partition"`
	Confidence float64 `json:"confidence"`
}

// Snapshot is a flattened copy of the stored graph.
type Snapshot struct {
	Nodes []SnapshotNode `json:"nodes"`
	Edges []SnapshotEdge `json:"edges"`
}

// BuildSnapshot reads the full graph out of the store. Edges whose endpoints
// fall outside the snapshot are left out so the force layout never sees a
// dangling reference.
func BuildSnapshot(ctx context.Context, store storage.Store) (*Snapshot, error) {
	snapshot := &Snapshot{}
	present := make(map[string]bool)

	for _, nodeType := range graph.NodeTypes {
		nodes, err := store.NodesByType(ctx, nodeType)
		if err != nil {
			return nil, errors.Wrapf(err, "list %s nodes", nodeType)
		}
		for _, node := range nodes {
			snapshot.Nodes = append(snapshot.Nodes, SnapshotNode{
				ID:     node.Key,
				Type:   string(node.Type),
				Label:  node.DisplayName,
				Labels: node.Labels,
			})
			present[node.Key] = true
		}
	}

	for _, entry := range snapshot.Nodes {
		edges, err := store.EdgesFrom(ctx, entry.ID, "", "")
		if err != nil {
			return nil, errors.Wrapf(err, "edges from %s", entry.ID)
		}
		for _, edge := range edges {
			if !present[edge.ToKey] {
				continue
			}
			snapshot.Edges = append(snapshot.Edges, SnapshotEdge{
				Source:     edge.FromKey,
				Target:     edge.ToKey,
				Relation:   string(edge.Relation),
				Partition:  string(edge.Partition),
				Confidence: edge.Confidence,
			})
		}
	}
	return snapshot, nil
}

// D3Visualizer writes snapshot exports to disk.
type D3Visualizer struct {
	outputPath string
}

// NewD3Visualizer creates a visualizer writing to the given path.
func NewD3Visualizer(outputPath string) *D3Visualizer {
	return &D3Visualizer{outputPath: outputPath}
}

// WriteJSON writes the snapshot as plain JSON.
func (v *D3Visualizer) WriteJSON(snapshot *Snapshot) error {
	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	return v.write(encoded)
}

// WriteHTML renders the snapshot into the self-contained D3 page.
func (v *D3Visualizer) WriteHTML(snapshot *Snapshot) error {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	tmpl, err := template.New("d3").Parse(d3Template)
	if err != nil {
		return errors.Wrap(err, "parse template")
	}

	data := struct {
		GraphData template.JS
		NodeCount int
		EdgeCount int
	}{
		GraphData: template.JS(encoded),
		NodeCount: len(snapshot.Nodes),
		EdgeCount: len(snapshot.Edges),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return errors.Wrap(err, "render template")
	}
	return v.write(buf.Bytes())
}

func (v *D3Visualizer) write(content []byte) error {
	if dir := filepath.Dir(v.outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	return os.WriteFile(v.outputPath, content, 0644)
}
