package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
	"lawgraph/pkg/profile"
)

// RechtspraakMapper normalizes Rechtspraak content dumps into judgment nodes.
// The uitspraak body text is extracted up front so the semantic linker does
// not have to parse XML on every scan.
type RechtspraakMapper struct {
	profile *profile.Profile
}

// NewRechtspraakMapper returns a mapper for the Rechtspraak open data feed.
func NewRechtspraakMapper(prof *profile.Profile) *RechtspraakMapper {
	return &RechtspraakMapper{profile: prof}
}

// Source implements Mapper.
func (m *RechtspraakMapper) Source() string { return "rechtspraak" }

// Kinds implements Mapper.
func (m *RechtspraakMapper) Kinds() []string { return []string{"rs_content"} }

// MapNodes implements Mapper.
func (m *RechtspraakMapper) MapNodes(record graph.RawSource) ([]storage.NodeUpsert, error) {
	ecli := firstString(record.Payload, "ecli")
	if ecli == "" {
		ecli = strings.TrimSpace(record.ExternalID)
	}
	if ecli == "" {
		return nil, errors.New("record has no ECLI")
	}

	props := map[string]any{"ecli": ecli}

	xml := gjson.GetBytes(record.Payload, "xml").String()
	if xml != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(xml))
		if err != nil {
			return nil, errors.Wrapf(err, "parse content of %s", ecli)
		}
		body := doc.Find("uitspraak").First()
		if body.Length() == 0 {
			body = doc.Selection
		}
		if text := collapseSpace(body.Text()); text != "" {
			props["text"] = text
		}
	}
	if rechtsgebied := firstString(record.Payload, "rechtsgebied"); rechtsgebied != "" {
		props["rechtsgebied"] = rechtsgebied
	}

	labels := []string{"Rechtspraak"}
	text, _ := props["text"].(string)
	if m.profile != nil && matchesKeywords(m.profile, text) {
		labels = append(labels, m.profile.Topic.Label)
	}

	return []storage.NodeUpsert{{
		Type:       graph.NodeJudgment,
		Properties: props,
		Labels:     labels,
	}}, nil
}

// MapEdges implements Mapper.
func (m *RechtspraakMapper) MapEdges(record graph.RawSource, nodes []storage.NodeUpsert) ([]storage.EdgeUpsert, error) {
	var edges []storage.EdgeUpsert
	for _, node := range nodes {
		if !hasLabel(node.Labels, topicLabel(m.profile)) {
			continue
		}
		key, err := nodeKey(node)
		if err != nil {
			return nil, err
		}
		if edge, ok := topicEdge(m.profile, key, "rechtspraak-normalize"); ok {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}
