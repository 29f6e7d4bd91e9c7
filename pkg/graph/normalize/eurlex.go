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

// EurlexMapper normalizes EUR-Lex CELEX HTML dumps into EU instrument nodes.
type EurlexMapper struct {
	profile *profile.Profile
}

// NewEurlexMapper returns a mapper for EUR-Lex documents.
func NewEurlexMapper(prof *profile.Profile) *EurlexMapper {
	return &EurlexMapper{profile: prof}
}

// Source implements Mapper.
func (m *EurlexMapper) Source() string { return "eurlex" }

// Kinds implements Mapper.
func (m *EurlexMapper) Kinds() []string { return []string{"celex_html"} }

// MapNodes implements Mapper.
func (m *EurlexMapper) MapNodes(record graph.RawSource) ([]storage.NodeUpsert, error) {
	celex := firstString(record.Payload, "celex")
	if celex == "" {
		celex = strings.TrimSpace(record.ExternalID)
	}
	if celex == "" {
		return nil, errors.New("record has no CELEX number")
	}

	props := map[string]any{"celex": celex}
	if lang := firstString(record.Payload, "lang"); lang != "" {
		props["lang"] = lang
	}

	var title string
	html := gjson.GetBytes(record.Payload, "html").String()
	if html != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, errors.Wrapf(err, "parse HTML of %s", celex)
		}
		title = collapseSpace(doc.Find("p.oj-doc-ti").First().Text())
		if title == "" {
			title = collapseSpace(doc.Find("title").First().Text())
		}
		props["text"] = collapseSpace(doc.Text())
	}
	if title != "" {
		props["title"] = title
	}

	labels := []string{"EU"}
	if m.matchesProfile(celex, title, props) {
		labels = append(labels, m.profile.Topic.Label)
	}

	return []storage.NodeUpsert{{
		Type:       graph.NodeInstrument,
		Properties: props,
		Labels:     labels,
	}}, nil
}

// MapEdges implements Mapper.
func (m *EurlexMapper) MapEdges(record graph.RawSource, nodes []storage.NodeUpsert) ([]storage.EdgeUpsert, error) {
	var edges []storage.EdgeUpsert
	for _, node := range nodes {
		if !hasLabel(node.Labels, topicLabel(m.profile)) {
			continue
		}
		key, err := nodeKey(node)
		if err != nil {
			return nil, err
		}
		if edge, ok := topicEdge(m.profile, key, "eurlex-normalize"); ok {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}

func (m *EurlexMapper) matchesProfile(celex, title string, props map[string]any) bool {
	if m.profile == nil {
		return false
	}
	for _, instrument := range m.profile.EUInstruments {
		if strings.EqualFold(instrument.ID, celex) {
			return true
		}
	}
	text, _ := props["text"].(string)
	return matchesKeywords(m.profile, title, text)
}

func topicLabel(prof *profile.Profile) string {
	if prof == nil {
		return ""
	}
	return prof.Topic.Label
}
