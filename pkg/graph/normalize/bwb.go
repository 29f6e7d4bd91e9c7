package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
)

// BWBMapper normalizes BWB register XML dumps into one instrument node plus
// an article node per <artikel> element, linked with strict PART_OF_INSTRUMENT
// edges.
type BWBMapper struct{}

// NewBWBMapper returns a mapper for the BWB register.
func NewBWBMapper() *BWBMapper {
	return &BWBMapper{}
}

// Source implements Mapper.
func (m *BWBMapper) Source() string { return "bwb" }

// Kinds implements Mapper.
func (m *BWBMapper) Kinds() []string { return []string{"bwb_xml"} }

// MapNodes implements Mapper.
func (m *BWBMapper) MapNodes(record graph.RawSource) ([]storage.NodeUpsert, error) {
	bwbID := strings.TrimSpace(gjson.GetBytes(record.Payload, "bwb_id").String())
	if bwbID == "" {
		bwbID = strings.TrimSpace(record.ExternalID)
	}
	if bwbID == "" {
		return nil, errors.New("record has no bwb_id")
	}

	xml := gjson.GetBytes(record.Payload, "xml").String()
	if xml == "" {
		return nil, errors.New("record has no xml payload")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(xml))
	if err != nil {
		return nil, errors.Wrapf(err, "parse XML of %s", bwbID)
	}

	title := strings.TrimSpace(doc.Find("citeertitel").First().Text())
	if title == "" {
		title = "BWB-regeling " + bwbID
	}

	nodes := []storage.NodeUpsert{{
		Type: graph.NodeInstrument,
		Properties: map[string]any{
			"bwb_id": bwbID,
			"title":  title,
		},
		Labels: []string{"BWB"},
	}}

	doc.Find("artikel").Each(func(_ int, article *goquery.Selection) {
		number := articleNumber(article)
		if number == "" {
			return
		}
		text := articleText(article)
		if text == "" {
			return
		}
		nodes = append(nodes, storage.NodeUpsert{
			Type: graph.NodeInstrumentArticle,
			Properties: map[string]any{
				"bwb_id":         bwbID,
				"article_number": number,
				"text":           text,
			},
			Labels: []string{"BWB", "Article"},
		})
	})

	if len(nodes) == 1 {
		return nil, errors.Errorf("no articles found in %s", bwbID)
	}
	return nodes, nil
}

// MapEdges implements Mapper.
func (m *BWBMapper) MapEdges(record graph.RawSource, nodes []storage.NodeUpsert) ([]storage.EdgeUpsert, error) {
	var instrumentKey string
	var edges []storage.EdgeUpsert

	for _, node := range nodes {
		key, err := nodeKey(node)
		if err != nil {
			return nil, err
		}
		switch node.Type {
		case graph.NodeInstrument:
			instrumentKey = key
		case graph.NodeInstrumentArticle:
			edges = append(edges, storage.EdgeUpsert{
				FromKey:   key,
				ToKey:     instrumentKey,
				Relation:  graph.RelPartOfInstrument,
				Partition: graph.PartitionStrict,
				Meta:      graph.EdgeMeta{Source: "bwb-normalize"},
			})
		}
	}
	return edges, nil
}

// articleNumber reads the number from <kop><nr>, falling back to the label
// attribute some BWB dumps carry instead.
func articleNumber(article *goquery.Selection) string {
	number := strings.TrimSpace(article.Find("kop nr").First().Text())
	if number != "" {
		return number
	}

	label, _ := article.Attr("label")
	label = strings.TrimSpace(label)
	if remainder, ok := cutPrefixFold(label, "artikel"); ok {
		return strings.TrimLeft(remainder, ":. ")
	}
	return ""
}

// articleText joins the article's numbered paragraphs. Articles without <lid>
// elements fall back to their bare <al> runs.
func articleText(article *goquery.Selection) string {
	var parts []string

	article.Find("lid").Each(func(_ int, lid *goquery.Selection) {
		var texts []string
		lid.ChildrenFiltered("al").Each(func(_ int, al *goquery.Selection) {
			if text := collapseSpace(al.Text()); text != "" {
				texts = append(texts, text)
			}
		})
		if len(texts) == 0 {
			return
		}
		line := strings.Join(texts, " ")
		if nr := strings.TrimSpace(lid.Find("lidnr").First().Text()); nr != "" {
			line = nr + ". " + line
		}
		parts = append(parts, line)
	})

	if len(parts) == 0 {
		article.Find("al").Each(func(_ int, al *goquery.Selection) {
			if text := collapseSpace(al.Text()); text != "" {
				parts = append(parts, text)
			}
		})
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func collapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func cutPrefixFold(text, prefix string) (string, bool) {
	if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
		return text[len(prefix):], true
	}
	return "", false
}
