package normalize

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/storage"
	"lawgraph/pkg/profile"
)

const (
	kindTKZaak           = "tk_zaak"
	kindTKDocumentversie = "tk_documentversie"
)

// TKMapper normalizes Tweede Kamer records: a Zaak becomes a procedure node,
// a DocumentVersie becomes a publication node linked to its procedure with a
// strict PART_OF_PROCEDURE edge. Nodes matching the profile's keyword filters
// get a semantic RELATED_TOPIC edge to the topic node.
type TKMapper struct {
	profile *profile.Profile
}

// NewTKMapper returns a mapper for the Tweede Kamer open data feed.
func NewTKMapper(prof *profile.Profile) *TKMapper {
	return &TKMapper{profile: prof}
}

// Source implements Mapper.
func (m *TKMapper) Source() string { return "tk" }

// Kinds implements Mapper.
func (m *TKMapper) Kinds() []string { return []string{kindTKZaak, kindTKDocumentversie} }

// MapNodes implements Mapper.
func (m *TKMapper) MapNodes(record graph.RawSource) ([]storage.NodeUpsert, error) {
	switch record.Kind {
	case kindTKZaak:
		return m.mapZaak(record)
	case kindTKDocumentversie:
		return m.mapDocumentversie(record)
	default:
		return nil, errors.Errorf("unknown TK record kind %q", record.Kind)
	}
}

func (m *TKMapper) mapZaak(record graph.RawSource) ([]storage.NodeUpsert, error) {
	externalID := firstString(record.Payload, "Id", "ZaakId", "ZaakNummer")
	if externalID == "" {
		return nil, errors.New("zaak has no identifiable external id")
	}

	title := firstString(record.Payload, "Titel", "ZaakTitel", "Omschrijving")
	onderwerp := firstString(record.Payload, "Onderwerp")

	props := map[string]any{"external_id": externalID}
	if title != "" {
		props["title"] = title
	}
	if onderwerp != "" {
		props["onderwerp"] = onderwerp
	}

	labels := []string{"TK"}
	if m.matchesProfile(record, title, onderwerp) {
		labels = append(labels, m.profile.Topic.Label)
	}

	return []storage.NodeUpsert{{
		Type:       graph.NodeProcedure,
		Properties: props,
		Labels:     labels,
	}}, nil
}

func (m *TKMapper) mapDocumentversie(record graph.RawSource) ([]storage.NodeUpsert, error) {
	externalID := firstString(record.Payload, "Id", "DocumentVersieId")
	if externalID == "" {
		return nil, errors.New("documentversie has no identifiable external id")
	}

	title := firstString(record.Payload, "Titel", "TitelMetBijlagen")

	props := map[string]any{"external_id": externalID}
	if title != "" {
		props["title"] = title
	}
	if procedureID := firstString(record.Payload, "ZaakId", "ZaakNummer"); procedureID != "" {
		props["procedure_external_id"] = procedureID
	}

	labels := []string{"TK"}
	if m.matchesProfile(record, title) {
		labels = append(labels, m.profile.Topic.Label)
	}

	return []storage.NodeUpsert{{
		Type:       graph.NodePublication,
		Properties: props,
		Labels:     labels,
	}}, nil
}

// MapEdges implements Mapper.
func (m *TKMapper) MapEdges(record graph.RawSource, nodes []storage.NodeUpsert) ([]storage.EdgeUpsert, error) {
	var edges []storage.EdgeUpsert

	for _, node := range nodes {
		key, err := nodeKey(node)
		if err != nil {
			return nil, err
		}

		if node.Type == graph.NodePublication {
			if procedureID, _ := node.Properties["procedure_external_id"].(string); procedureID != "" {
				procedureKey, err := graph.DeriveNodeKey(graph.NodeProcedure, map[string]any{
					"external_id": procedureID,
				})
				if err != nil {
					return nil, err
				}
				edges = append(edges, storage.EdgeUpsert{
					FromKey:   key,
					ToKey:     procedureKey,
					Relation:  graph.RelPartOfProcedure,
					Partition: graph.PartitionStrict,
					Meta:      graph.EdgeMeta{Source: "tk-documentversie"},
				})
			}
		}

		if hasLabel(node.Labels, topicLabel(m.profile)) {
			if edge, ok := topicEdge(m.profile, key, "tk-normalize"); ok {
				edges = append(edges, edge)
			}
		}
	}
	return edges, nil
}

func (m *TKMapper) matchesProfile(record graph.RawSource, titles ...string) bool {
	if m.profile == nil {
		return false
	}
	if matchesKeywords(m.profile, titles...) {
		return true
	}
	// Dossier keywords match against the full payload, titles are not the
	// only place a dossier reference shows up.
	if len(m.profile.Filters.DossierKeywords) > 0 {
		return matchesKeywords(m.profile, string(record.Payload))
	}
	return false
}

func hasLabel(labels []string, label string) bool {
	if label == "" {
		return false
	}
	for _, candidate := range labels {
		if candidate == label {
			return true
		}
	}
	return false
}

// firstString returns the first non-empty field among the given payload
// paths.
func firstString(payload []byte, paths ...string) string {
	for _, path := range paths {
		if value := strings.TrimSpace(gjson.GetBytes(payload, path).String()); value != "" {
			return value
		}
	}
	return ""
}
