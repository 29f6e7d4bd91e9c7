package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/profile"
)

func eurlexProfile(t *testing.T) *profile.Profile {
	t.Helper()
	prof, err := profile.Parse([]byte(`
name: strafrecht
topic:
  slug: strafrecht
  label: Strafrecht
eu_instruments:
  - id: 32012L0029
    title: Richtlijn 2012/29/EU
filters:
  title_contains:
    - strafrecht
`))
	require.NoError(t, err)
	return prof
}

func TestEurlexMapper_MapNodes(t *testing.T) {
	mapper := NewEurlexMapper(eurlexProfile(t))
	record, err := graph.NewRawSource("eurlex", "celex_html", "32012L0029", map[string]any{
		"celex": "32012L0029",
		"lang":  "NL",
		"html": `<html><head><title>Fallback</title></head><body>
			<p class="oj-doc-ti">Richtlijn 2012/29/EU   van het Europees Parlement</p>
			<p>Minimumnormen voor slachtoffers.</p></body></html>`,
	})
	require.NoError(t, err)

	nodes, err := mapper.MapNodes(record)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	node := nodes[0]
	assert.Equal(t, graph.NodeInstrument, node.Type)
	assert.Equal(t, "32012L0029", node.Properties["celex"])
	assert.Equal(t, "NL", node.Properties["lang"])
	assert.Equal(t, "Richtlijn 2012/29/EU van het Europees Parlement", node.Properties["title"])
	assert.Contains(t, node.Properties["text"], "Minimumnormen voor slachtoffers.")
	// Listed in the profile's EU instruments, so it gets the topic label
	// even though no keyword matches.
	assert.Equal(t, []string{"EU", "Strafrecht"}, node.Labels)

	edges, err := mapper.MapEdges(record, nodes)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, graph.RelRelatedTopic, edges[0].Relation)
	assert.Equal(t, "strafrecht", edges[0].ToKey)
	assert.Equal(t, "eurlex-normalize", edges[0].Meta.Source)
}

func TestEurlexMapper_TitleFallback(t *testing.T) {
	mapper := NewEurlexMapper(eurlexProfile(t))
	record, err := graph.NewRawSource("eurlex", "celex_html", "32016R0679", map[string]any{
		"html": "<html><head><title>Verordening 2016/679</title></head><body>AVG</body></html>",
	})
	require.NoError(t, err)

	nodes, err := mapper.MapNodes(record)
	require.NoError(t, err)
	assert.Equal(t, "32016R0679", nodes[0].Properties["celex"])
	assert.Equal(t, "Verordening 2016/679", nodes[0].Properties["title"])
	assert.Equal(t, []string{"EU"}, nodes[0].Labels)
}

func TestEurlexMapper_MissingCelex(t *testing.T) {
	mapper := NewEurlexMapper(eurlexProfile(t))
	record, err := graph.NewRawSource("eurlex", "celex_html", "", map[string]any{"html": "<html></html>"})
	require.NoError(t, err)

	_, err = mapper.MapNodes(record)
	assert.Error(t, err)
}

func TestRechtspraakMapper_MapNodes(t *testing.T) {
	mapper := NewRechtspraakMapper(eurlexProfile(t))
	record, err := graph.NewRawSource("rechtspraak", "rs_content", "ECLI:NL:HR:2020:123", map[string]any{
		"ecli":         "ECLI:NL:HR:2020:123",
		"rechtsgebied": "Strafrecht",
		"xml": `<open-rechtspraak><uitspraak>De Hoge Raad overweegt dat het
			strafrecht hier van toepassing is.</uitspraak></open-rechtspraak>`,
	})
	require.NoError(t, err)

	nodes, err := mapper.MapNodes(record)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	node := nodes[0]
	assert.Equal(t, graph.NodeJudgment, node.Type)
	assert.Equal(t, "ECLI:NL:HR:2020:123", node.Properties["ecli"])
	assert.Equal(t, "Strafrecht", node.Properties["rechtsgebied"])
	assert.Contains(t, node.Properties["text"], "De Hoge Raad overweegt")
	assert.Equal(t, []string{"Rechtspraak", "Strafrecht"}, node.Labels)

	edges, err := mapper.MapEdges(record, nodes)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "rechtspraak-normalize", edges[0].Meta.Source)
}

func TestRechtspraakMapper_OutsideDomain(t *testing.T) {
	mapper := NewRechtspraakMapper(eurlexProfile(t))
	record, err := graph.NewRawSource("rechtspraak", "rs_content", "ECLI:NL:RBDHA:2021:5", map[string]any{
		"xml": "<open-rechtspraak><uitspraak>Een bestuursrechtelijke zaak.</uitspraak></open-rechtspraak>",
	})
	require.NoError(t, err)

	nodes, err := mapper.MapNodes(record)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rechtspraak"}, nodes[0].Labels)

	edges, err := mapper.MapEdges(record, nodes)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestRechtspraakMapper_MissingECLI(t *testing.T) {
	mapper := NewRechtspraakMapper(eurlexProfile(t))
	record, err := graph.NewRawSource("rechtspraak", "rs_content", "", map[string]any{"xml": "<uitspraak/>"})
	require.NoError(t, err)

	_, err = mapper.MapNodes(record)
	assert.Error(t, err)
}
