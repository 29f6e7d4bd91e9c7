package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/metrics"
)

// Neo4jStore implements Store on a Neo4j database. Every node carries the
// shared Entity label plus a per-type label; nested property values are
// persisted as one JSON document per node so the Go-side merge contract is
// the single source of truth. Keyed writes run inside write transactions,
// which gives the per-key atomicity the concurrency model relies on.
type Neo4jStore struct {
	driver neo4j.Driver
	logger *logrus.Logger
}

// Neo4j node labels per node type.
var typeLabels = map[graph.NodeType]string{
	graph.NodeInstrument:        "Instrument",
	graph.NodeInstrumentArticle: "InstrumentArticle",
	graph.NodeProcedure:         "Procedure",
	graph.NodePublication:       "Publication",
	graph.NodeJudgment:          "Judgment",
	graph.NodeTopic:             "Topic",
}

// NewNeo4jStore connects to Neo4j and ensures the uniqueness constraints the
// merge contract depends on.
func NewNeo4jStore(uri, username, password string, logger *logrus.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errors.Wrap(err, "create Neo4j driver")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	store := &Neo4jStore{driver: driver, logger: logger}
	if err := store.ensureSchema(); err != nil {
		_ = driver.Close()
		return nil, err
	}
	return store, nil
}

func (s *Neo4jStore) ensureSchema() error {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	statements := []string{
		`CREATE CONSTRAINT entity_graph_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.graph_id IS UNIQUE`,
		`CREATE CONSTRAINT raw_source_id IF NOT EXISTS FOR (r:RawSource) REQUIRE r.id IS UNIQUE`,
	}
	for _, statement := range statements {
		if _, err := session.Run(statement, nil); err != nil {
			return errors.Wrap(err, "ensure schema")
		}
	}
	return nil
}

// graphID is the storage-level node identity: keys are unique within a type,
// not across the graph.
func graphID(nodeType graph.NodeType, key string) string {
	return string(nodeType) + "/" + key
}

// UpsertNode implements Store.
func (s *Neo4jStore) UpsertNode(ctx context.Context, upsert NodeUpsert) (string, error) {
	if !upsert.Type.Valid() {
		return "", &graph.InvalidIdentityError{Type: upsert.Type, Field: "type"}
	}
	key, err := graph.DeriveNodeKey(upsert.Type, upsert.Properties)
	if err != nil {
		return "", err
	}

	err = runWithRetry(ctx, s.logger, "upsert-node", func() error {
		session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close()

		_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
			return nil, s.upsertNodeTx(tx, upsert, key)
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *Neo4jStore) upsertNodeTx(tx neo4j.Transaction, upsert NodeUpsert, key string) error {
	id := graphID(upsert.Type, key)

	// Keys anchor edge endpoints without a type, so a key may belong to one
	// node type only.
	collision, err := tx.Run(
		`MATCH (n:Entity {key: $key}) WHERE n.type <> $type RETURN n.type LIMIT 1`,
		map[string]interface{}{"key": key, "type": string(upsert.Type)})
	if err != nil {
		return errors.Wrap(err, "check key collision")
	}
	if collision.Next() {
		return &graph.KeyCollisionError{
			Key:       key,
			Requested: upsert.Type,
			Existing:  graph.NodeType(toString(collision.Record().Values[0])),
		}
	}
	if err := collision.Err(); err != nil {
		return errors.Wrap(err, "check key collision")
	}

	result, err := tx.Run(
		`MATCH (n:Entity {graph_id: $graphID}) RETURN n.props_json, n.labels`,
		map[string]interface{}{"graphID": id})
	if err != nil {
		return errors.Wrap(err, "load node for merge")
	}

	properties := upsert.Properties
	labels := upsert.Labels
	outcome := "created"
	if result.Next() {
		record := result.Record()
		existingProps, err := decodeProps(record.Values[0])
		if err != nil {
			return errors.Wrapf(err, "decode properties of %s", id)
		}
		properties = graph.MergeProperties(existingProps, upsert.Properties)
		labels = graph.UnionStrings(toStringSlice(record.Values[1]), upsert.Labels)
		outcome = "updated"
	} else {
		properties = graph.MergeProperties(nil, upsert.Properties)
		labels = graph.UnionStrings(nil, upsert.Labels)
	}
	if err := result.Err(); err != nil {
		return errors.Wrap(err, "load node for merge")
	}

	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return errors.Wrapf(err, "encode properties of %s", id)
	}

	query := fmt.Sprintf(`
		MERGE (n:Entity {graph_id: $graphID})
		ON CREATE SET n.created_at = datetime()
		SET n:%s,
			n.type = $type,
			n.key = $key,
			n.props_json = $propsJSON,
			n.labels = $labels,
			n.display_name = $displayName,
			n.updated_at = datetime()
	`, typeLabels[upsert.Type])

	_, err = tx.Run(query, map[string]interface{}{
		"graphID":     id,
		"type":        string(upsert.Type),
		"key":         key,
		"propsJSON":   string(propsJSON),
		"labels":      labels,
		"displayName": graph.DisplayName(upsert.Type, properties),
	})
	if err != nil {
		return errors.Wrapf(err, "merge node %s", id)
	}

	metrics.NodesUpserted.WithLabelValues(string(upsert.Type), outcome).Inc()
	return nil
}

// UpsertEdge implements Store.
func (s *Neo4jStore) UpsertEdge(ctx context.Context, upsert EdgeUpsert) (string, error) {
	upsert.normalize()
	edgeKey := graph.DeriveEdgeKey(upsert.FromKey, upsert.ToKey, upsert.Relation)

	err := runWithRetry(ctx, s.logger, "upsert-edge", func() error {
		session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close()

		_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
			return nil, s.upsertEdgeTx(tx, upsert, edgeKey)
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return edgeKey, nil
}

func (s *Neo4jStore) upsertEdgeTx(tx neo4j.Transaction, upsert EdgeUpsert, edgeKey string) error {
	// Endpoint existence first: a dangling edge must not be half-created.
	result, err := tx.Run(`
		OPTIONAL MATCH (from:Entity {key: $fromKey})
		OPTIONAL MATCH (to:Entity {key: $toKey})
		RETURN from IS NOT NULL AS fromExists, to IS NOT NULL AS toExists
	`, map[string]interface{}{"fromKey": upsert.FromKey, "toKey": upsert.ToKey})
	if err != nil {
		return errors.Wrap(err, "check edge endpoints")
	}
	if result.Next() {
		record := result.Record()
		if exists, _ := record.Values[0].(bool); !exists {
			return &graph.DanglingReferenceError{Key: upsert.FromKey}
		}
		if exists, _ := record.Values[1].(bool); !exists {
			return &graph.DanglingReferenceError{Key: upsert.ToKey}
		}
	}
	if err := result.Err(); err != nil {
		return errors.Wrap(err, "check edge endpoints")
	}

	query := fmt.Sprintf(`
		MATCH (from:Entity {key: $fromKey})-[r:%s]->(to:Entity {key: $toKey})
		RETURN r.partition, r.confidence, r.occurrences, r.snippet, r.raw_match, r.source
	`, upsert.Relation)
	result, err = tx.Run(query, map[string]interface{}{
		"fromKey": upsert.FromKey,
		"toKey":   upsert.ToKey,
	})
	if err != nil {
		return errors.Wrap(err, "load edge for merge")
	}

	existingByPartition := make(map[graph.Partition]graph.Edge)
	for result.Next() {
		record := result.Record()
		partition := graph.Partition(toString(record.Values[0]))
		existingByPartition[partition] = graph.Edge{
			Key:        edgeKey,
			FromKey:    upsert.FromKey,
			ToKey:      upsert.ToKey,
			Relation:   upsert.Relation,
			Partition:  partition,
			Confidence: toFloat(record.Values[1]),
			Meta: graph.EdgeMeta{
				Occurrences: int(toInt(record.Values[2])),
				Snippet:     toString(record.Values[3]),
				RawMatch:    toString(record.Values[4]),
				Source:      toString(record.Values[5]),
			},
		}
	}
	if err := result.Err(); err != nil {
		return errors.Wrap(err, "load edge for merge")
	}

	if !partitionAllowsCoexistence(upsert.Relation) {
		if _, claimed := existingByPartition[upsert.Partition.Other()]; claimed {
			return &graph.PartitionConflictError{
				EdgeKey:   edgeKey,
				Existing:  upsert.Partition.Other(),
				Requested: upsert.Partition,
			}
		}
	}

	edge, ok := existingByPartition[upsert.Partition]
	if ok {
		graph.MergeEdge(&edge, graph.Edge{Confidence: upsert.Confidence, Meta: upsert.Meta})
	} else {
		edge = graph.Edge{
			Key:        edgeKey,
			FromKey:    upsert.FromKey,
			ToKey:      upsert.ToKey,
			Relation:   upsert.Relation,
			Partition:  upsert.Partition,
			Confidence: upsert.Confidence,
			Meta:       upsert.Meta,
		}
	}

	query = fmt.Sprintf(`
		MATCH (from:Entity {key: $fromKey}), (to:Entity {key: $toKey})
		MERGE (from)-[r:%s {partition: $partition}]->(to)
		ON CREATE SET r.created_at = datetime()
		SET r.key = $edgeKey,
			r.confidence = $confidence,
			r.occurrences = $occurrences,
			r.snippet = $snippet,
			r.raw_match = $rawMatch,
			r.source = $source,
			r.updated_at = datetime()
	`, upsert.Relation)

	_, err = tx.Run(query, map[string]interface{}{
		"fromKey":     upsert.FromKey,
		"toKey":       upsert.ToKey,
		"partition":   string(upsert.Partition),
		"edgeKey":     edgeKey,
		"confidence":  edge.Confidence,
		"occurrences": edge.Meta.Occurrences,
		"snippet":     edge.Meta.Snippet,
		"rawMatch":    edge.Meta.RawMatch,
		"source":      edge.Meta.Source,
	})
	if err != nil {
		return errors.Wrapf(err, "merge edge %s", edgeKey)
	}

	metrics.EdgesUpserted.WithLabelValues(string(upsert.Relation), string(upsert.Partition)).Inc()
	return nil
}

// GetNode implements Store.
func (s *Neo4jStore) GetNode(ctx context.Context, nodeType graph.NodeType, key string) (*graph.Node, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.Run(
		`MATCH (n:Entity {graph_id: $graphID})
		 RETURN n.props_json, n.labels, n.display_name`,
		map[string]interface{}{"graphID": graphID(nodeType, key)})
	if err != nil {
		return nil, errors.Wrap(err, "get node")
	}

	if !result.Next() {
		if err := result.Err(); err != nil {
			return nil, errors.Wrap(err, "get node")
		}
		return nil, graph.ErrNodeNotFound
	}
	record := result.Record()
	properties, err := decodeProps(record.Values[0])
	if err != nil {
		return nil, errors.Wrapf(err, "decode properties of %s/%s", nodeType, key)
	}

	return &graph.Node{
		Type:        nodeType,
		Key:         key,
		Properties:  properties,
		Labels:      toStringSlice(record.Values[1]),
		DisplayName: toString(record.Values[2]),
	}, nil
}

// HasNode implements Store.
func (s *Neo4jStore) HasNode(ctx context.Context, key string) (bool, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.Run(
		`MATCH (n:Entity {key: $key}) RETURN count(n) > 0`,
		map[string]interface{}{"key": key})
	if err != nil {
		return false, errors.Wrap(err, "check node")
	}
	if result.Next() {
		exists, _ := result.Record().Values[0].(bool)
		return exists, nil
	}
	return false, result.Err()
}

// NodesByType implements Store.
func (s *Neo4jStore) NodesByType(ctx context.Context, nodeType graph.NodeType) ([]graph.Node, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.Run(
		`MATCH (n:Entity {type: $type})
		 RETURN n.key, n.props_json, n.labels, n.display_name
		 ORDER BY n.key`,
		map[string]interface{}{"type": string(nodeType)})
	if err != nil {
		return nil, errors.Wrap(err, "list nodes")
	}

	var nodes []graph.Node
	for result.Next() {
		record := result.Record()
		properties, err := decodeProps(record.Values[1])
		if err != nil {
			return nil, errors.Wrap(err, "decode node properties")
		}
		nodes = append(nodes, graph.Node{
			Type:        nodeType,
			Key:         toString(record.Values[0]),
			Properties:  properties,
			Labels:      toStringSlice(record.Values[2]),
			DisplayName: toString(record.Values[3]),
		})
	}
	return nodes, result.Err()
}

// EdgesFrom implements Store.
func (s *Neo4jStore) EdgesFrom(ctx context.Context, fromKey string, relation graph.Relation, partition graph.Partition) ([]graph.Edge, error) {
	return s.queryEdges(`MATCH (from:Entity {key: $key})-[r]->(to:Entity)`, fromKey, relation, partition)
}

// EdgesTo implements Store.
func (s *Neo4jStore) EdgesTo(ctx context.Context, toKey string, relation graph.Relation, partition graph.Partition) ([]graph.Edge, error) {
	return s.queryEdges(`MATCH (from:Entity)-[r]->(to:Entity {key: $key})`, toKey, relation, partition)
}

func (s *Neo4jStore) queryEdges(matchClause, key string, relation graph.Relation, partition graph.Partition) ([]graph.Edge, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := matchClause + `
		WHERE ($relation = '' OR type(r) = $relation)
		  AND ($partition = '' OR r.partition = $partition)
		RETURN from.key, to.key, type(r), r.partition, r.confidence,
		       r.occurrences, r.snippet, r.raw_match, r.source
	`
	result, err := session.Run(query, map[string]interface{}{
		"key":       key,
		"relation":  string(relation),
		"partition": string(partition),
	})
	if err != nil {
		return nil, errors.Wrap(err, "query edges")
	}

	var edges []graph.Edge
	for result.Next() {
		record := result.Record()
		fromKey := toString(record.Values[0])
		toKey := toString(record.Values[1])
		rel := graph.Relation(toString(record.Values[2]))
		edges = append(edges, graph.Edge{
			Key:        graph.DeriveEdgeKey(fromKey, toKey, rel),
			FromKey:    fromKey,
			ToKey:      toKey,
			Relation:   rel,
			Partition:  graph.Partition(toString(record.Values[3])),
			Confidence: toFloat(record.Values[4]),
			Meta: graph.EdgeMeta{
				Occurrences: int(toInt(record.Values[5])),
				Snippet:     toString(record.Values[6]),
				RawMatch:    toString(record.Values[7]),
				Source:      toString(record.Values[8]),
			},
		})
	}
	if err := result.Err(); err != nil {
		return nil, errors.Wrap(err, "query edges")
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Partition != edges[j].Partition {
			return edges[i].Partition < edges[j].Partition
		}
		return edges[i].Key < edges[j].Key
	})
	return edges, nil
}

// InsertRawSource implements Store.
func (s *Neo4jStore) InsertRawSource(ctx context.Context, record graph.RawSource) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.FetchedAt.IsZero() {
		record.FetchedAt = time.Now().UTC()
	}

	err := runWithRetry(ctx, s.logger, "insert-raw-source", func() error {
		session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close()

		_, err := session.Run(`
			CREATE (r:RawSource {
				id: $id,
				source: $source,
				kind: $kind,
				external_id: $externalID,
				payload: $payload,
				fetched_at: $fetchedAt
			})
		`, map[string]interface{}{
			"id":         record.ID,
			"source":     record.Source,
			"kind":       record.Kind,
			"externalID": record.ExternalID,
			"payload":    string(record.Payload),
			"fetchedAt":  record.FetchedAt.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "insert raw source")
	}
	return record.ID, nil
}

// RawSources implements Store.
func (s *Neo4jStore) RawSources(ctx context.Context, source string, kinds []string, since time.Time) ([]graph.RawSource, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	sinceISO := ""
	if !since.IsZero() {
		sinceISO = since.UTC().Format(time.RFC3339)
	}

	result, err := session.Run(`
		MATCH (r:RawSource)
		WHERE ($source = '' OR r.source = $source)
		  AND (size($kinds) = 0 OR r.kind IN $kinds)
		  AND ($since = '' OR r.fetched_at >= $since)
		RETURN r.id, r.source, r.kind, r.external_id, r.payload, r.fetched_at
		ORDER BY r.fetched_at
	`, map[string]interface{}{
		"source": source,
		"kinds":  kinds,
		"since":  sinceISO,
	})
	if err != nil {
		return nil, errors.Wrap(err, "query raw sources")
	}

	var records []graph.RawSource
	for result.Next() {
		values := result.Record().Values
		fetchedAt, _ := time.Parse(time.RFC3339, toString(values[5]))
		records = append(records, graph.RawSource{
			ID:         toString(values[0]),
			Source:     toString(values[1]),
			Kind:       toString(values[2]),
			ExternalID: toString(values[3]),
			Payload:    json.RawMessage(toString(values[4])),
			FetchedAt:  fetchedAt,
		})
	}
	return records, result.Err()
}

// CountNodes implements Store.
func (s *Neo4jStore) CountNodes(ctx context.Context) (map[graph.NodeType]int, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.Run(
		`MATCH (n:Entity) RETURN n.type, count(*)`, nil)
	if err != nil {
		return nil, errors.Wrap(err, "count nodes")
	}

	counts := make(map[graph.NodeType]int, len(graph.NodeTypes))
	for _, nodeType := range graph.NodeTypes {
		counts[nodeType] = 0
	}
	for result.Next() {
		values := result.Record().Values
		counts[graph.NodeType(toString(values[0]))] = int(toInt(values[1]))
	}
	return counts, result.Err()
}

// CountEdges implements Store.
func (s *Neo4jStore) CountEdges(ctx context.Context) (map[graph.Partition]int, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.Run(
		`MATCH (:Entity)-[r]->(:Entity) RETURN r.partition, count(*)`, nil)
	if err != nil {
		return nil, errors.Wrap(err, "count edges")
	}

	counts := map[graph.Partition]int{
		graph.PartitionStrict:   0,
		graph.PartitionSemantic: 0,
	}
	for result.Next() {
		values := result.Record().Values
		counts[graph.Partition(toString(values[0]))] = int(toInt(values[1]))
	}
	return counts, result.Err()
}

// Close implements Store.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close()
}

func decodeProps(value interface{}) (map[string]any, error) {
	encoded := toString(value)
	if encoded == "" {
		return map[string]any{}, nil
	}
	var properties map[string]any
	if err := json.Unmarshal([]byte(encoded), &properties); err != nil {
		return nil, err
	}
	return properties, nil
}

func toString(value interface{}) string {
	if text, ok := value.(string); ok {
		return text
	}
	return ""
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func toInt(value interface{}) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func toStringSlice(value interface{}) []string {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}
	strings := make([]string, 0, len(list))
	for _, item := range list {
		if text, ok := item.(string); ok {
			strings = append(strings, text)
		}
	}
	return strings
}
