package cypher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
)

var _ graph.Store = (*Store)(nil)

const (
	// vertexLabel is carried by every node next to its domain label so lookups by id can use
	// one index.
	vertexLabel = "Vertex"
	propID      = "id"
	propOrder   = "_order"
	propLock    = "_lock"
)

// Store implements graph.Store over Bolt. Each Read and Write is one managed transaction.
type Store struct {
	client     *Client
	logger     ectologger.Logger
	uniqueKeys map[models.Label]string
}

func NewStore(client *Client, logger ectologger.Logger) *Store {
	return &Store{
		client:     client,
		logger:     logger,
		uniqueKeys: models.UniqueKeys(),
	}
}

func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, r graph.Reader) error) error {
	var fnErr error
	_, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		fnErr = fn(ctx, &boltTx{tx: tx, uniqueKeys: s.uniqueKeys})
		return nil, fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return storeError(err)
}

// Write runs fn in a managed write transaction. The driver may run fn again after a transient
// failure such as a Memgraph write conflict; only the last run commits.
func (s *Store) Write(ctx context.Context, fn func(ctx context.Context, w graph.Writer) error) error {
	var fnErr error
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		fnErr = fn(ctx, &boltTx{tx: tx, uniqueKeys: s.uniqueKeys, writable: true})
		return nil, fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return storeError(err)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.VerifyConnectivity(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

type boltTx struct {
	tx         neo4j.ManagedTransaction
	uniqueKeys map[models.Label]string
	writable   bool
}

func (t *boltTx) GetVertex(ctx context.Context, id string) (*graph.Vertex, error) {
	cypher := fmt.Sprintf(`MATCH (n:%s {id: $id}) RETURN n`, vertexLabel)
	return t.single(ctx, cypher, map[string]any{"id": id})
}

func (t *boltTx) FindVertex(ctx context.Context, label models.Label, key string, value any) (*graph.Vertex, error) {
	cypher := fmt.Sprintf(`
		MATCH (n:%s:%s)
		WHERE n.%s = $value
		RETURN n
		ORDER BY n.%s, n.id
		LIMIT 1
	`, vertexLabel, sanitizeLabel(string(label)), sanitizeLabel(key), propOrder)
	return t.single(ctx, cypher, map[string]any{"value": value})
}

func (t *boltTx) single(ctx context.Context, cypher string, params map[string]any) (*graph.Vertex, error) {
	vertices, err := t.vertices(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	if len(vertices) == 0 {
		return nil, graph.ErrNotFound
	}
	return vertices[0], nil
}

func (t *boltTx) ListVertices(ctx context.Context, label models.Label) ([]*graph.Vertex, error) {
	var cypher string
	if label == "" {
		cypher = fmt.Sprintf(`MATCH (n:%s) RETURN n ORDER BY n.id`, vertexLabel)
	} else {
		cypher = fmt.Sprintf(`MATCH (n:%s:%s) RETURN n ORDER BY n.%s, n.id`, vertexLabel, sanitizeLabel(string(label)), propOrder)
	}
	return t.vertices(ctx, cypher, nil)
}

func (t *boltTx) vertices(ctx context.Context, cypher string, params map[string]any) ([]*graph.Vertex, error) {
	result, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, storeError(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	vertices := make([]*graph.Vertex, 0, len(records))
	for _, record := range records {
		raw, _ := record.Get("n")
		node, ok := raw.(neo4j.Node)
		if !ok {
			return nil, fmt.Errorf("cypher: expected node, got %T", raw)
		}
		vertices = append(vertices, toVertex(node))
	}
	return vertices, nil
}

func (t *boltTx) Edges(ctx context.Context, id string, dir graph.Direction, types ...models.EdgeType) ([]*graph.Edge, error) {
	pattern := "(n:%[1]s {id: $id})-[r]->(m:%[1]s)"
	if dir == graph.Incoming {
		pattern = "(n:%[1]s {id: $id})<-[r]-(m:%[1]s)"
	}

	params := map[string]any{"id": id}
	where := ""
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, edgeType := range types {
			names[i] = string(edgeType)
		}
		params["types"] = names
		where = "WHERE type(r) IN $types"
	}

	cypher := fmt.Sprintf(`
		MATCH `+pattern+`
		%[2]s
		RETURN r, type(r) AS rel_type, startNode(r).id AS source, endNode(r).id AS target
		ORDER BY r.%[3]s, r.id
	`, vertexLabel, where, propOrder)

	result, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, storeError(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	edges := make([]*graph.Edge, 0, len(records))
	for _, record := range records {
		raw, _ := record.Get("r")
		rel, ok := raw.(neo4j.Relationship)
		if !ok {
			return nil, fmt.Errorf("cypher: expected relationship, got %T", raw)
		}
		edgeType, _ := record.Get("rel_type")
		from, _ := record.Get("source")
		to, _ := record.Get("target")

		props := stripInternal(rel.Props)
		edges = append(edges, &graph.Edge{
			ID:    fmt.Sprint(rel.Props[propID]),
			Type:  models.EdgeType(fmt.Sprint(edgeType)),
			From:  fmt.Sprint(from),
			To:    fmt.Sprint(to),
			Props: props,
		})
	}
	return edges, nil
}

func (t *boltTx) CreateVertex(ctx context.Context, label models.Label, props map[string]any) (*graph.Vertex, error) {
	if !t.writable {
		return nil, fmt.Errorf("cypher: write in read transaction")
	}

	// Memgraph checks unique constraints at commit; check here so the caller sees the duplicate
	// inside its own transaction.
	if key, ok := t.uniqueKeys[label]; ok {
		if value, ok := props[key]; ok {
			_, err := t.FindVertex(ctx, label, key, value)
			if err == nil {
				return nil, fmt.Errorf("%w: %s.%s = %v", graph.ErrDuplicateKey, label, key, value)
			}
			if !errors.Is(err, graph.ErrNotFound) {
				return nil, err
			}
		}
	}

	id := uuid.NewString()
	cypher := fmt.Sprintf(`
		CREATE (n:%s:%s)
		SET n = $props
		RETURN n
	`, vertexLabel, sanitizeLabel(string(label)))

	stored := copyProps(props)
	stored[propID] = id
	stored[propOrder] = time.Now().UnixNano()

	created, err := t.single(ctx, cypher, map[string]any{"props": stored})
	if err != nil {
		return nil, fmt.Errorf("cypher: create %s vertex: %w", label, err)
	}
	return created, nil
}

func (t *boltTx) CreateEdge(ctx context.Context, edgeType models.EdgeType, from, to string, props map[string]any) (*graph.Edge, error) {
	if !t.writable {
		return nil, fmt.Errorf("cypher: write in read transaction")
	}

	id := uuid.NewString()
	cypher := fmt.Sprintf(`
		MATCH (a:%[1]s {id: $from}), (b:%[1]s {id: $to})
		CREATE (a)-[r:%[2]s]->(b)
		SET r = $props
		RETURN r.id AS id
	`, vertexLabel, sanitizeLabel(string(edgeType)))

	stored := copyProps(props)
	stored[propID] = id
	stored[propOrder] = time.Now().UnixNano()

	result, err := t.tx.Run(ctx, cypher, map[string]any{"from": from, "to": to, "props": stored})
	if err != nil {
		return nil, storeError(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("edge %s from %s to %s: %w", edgeType, from, to, graph.ErrNotFound)
	}

	return &graph.Edge{ID: id, Type: edgeType, From: from, To: to, Props: copyProps(props)}, nil
}

// Lock writes to the vertex so the transaction holds its write lock until it ends. On Memgraph
// a competing writer fails with a transient conflict and the driver retries it.
func (t *boltTx) Lock(ctx context.Context, id string) error {
	if !t.writable {
		return fmt.Errorf("cypher: lock in read transaction")
	}

	cypher := fmt.Sprintf(`
		MATCH (n:%s {id: $id})
		SET n.%[2]s = true
		REMOVE n.%[2]s
		RETURN n
	`, vertexLabel, propLock)
	_, err := t.single(ctx, cypher, map[string]any{"id": id})
	return err
}

func toVertex(node neo4j.Node) *graph.Vertex {
	label := ""
	labels := append([]string(nil), node.Labels...)
	sort.Strings(labels)
	for _, l := range labels {
		if l != vertexLabel {
			label = l
			break
		}
	}
	return &graph.Vertex{
		ID:    fmt.Sprint(node.Props[propID]),
		Label: models.Label(label),
		Props: stripInternal(node.Props),
	}
}

func stripInternal(props map[string]any) map[string]any {
	cleaned := make(map[string]any, len(props))
	for k, v := range props {
		if k == propID || strings.HasPrefix(k, "_") {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

func copyProps(props map[string]any) map[string]any {
	cp := make(map[string]any, len(props)+2)
	for k, v := range props {
		cp[k] = v
	}
	return cp
}

func storeError(err error) error {
	if err == nil {
		return nil
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && strings.Contains(neoErr.Code, "ConstraintValidationFailed") {
		return fmt.Errorf("%w: %s", graph.ErrDuplicateKey, neoErr.Msg)
	}
	if strings.Contains(strings.ToLower(err.Error()), "unique constraint violation") {
		return fmt.Errorf("%w: %s", graph.ErrDuplicateKey, err.Error())
	}
	// Driver errors stay unwrapped so the retry logic can classify them.
	return err
}

// sanitizeLabel ensures the label is safe for Cypher
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return vertexLabel
	}
	return b.String()
}
