// Package postgres stores the property graph in two tables, vertices and edges, with JSONB
// properties. Natural keys are enforced by a partial unique index on (label, unique_key) and
// Writer.Lock is SELECT ... FOR UPDATE on the vertex row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var _ graph.Store = (*Store)(nil)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type vertexRow struct {
	ID    string                         `db:"id"`
	Label string                         `db:"label"`
	Props database.JSONB[map[string]any] `db:"props"`
}

func (r vertexRow) vertex() *graph.Vertex {
	props := r.Props.Data
	if props == nil {
		props = map[string]any{}
	}
	return &graph.Vertex{ID: r.ID, Label: models.Label(r.Label), Props: props}
}

type edgeRow struct {
	ID    string                         `db:"id"`
	Type  string                         `db:"type"`
	From  string                         `db:"from_id"`
	To    string                         `db:"to_id"`
	Props database.JSONB[map[string]any] `db:"props"`
}

func (r edgeRow) edge() *graph.Edge {
	props := r.Props.Data
	if props == nil {
		props = map[string]any{}
	}
	return &graph.Edge{ID: r.ID, Type: models.EdgeType(r.Type), From: r.From, To: r.To, Props: props}
}

// Store implements graph.Store on PostgreSQL.
type Store struct {
	db         database.DB
	logger     ectologger.Logger
	uniqueKeys map[models.Label]string
}

func NewStore(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		db:         db,
		logger:     logger,
		uniqueKeys: models.UniqueKeys(),
	}
}

func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, r graph.Reader) error) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.Read")
	defer span.End()

	return database.RunInTx(ctx, s.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx database.Tx) error {
		return fn(ctx, &pgTx{tx: tx, uniqueKeys: s.uniqueKeys})
	})
}

// Write runs fn at READ COMMITTED. Statements after a Lock see every commit that happened
// before the lock was granted.
func (s *Store) Write(ctx context.Context, fn func(ctx context.Context, w graph.Writer) error) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.Write")
	defer span.End()

	return database.RunInTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx database.Tx) error {
		return fn(ctx, &pgTx{tx: tx, uniqueKeys: s.uniqueKeys, writable: true})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

type pgTx struct {
	tx         database.Tx
	uniqueKeys map[models.Label]string
	writable   bool
}

func (t *pgTx) GetVertex(ctx context.Context, id string) (*graph.Vertex, error) {
	if !validID(id) {
		return nil, graph.ErrNotFound
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "label", "props")
	sb.From("vertices")
	sb.Where(sb.Equal("id", id))

	return t.getVertex(ctx, sb)
}

func (t *pgTx) FindVertex(ctx context.Context, label models.Label, key string, value any) (*graph.Vertex, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "label", "props")
	sb.From("vertices")
	if t.uniqueKeys[label] == key {
		sb.Where(sb.Equal("label", string(label)), sb.Equal("unique_key", fmt.Sprint(value)))
	} else {
		sb.Where(
			sb.Equal("label", string(label)),
			fmt.Sprintf("props ->> %s = %s", sb.Var(key), sb.Var(fmt.Sprint(value))),
		)
		sb.OrderBy("seq")
		sb.Limit(1)
	}

	return t.getVertex(ctx, sb)
}

func (t *pgTx) getVertex(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*graph.Vertex, error) {
	query, args := sb.Build()
	var row vertexRow
	if err := t.tx.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, graph.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get vertex: %w", err)
	}
	return row.vertex(), nil
}

func (t *pgTx) ListVertices(ctx context.Context, label models.Label) ([]*graph.Vertex, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "label", "props")
	sb.From("vertices")
	if label == "" {
		sb.OrderBy("id")
	} else {
		sb.Where(sb.Equal("label", string(label)))
		sb.OrderBy("seq")
	}

	query, args := sb.Build()
	var rows []vertexRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: list vertices: %w", err)
	}

	vertices := make([]*graph.Vertex, 0, len(rows))
	for _, row := range rows {
		vertices = append(vertices, row.vertex())
	}
	return vertices, nil
}

func (t *pgTx) Edges(ctx context.Context, id string, dir graph.Direction, types ...models.EdgeType) ([]*graph.Edge, error) {
	if !validID(id) {
		return nil, nil
	}

	column := "from_id"
	if dir == graph.Incoming {
		column = "to_id"
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "type", "from_id", "to_id", "props")
	sb.From("edges")
	where := []string{sb.Equal(column, id)}
	if len(types) > 0 {
		typeArgs := make([]any, len(types))
		for i, edgeType := range types {
			typeArgs[i] = string(edgeType)
		}
		where = append(where, sb.In("type", typeArgs...))
	}
	sb.Where(where...)
	sb.OrderBy("seq")

	query, args := sb.Build()
	var rows []edgeRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: load %s edges of %s: %w", dir, id, err)
	}

	edges := make([]*graph.Edge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, row.edge())
	}
	return edges, nil
}

func (t *pgTx) CreateVertex(ctx context.Context, label models.Label, props map[string]any) (*graph.Vertex, error) {
	if !t.writable {
		return nil, fmt.Errorf("postgres: write in read transaction")
	}
	if props == nil {
		props = map[string]any{}
	}

	var key any
	if prop, ok := t.uniqueKeys[label]; ok {
		if value, ok := props[prop]; ok {
			key = fmt.Sprint(value)
		}
	}

	id := uuid.NewString()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("vertices")
	sb.Cols("id", "label", "unique_key", "props")
	sb.Values(id, string(label), key, database.JSONB[map[string]any]{Data: props})

	query, args := sb.Build()
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if pqCode(err) == pgUniqueViolation {
			return nil, fmt.Errorf("%w: %s.%s = %v", graph.ErrDuplicateKey, label, t.uniqueKeys[label], key)
		}
		return nil, fmt.Errorf("postgres: create %s vertex: %w", label, err)
	}

	return &graph.Vertex{ID: id, Label: label, Props: copyProps(props)}, nil
}

func (t *pgTx) CreateEdge(ctx context.Context, edgeType models.EdgeType, from, to string, props map[string]any) (*graph.Edge, error) {
	if !t.writable {
		return nil, fmt.Errorf("postgres: write in read transaction")
	}
	if !validID(from) || !validID(to) {
		return nil, fmt.Errorf("edge %s from %s to %s: %w", edgeType, from, to, graph.ErrNotFound)
	}
	if props == nil {
		props = map[string]any{}
	}

	id := uuid.NewString()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("edges")
	sb.Cols("id", "type", "from_id", "to_id", "props")
	sb.Values(id, string(edgeType), from, to, database.JSONB[map[string]any]{Data: props})

	query, args := sb.Build()
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if pqCode(err) == pgForeignKeyViolation {
			return nil, fmt.Errorf("edge %s from %s to %s: %w", edgeType, from, to, graph.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: create %s edge: %w", edgeType, err)
	}

	return &graph.Edge{ID: id, Type: edgeType, From: from, To: to, Props: copyProps(props)}, nil
}

func (t *pgTx) Lock(ctx context.Context, id string) error {
	if !t.writable {
		return fmt.Errorf("postgres: lock in read transaction")
	}
	if !validID(id) {
		return graph.ErrNotFound
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("vertices")
	sb.Where(sb.Equal("id", id))
	sb.ForUpdate()

	query, args := sb.Build()
	var locked string
	if err := t.tx.GetContext(ctx, &locked, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return graph.ErrNotFound
		}
		return fmt.Errorf("postgres: lock vertex %s: %w", id, err)
	}
	return nil
}

func copyProps(props map[string]any) map[string]any {
	cp := make(map[string]any, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return cp
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}
