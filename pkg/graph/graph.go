// Package graph defines the property graph store the event-chain engine runs on.
//
// Backends live in sub-packages: memory (in-process arena), cypher (Memgraph/Neo4j over Bolt)
// and postgres (vertex and edge tables).
package graph

import (
	"context"
	"errors"

	"github.com/Ramsey-B/fern/pkg/models"
)

var (
	// ErrNotFound is returned by lookups that match no vertex.
	ErrNotFound = errors.New("graph: not found")
	// ErrDuplicateKey is returned when a vertex would violate a natural key constraint.
	ErrDuplicateKey = errors.New("graph: duplicate key")
)

// Vertex is a labelled node. ID is a store-assigned UUID.
type Vertex struct {
	ID    string
	Label models.Label
	Props map[string]any
}

// Edge is a typed, directed relationship.
type Edge struct {
	ID    string
	Type  models.EdgeType
	From  string
	To    string
	Props map[string]any
}

type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Reader is the read side of a transaction.
type Reader interface {
	GetVertex(ctx context.Context, id string) (*Vertex, error)
	FindVertex(ctx context.Context, label models.Label, key string, value any) (*Vertex, error)
	// ListVertices returns every vertex with the label, or every vertex when label is empty.
	ListVertices(ctx context.Context, label models.Label) ([]*Vertex, error)
	// Edges returns the edges of a vertex in one direction. No types means all types.
	Edges(ctx context.Context, id string, dir Direction, types ...models.EdgeType) ([]*Edge, error)
}

// Writer is a read-write transaction.
type Writer interface {
	Reader
	CreateVertex(ctx context.Context, label models.Label, props map[string]any) (*Vertex, error)
	CreateEdge(ctx context.Context, edgeType models.EdgeType, from, to string, props map[string]any) (*Edge, error)
	// Lock blocks other writers on the vertex until the transaction ends.
	Lock(ctx context.Context, id string) error
}

// Store runs callbacks inside transactions. A callback error aborts the transaction and is
// returned unchanged.
type Store interface {
	Read(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
	Write(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
