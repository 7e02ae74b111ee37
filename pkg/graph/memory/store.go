// Package memory is an in-process property graph. Vertices and edges live in an arena keyed by
// UUID with adjacency maps for traversal. Writers are serialized and work on a private copy of
// the state that replaces the published one on commit, so readers always see a consistent
// snapshot.
//
// Every write copies the whole arena, so a write costs O(graph size). The store is meant for
// tests, fixtures and local runs; deployments use the bolt or postgres backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
)

var _ graph.Store = (*Store)(nil)

type uniqueKey struct {
	label models.Label
	value string
}

type memoryState struct {
	vertices map[string]graph.Vertex
	edges    map[string]graph.Edge
	out      map[string][]string
	in       map[string][]string
	byLabel  map[models.Label][]string
	unique   map[uniqueKey]string
}

func newMemoryState() memoryState {
	return memoryState{
		vertices: make(map[string]graph.Vertex),
		edges:    make(map[string]graph.Edge),
		out:      make(map[string][]string),
		in:       make(map[string][]string),
		byLabel:  make(map[models.Label][]string),
		unique:   make(map[uniqueKey]string),
	}
}

// clone copies the maps and slices. Vertex and edge property maps are never mutated after
// creation and are shared between copies.
func (s memoryState) clone() memoryState {
	cloned := memoryState{
		vertices: make(map[string]graph.Vertex, len(s.vertices)),
		edges:    make(map[string]graph.Edge, len(s.edges)),
		out:      make(map[string][]string, len(s.out)),
		in:       make(map[string][]string, len(s.in)),
		byLabel:  make(map[models.Label][]string, len(s.byLabel)),
		unique:   make(map[uniqueKey]string, len(s.unique)),
	}
	for k, v := range s.vertices {
		cloned.vertices[k] = v
	}
	for k, v := range s.edges {
		cloned.edges[k] = v
	}
	for k, v := range s.out {
		cloned.out[k] = append([]string(nil), v...)
	}
	for k, v := range s.in {
		cloned.in[k] = append([]string(nil), v...)
	}
	for k, v := range s.byLabel {
		cloned.byLabel[k] = append([]string(nil), v...)
	}
	for k, v := range s.unique {
		cloned.unique[k] = v
	}
	return cloned
}

type Option func(*Store)

// WithUniqueKeys replaces the natural key constraints. Defaults to models.UniqueKeys.
func WithUniqueKeys(keys map[models.Label]string) Option {
	return func(s *Store) {
		s.uniqueKeys = keys
	}
}

// Store implements graph.Store in memory.
type Store struct {
	writeMu    sync.Mutex
	mu         sync.RWMutex
	state      memoryState
	uniqueKeys map[models.Label]string
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		state:      newMemoryState(),
		uniqueKeys: models.UniqueKeys(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read runs fn against the state published at call time.
func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, r graph.Reader) error) error {
	s.mu.RLock()
	snapshot := s.state
	s.mu.RUnlock()

	return fn(ctx, &tx{state: snapshot, uniqueKeys: s.uniqueKeys})
}

// Write runs fn with exclusive write access. The state is published only when fn succeeds.
func (s *Store) Write(ctx context.Context, fn func(ctx context.Context, w graph.Writer) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	t := &tx{state: s.state.clone(), uniqueKeys: s.uniqueKeys, writable: true}
	s.mu.RUnlock()

	if err := fn(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = t.state
	s.mu.Unlock()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close(context.Context) error {
	return nil
}

type tx struct {
	state      memoryState
	uniqueKeys map[models.Label]string
	writable   bool
}

func (t *tx) GetVertex(_ context.Context, id string) (*graph.Vertex, error) {
	v, ok := t.state.vertices[id]
	if !ok {
		return nil, graph.ErrNotFound
	}
	return &v, nil
}

func (t *tx) FindVertex(_ context.Context, label models.Label, key string, value any) (*graph.Vertex, error) {
	if t.uniqueKeys[label] == key {
		id, ok := t.state.unique[uniqueKey{label: label, value: fmt.Sprint(value)}]
		if !ok {
			return nil, graph.ErrNotFound
		}
		v := t.state.vertices[id]
		return &v, nil
	}

	for _, id := range t.state.byLabel[label] {
		v := t.state.vertices[id]
		if fmt.Sprint(v.Props[key]) == fmt.Sprint(value) {
			return &v, nil
		}
	}
	return nil, graph.ErrNotFound
}

func (t *tx) ListVertices(_ context.Context, label models.Label) ([]*graph.Vertex, error) {
	var ids []string
	if label == "" {
		ids = make([]string, 0, len(t.state.vertices))
		for id := range t.state.vertices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	} else {
		ids = t.state.byLabel[label]
	}

	vertices := make([]*graph.Vertex, 0, len(ids))
	for _, id := range ids {
		v := t.state.vertices[id]
		vertices = append(vertices, &v)
	}
	return vertices, nil
}

func (t *tx) Edges(_ context.Context, id string, dir graph.Direction, types ...models.EdgeType) ([]*graph.Edge, error) {
	adjacency := t.state.out
	if dir == graph.Incoming {
		adjacency = t.state.in
	}

	var edges []*graph.Edge
	for _, edgeID := range adjacency[id] {
		e := t.state.edges[edgeID]
		if len(types) > 0 && !hasType(types, e.Type) {
			continue
		}
		edges = append(edges, &e)
	}
	return edges, nil
}

func (t *tx) CreateVertex(_ context.Context, label models.Label, props map[string]any) (*graph.Vertex, error) {
	if !t.writable {
		return nil, fmt.Errorf("memory: write in read transaction")
	}

	var key *uniqueKey
	if prop, ok := t.uniqueKeys[label]; ok {
		if value, ok := props[prop]; ok {
			key = &uniqueKey{label: label, value: fmt.Sprint(value)}
			if _, exists := t.state.unique[*key]; exists {
				return nil, fmt.Errorf("%w: %s.%s = %v", graph.ErrDuplicateKey, label, prop, value)
			}
		}
	}

	v := graph.Vertex{ID: uuid.NewString(), Label: label, Props: copyProps(props)}
	t.state.vertices[v.ID] = v
	t.state.byLabel[label] = append(t.state.byLabel[label], v.ID)
	if key != nil {
		t.state.unique[*key] = v.ID
	}
	return &v, nil
}

func (t *tx) CreateEdge(_ context.Context, edgeType models.EdgeType, from, to string, props map[string]any) (*graph.Edge, error) {
	if !t.writable {
		return nil, fmt.Errorf("memory: write in read transaction")
	}
	if _, ok := t.state.vertices[from]; !ok {
		return nil, fmt.Errorf("edge %s from %s: %w", edgeType, from, graph.ErrNotFound)
	}
	if _, ok := t.state.vertices[to]; !ok {
		return nil, fmt.Errorf("edge %s to %s: %w", edgeType, to, graph.ErrNotFound)
	}

	e := graph.Edge{ID: uuid.NewString(), Type: edgeType, From: from, To: to, Props: copyProps(props)}
	t.state.edges[e.ID] = e
	t.state.out[from] = append(t.state.out[from], e.ID)
	t.state.in[to] = append(t.state.in[to], e.ID)
	return &e, nil
}

// Lock only checks existence: writers are already serialized by the store.
func (t *tx) Lock(_ context.Context, id string) error {
	if _, ok := t.state.vertices[id]; !ok {
		return graph.ErrNotFound
	}
	return nil
}

func hasType(types []models.EdgeType, t models.EdgeType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func copyProps(props map[string]any) map[string]any {
	cloned := make(map[string]any, len(props))
	for k, v := range props {
		cloned[k] = v
	}
	return cloned
}
