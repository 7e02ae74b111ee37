package cypher

import (
	"context"
	"strconv"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/graph/graphtest"
)

func TestSchemaStatements(t *testing.T) {
	memgraph := SchemaStatements(DialectMemgraph)
	assert.Equal(t, "CREATE INDEX ON :Vertex(id)", memgraph[0])
	assert.Contains(t, memgraph, "CREATE CONSTRAINT ON (n:Sample) ASSERT n.sampleId IS UNIQUE")
	assert.Contains(t, memgraph, "CREATE CONSTRAINT ON (n:User) ASSERT n.email IS UNIQUE")
	assert.Contains(t, memgraph, "CREATE INDEX ON :Dataset(worklistId)")

	neo4j := SchemaStatements(DialectNeo4j)
	assert.Equal(t, "CREATE INDEX idx_vertex_id IF NOT EXISTS FOR (n:Vertex) ON (n.id)", neo4j[0])
	assert.Contains(t, neo4j, "CREATE CONSTRAINT uniq_variant_variantid IF NOT EXISTS FOR (n:Variant) REQUIRE n.variantId IS UNIQUE")
	assert.Contains(t, neo4j, "CREATE INDEX idx_dataset_assay IF NOT EXISTS FOR (n:Dataset) ON (n.assay)")

	assert.Len(t, neo4j, len(memgraph))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, DialectMemgraph, d)

	d, err = ParseDialect("neo4j")
	require.NoError(t, err)
	assert.Equal(t, DialectNeo4j, d)

	_, err = ParseDialect("gremlin")
	assert.Error(t, err)
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "HAS_EVENT", sanitizeLabel("HAS_EVENT"))
	assert.Equal(t, "SampleDETACHDELETEn", sanitizeLabel("Sample) DETACH DELETE (n"))
	assert.Equal(t, vertexLabel, sanitizeLabel("!!"))
}

func TestStripInternal(t *testing.T) {
	props := stripInternal(map[string]any{"id": "x", "_order": int64(1), "_lock": true, "sampleId": "S1"})
	assert.Equal(t, map[string]any{"sampleId": "S1"}, props)
}

func TestStore(t *testing.T) {
	testinfra.RequireIntegration(t)

	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	endpoint := testinfra.StartMemgraph(t)

	port, err := strconv.Atoi(endpoint.Port)
	require.NoError(t, err)

	client, err := NewClient(Config{Host: endpoint.Host, Port: port}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	require.NoError(t, client.VerifyConnectivity(ctx))
	require.NoError(t, client.EnsureSchema(ctx, DialectMemgraph))

	store := NewStore(client, logger)
	graphtest.Run(t, func(t *testing.T) graph.Store {
		require.NoError(t, client.Exec(ctx, "MATCH (n) DETACH DELETE n", nil))
		return store
	})
}
