package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("GRAPH_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSchemaPrint(t *testing.T) {
	t.Setenv("GRAPH_DB_DIALECT", "neo4j")

	out, err := execute(t, "schema", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE CONSTRAINT uniq_sample_sampleid IF NOT EXISTS FOR (n:Sample) REQUIRE n.sampleId IS UNIQUE;")
}

func TestSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - email: a@example.com\n    fullName: A\nsamples:\n  - sampleId: S1\n"), 0o600))

	out, err := execute(t, "seed", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created 2, skipped 0 existing")
}

func TestSeed_RequiresFile(t *testing.T) {
	_, err := execute(t, "seed")
	assert.Error(t, err)
}
