package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "fern", Password: "p@ss word", Name: "fern"}
	assert.Equal(t, "postgres://fern:p%40ss%20word@db:5432/fern?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://fern:p%40ss%20word@db:5432/fern?sslmode=require", cfg.DSN())
}

func TestJSONB_Scan(t *testing.T) {
	var props JSONB[map[string]any]
	require.NoError(t, props.Scan([]byte(`{"passOrFail":true,"date":1700000000000}`)))
	assert.Equal(t, true, props.GetValue()["passOrFail"])
	assert.Equal(t, float64(1700000000000), props.GetValue()["date"])

	var fromString JSONB[map[string]any]
	require.NoError(t, fromString.Scan(`{"a":"b"}`))
	assert.Equal(t, "b", fromString.GetValue()["a"])

	var null JSONB[map[string]any]
	require.NoError(t, null.Scan(nil))
	assert.Nil(t, null.GetValue())

	assert.Error(t, props.Scan(42))
}

func TestJSONB_Value(t *testing.T) {
	v, err := JSONB[map[string]any]{Data: map[string]any{"a": 1}}.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), v)
}

func TestGetLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_property_graph.up.sql",
		"000001_property_graph.down.sql",
		"000003_indexes.up.sql",
		"000002_more.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	latest, err := getLatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, latest)

	_, err = getLatestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestRepositoryMigrationsAreVersioned(t *testing.T) {
	latest, err := getLatestVersion("../../db/pg")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest, 1)
}
