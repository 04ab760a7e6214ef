package index

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-kvindex/kvindex"
)

const testIndexes = `
indexes:
  - bucket: orders
    prefix: order
    field: total
    type: float
  - bucket: orders
    prefix: order
    field: customer
    type: STR
`

func TestLoadDefinitions(t *testing.T) {
	defs, err := LoadDefinitions(strings.NewReader(testIndexes))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "idx=orders=order=total", defs[0].IndexBucket())
	assert.Equal(t, kvindex.TypeFloat, defs[0].FieldType())
	assert.Equal(t, kvindex.TypeStr, defs[1].FieldType())

	c, _, _ := newTestClient(t)
	require.NoError(t, c.AddIndexes(defs))
	assert.Len(t, c.Registry().Lookup("orders", "order"), 2)
}

func TestLoadDefinitionsErrors(t *testing.T) {
	defs, err := LoadDefinitions(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, defs)

	_, err = LoadDefinitions(strings.NewReader("indexes:\n  - bucket: b\n    prefix: p\n    field: f\n    kind: int\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = LoadDefinitions(strings.NewReader("indexes:\n  - bucket: b\n    prefix: p\n    field: f\n    type: list\n"))
	assert.ErrorIs(t, err, kvindex.ErrIllegalDatatype)

	_, err = LoadDefinitions(strings.NewReader("indexes: [nope"))
	assert.Error(t, err)
}

func TestDefinitionsFileRoundTrip(t *testing.T) {
	defs, err := LoadDefinitions(strings.NewReader(testIndexes))
	require.NoError(t, err)

	data, err := MarshalDefinitions(defs)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "indexes.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadDefinitionsFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for i := range defs {
		assert.Equal(t, defs[i].IndexBucket(), loaded[i].IndexBucket())
		assert.Equal(t, defs[i].FieldType(), loaded[i].FieldType())
	}

	_, err = LoadDefinitionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
