package configtree

import (
	"testing"

	"github.com/hatn-go/hatn/pkg/dataunit"
	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  // top-level app section
  "app": {
    "thread_count": 4,
    "data_folder": "/var/lib/hatn",
    "plugin_folders": ["a", "b", "c"],
  },
  "microservices": [
    { "name": "microservice1", "type": "tcp", "listener": { "ip": "127.0.0.1", "port": 53852 } },
    { "name": "microservice2", "type": "tcp", "listener": { "ip": "127.0.0.1", "port": 53853 } },
  ],
}`

func TestParseJSONCTolerance(t *testing.T) {
	tree, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	v, err := tree.Get("app.thread_count")
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.I64)

	folder, err := tree.Get("app.data_folder")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/hatn", folder.Str)
}

func TestGetPathNotFound(t *testing.T) {
	tree, err := Parse([]byte(`{"a": 1}`))
	require.NoError(t, err)
	_, err = tree.Get("a.b.c")
	require.Error(t, err)
	herrErr, ok := err.(*herr.Error)
	require.True(t, ok)
	assert.Equal(t, herr.ErrPathNotFound, herrErr.Code)
}

func TestArrayOfObjectsByIndex(t *testing.T) {
	tree, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	name, err := tree.Get("microservices.1.name")
	require.NoError(t, err)
	assert.Equal(t, "microservice2", name.Str)
}

func TestMismatchedArrayTypesRejected(t *testing.T) {
	_, err := Parse([]byte(`{"x": [1, "two", 3]}`))
	require.Error(t, err)
	herrErr, ok := err.(*herr.Error)
	require.True(t, ok)
	assert.Equal(t, herr.ErrMismatchedArrayTypes, herrErr.Code)
}

func TestMixedScalarObjectArrayRejected(t *testing.T) {
	_, err := Parse([]byte(`{"x": [1, {"a":1}]}`))
	require.Error(t, err)
}

func TestMergeAppendArrays(t *testing.T) {
	base, err := Parse([]byte(`{"list": [1, 2]}`))
	require.NoError(t, err)
	extra, err := Parse([]byte(`[3, 4]`))
	require.NoError(t, err)

	err = base.Merge(extra, "list", ArrayAppend)
	require.NoError(t, err)

	node, err := base.GetTree("list")
	require.NoError(t, err)
	require.Len(t, node.Items(), 4)
	assert.Equal(t, int64(4), node.Items()[3].Scalar.I64)
}

func TestMergeIntoPopulatedMapIsNotImplemented(t *testing.T) {
	base, err := Parse([]byte(`{"app": {"a": 1}}`))
	require.NoError(t, err)
	extra, err := Parse([]byte(`{"b": 2}`))
	require.NoError(t, err)

	err = base.Merge(extra, "app", ArrayMerge)
	require.Error(t, err)
	herrErr, ok := err.(*herr.Error)
	require.True(t, ok)
	assert.Equal(t, herr.ErrNotImplemented, herrErr.Code)
}

func appConfigSchema() *dataunit.Schema {
	return dataunit.NewSchema("app_config").
		AddField(dataunit.Field{ID: 1, Name: "thread_count", Kind: dataunit.KUint32, Required: true}).
		AddField(dataunit.Field{ID: 2, Name: "data_folder", Kind: dataunit.KString, Required: true}).
		AddField(dataunit.Field{ID: 3, Name: "plugin_folders", Kind: dataunit.KString, Repeated: true})
}

func TestConfigObjectLoad(t *testing.T) {
	tree, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	co := NewConfigObject(appConfigSchema())
	u, records, err := co.Load(tree, "app")
	require.NoError(t, err)
	require.NotEmpty(t, records)

	tc, ok := u.Get("thread_count")
	require.True(t, ok)
	assert.Equal(t, uint64(4), tc.U64)

	folders, ok := u.GetRepeated("plugin_folders")
	require.True(t, ok)
	assert.Len(t, folders, 3)
}

func TestConfigObjectMissingRequiredField(t *testing.T) {
	tree, err := Parse([]byte(`{"app": {"data_folder": "/x"}}`))
	require.NoError(t, err)

	co := NewConfigObject(appConfigSchema())
	_, _, err = co.Load(tree, "app")
	require.Error(t, err)
	herrErr, ok := err.(*herr.Error)
	require.True(t, ok)
	assert.Equal(t, herr.ErrRequiredConfigField, herrErr.Code)
}
