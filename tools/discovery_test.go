package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
)

type fakeDiscoveryAdapter struct {
	dbType string
}

func (f *fakeDiscoveryAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	return model.SQLQuery{Text: "select 1"}, nil
}
func (f *fakeDiscoveryAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	return []model.Row{{"n": 1}}, nil
}
func (f *fakeDiscoveryAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	return []model.SchemaDocument{}, nil
}
func (f *fakeDiscoveryAdapter) TestConnection(ctx context.Context) bool { return true }
func (f *fakeDiscoveryAdapter) DBType() string                         { return f.dbType }
func (f *fakeDiscoveryAdapter) ConnectionURI() string                  { return "fake://" + f.dbType }

func TestDiscoverAdapterTools_RegistersCoreOperations(t *testing.T) {
	r := New(llm.NewFakeClient())
	a := &fakeDiscoveryAdapter{dbType: "postgres"}
	r.DiscoverAdapterTools(a)

	for _, name := range []string{"postgres.llm_to_query", "postgres.execute", "postgres.introspect_schema", "postgres.test_connection"} {
		_, ok := r.Get(name)
		assert.True(t, ok, "expected %s to be registered", name)
	}
}

func TestDiscoverAdapterTools_ExecuteCoreToolsDelegateToAdapter(t *testing.T) {
	r := New(llm.NewFakeClient())
	a := &fakeDiscoveryAdapter{dbType: "postgres"}
	r.DiscoverAdapterTools(a)

	result, err := r.ExecuteTool(context.Background(), "postgres.test_connection", nil)
	require.NoError(t, err)
	assert.Equal(t, true, result.Result)
}

func TestDiscoverAdapterTools_MongoRegistersValidatePipeline(t *testing.T) {
	r := New(llm.NewFakeClient())
	a := &fakeDiscoveryAdapter{dbType: "mongodb"}
	r.DiscoverAdapterTools(a)

	_, ok := r.Get("mongodb.validate_pipeline")
	require.True(t, ok)

	result, err := r.ExecuteTool(context.Background(), "mongodb.validate_pipeline", map[string]any{
		"pipeline": []map[string]any{{"$match": map[string]any{"x": 1}}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"valid": true}, result.Result)
}

func TestDiscoverAdapterTools_MongoValidatePipelineRejectsWriteStages(t *testing.T) {
	stages := []map[string]any{{"$out": "collection"}}
	result := validateNoWriteStagesPublic(stages)
	assert.Equal(t, false, result["valid"])
}

func TestDiscoverAdapterTools_GA4RegistersAudienceOverview(t *testing.T) {
	r := New(llm.NewFakeClient())
	a := &fakeDiscoveryAdapter{dbType: "ga4"}
	r.DiscoverAdapterTools(a)

	_, ok := r.Get("ga4.audience_overview")
	assert.True(t, ok)
}

func TestDiscoverAdapterTools_PostgresDoesNotRegisterBackendSpecificTools(t *testing.T) {
	r := New(llm.NewFakeClient())
	a := &fakeDiscoveryAdapter{dbType: "postgres"}
	r.DiscoverAdapterTools(a)

	_, ok := r.Get("mongodb.validate_pipeline")
	assert.False(t, ok)
	_, ok = r.Get("ga4.audience_overview")
	assert.False(t, ok)
}
