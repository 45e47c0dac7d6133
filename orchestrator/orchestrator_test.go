package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/adapter"
	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/model"
)

type fakeAdapter struct {
	dbType string
	uri    string
	rows   []model.Row
}

func (f *fakeAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	return model.SQLQuery{Text: "select 1"}, nil
}
func (f *fakeAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	return f.rows, nil
}
func (f *fakeAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	return nil, nil
}
func (f *fakeAdapter) TestConnection(ctx context.Context) bool { return true }
func (f *fakeAdapter) DBType() string                          { return f.dbType }
func (f *fakeAdapter) ConnectionURI() string                   { return f.uri }

func factoryFor(a adapter.Adapter) AdapterFactory {
	return func(dbType, uri string, opts Options) (adapter.Adapter, error) {
		return a, nil
	}
}

func TestNew_ResolvesDBTypeFromScheme(t *testing.T) {
	a := &fakeAdapter{dbType: "postgres", uri: "postgres://u:p@host/db"}
	orch, err := New(a.uri, Options{}, factoryFor(a))
	require.NoError(t, err)
	assert.Equal(t, "postgres", orch.DBType())
}

func TestNew_NormalizesSynonyms(t *testing.T) {
	a := &fakeAdapter{dbType: "mongodb", uri: "mongo://host/db"}
	orch, err := New(a.uri, Options{}, factoryFor(a))
	require.NoError(t, err)
	assert.Equal(t, "mongodb", orch.DBType())
}

func TestNew_ExplicitDBTypeOverridesScheme(t *testing.T) {
	a := &fakeAdapter{dbType: "shopify", uri: "https://shop.myshopify.com"}
	orch, err := New(a.uri, Options{DBType: "shopify"}, factoryFor(a))
	require.NoError(t, err)
	assert.Equal(t, "shopify", orch.DBType())
}

func TestNew_HTTPSchemeWithoutExplicitDBTypeIsAmbiguous(t *testing.T) {
	a := &fakeAdapter{}
	_, err := New("https://example.com/api", Options{}, factoryFor(a))
	require.Error(t, err)
	var gerr *errs.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, errs.AdapterSelectionAmbiguous, gerr.Kind)
}

func TestNew_InvalidURIIsConfigInvalid(t *testing.T) {
	_, err := New("://not a uri", Options{}, factoryFor(&fakeAdapter{}))
	require.Error(t, err)
	var gerr *errs.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, errs.ConfigInvalid, gerr.Kind)
}

func TestOrchestrator_Run_DelegatesTranslateThenExecute(t *testing.T) {
	a := &fakeAdapter{dbType: "postgres", uri: "postgres://host/db", rows: []model.Row{{"id": 1}}}
	orch, err := New(a.uri, Options{}, factoryFor(a))
	require.NoError(t, err)

	rows, query, err := orch.Run(context.Background(), "how many users", nil)
	require.NoError(t, err)
	assert.Equal(t, model.SQLQuery{Text: "select 1"}, query)
	assert.Equal(t, []model.Row{{"id": 1}}, rows)
}

func TestOrchestrator_ConnectionURI_ReturnsOriginalURI(t *testing.T) {
	a := &fakeAdapter{dbType: "postgres", uri: "postgres://u:p@host/db"}
	orch, err := New(a.uri, Options{}, factoryFor(a))
	require.NoError(t, err)
	assert.Equal(t, a.uri, orch.ConnectionURI())
}
