package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/model"
)

type stubAdapter struct {
	query      model.Query
	rows       []model.Row
	queryErr   error
	executeErr error
}

func (s *stubAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	return s.query, s.queryErr
}
func (s *stubAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	return s.rows, s.executeErr
}
func (s *stubAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	return nil, nil
}
func (s *stubAdapter) TestConnection(ctx context.Context) bool { return true }
func (s *stubAdapter) DBType() string                          { return "stub" }
func (s *stubAdapter) ConnectionURI() string                   { return "stub://local" }

func TestRun_TranslatesThenExecutes(t *testing.T) {
	a := &stubAdapter{query: model.SQLQuery{Text: "select 1"}, rows: []model.Row{{"n": 1}}}

	rows, query, err := Run(context.Background(), a, "how many rows", nil)
	require.NoError(t, err)
	assert.Equal(t, model.SQLQuery{Text: "select 1"}, query)
	assert.Equal(t, []model.Row{{"n": 1}}, rows)
}

func TestRun_StopsAtTranslationError(t *testing.T) {
	a := &stubAdapter{queryErr: errors.New("llm unavailable")}

	rows, query, err := Run(context.Background(), a, "how many rows", nil)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.Nil(t, query)
}

func TestRun_PropagatesExecuteError(t *testing.T) {
	a := &stubAdapter{query: model.SQLQuery{Text: "select 1"}, executeErr: errors.New("connection reset")}

	_, query, err := Run(context.Background(), a, "how many rows", nil)
	require.Error(t, err)
	assert.Equal(t, model.SQLQuery{Text: "select 1"}, query)
}
