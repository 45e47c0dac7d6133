package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
)

func TestSearcher_IndexAndSearch_RanksByCosineSimilarity(t *testing.T) {
	client := llm.NewFakeClient()
	s := New(client, nil)

	docs := []model.SchemaDocument{
		{ID: "users", Content: "users table with id and email", DBType: "postgres"},
		{ID: "orders", Content: "orders table with user_id and total", DBType: "postgres"},
	}
	require.NoError(t, s.Index(context.Background(), "postgres", docs))

	results, err := s.Search(context.Background(), "users table with id and email", 1, "postgres")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "users", results[0].ID)
}

func TestSearcher_Search_TopKZeroReturnsNil(t *testing.T) {
	s := New(llm.NewFakeClient(), nil)
	require.NoError(t, s.Index(context.Background(), "postgres", []model.SchemaDocument{{ID: "a", Content: "a"}}))

	results, err := s.Search(context.Background(), "a", 0, "postgres")
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestSearcher_Search_BuildsLazilyWhenNoIndexExists(t *testing.T) {
	built := false
	builder := func(ctx context.Context, dbType string) ([]model.SchemaDocument, error) {
		built = true
		return []model.SchemaDocument{{ID: "lazy", Content: "lazily built doc", DBType: dbType}}, nil
	}
	s := New(llm.NewFakeClient(), builder)

	results, err := s.Search(context.Background(), "lazily built doc", 1, "mongodb")
	require.NoError(t, err)
	assert.True(t, built)
	require.Len(t, results, 1)
	assert.Equal(t, "lazy", results[0].ID)
}

func TestSearcher_Search_NoIndexAndNoBuilderFailsWithSchemaIndexUnavailable(t *testing.T) {
	s := New(llm.NewFakeClient(), nil)
	_, err := s.Search(context.Background(), "anything", 3, "postgres")
	require.Error(t, err)
	var gerr *errs.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, errs.SchemaIndexUnavailable, gerr.Kind)
}

func TestSearcher_Search_BuilderFailureWrapsAsSchemaIndexUnavailable(t *testing.T) {
	builder := func(ctx context.Context, dbType string) ([]model.SchemaDocument, error) {
		return nil, errors.New("introspection failed")
	}
	s := New(llm.NewFakeClient(), builder)

	_, err := s.Search(context.Background(), "anything", 3, "postgres")
	require.Error(t, err)
	var gerr *errs.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, errs.SchemaIndexUnavailable, gerr.Kind)
}

func TestSearcher_Search_EmbeddingDimensionMismatch(t *testing.T) {
	s := New(llm.NewFakeClient(), nil)
	s.mu.Lock()
	s.indexes["postgres"] = []model.SchemaDocument{{ID: "a", Content: "a", Embedding: []float32{1, 2, 3}}}
	s.mu.Unlock()

	_, err := s.Search(context.Background(), "a", 1, "postgres")
	require.Error(t, err)
	var gerr *errs.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, errs.EmbeddingDimensionMismatch, gerr.Kind)
}

func TestSearcher_Search_TopKClampedToAvailableDocs(t *testing.T) {
	s := New(llm.NewFakeClient(), nil)
	require.NoError(t, s.Index(context.Background(), "postgres", []model.SchemaDocument{{ID: "only", Content: "only doc"}}))

	results, err := s.Search(context.Background(), "only doc", 5, "postgres")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
