package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
)

func echoTool(ctx context.Context, params map[string]any) (any, error) {
	return params["value"], nil
}

func failingTool(ctx context.Context, params map[string]any) (any, error) {
	return nil, errors.New("boom")
}

func TestRegistry_RegisterAndExecuteTool(t *testing.T) {
	r := New(llm.NewFakeClient())
	r.RegisterTool("echo", echoTool, model.ToolMetadata{Name: "echo", Category: model.CategoryUtility})

	meta, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", meta.Name)

	result, err := r.ExecuteTool(context.Background(), "echo", map[string]any{"value": 42})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 42, result.Result)
	assert.NotEmpty(t, result.ExecutionID)
}

func TestRegistry_ExecuteTool_UnknownNameFails(t *testing.T) {
	r := New(llm.NewFakeClient())
	_, err := r.ExecuteTool(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestRegistry_ExecuteTool_FailurePropagatesAndRecordsStats(t *testing.T) {
	r := New(llm.NewFakeClient())
	r.RegisterTool("boom", failingTool, model.ToolMetadata{Name: "boom"})

	_, err := r.ExecuteTool(context.Background(), "boom", nil)
	require.Error(t, err)

	analytics := r.GetToolAnalytics("boom")
	require.Len(t, analytics, 1)
	assert.Equal(t, 1, analytics[0].FailedCalls)
	assert.Equal(t, 0, analytics[0].SuccessfulCalls)
	assert.Equal(t, 1.0, analytics[0].ErrorRate)
}

func TestRegistry_RegisterTool_OverwriteIsIdempotentByName(t *testing.T) {
	r := New(llm.NewFakeClient())
	r.RegisterTool("echo", echoTool, model.ToolMetadata{Name: "echo", Description: "first"})
	r.RegisterTool("echo", echoTool, model.ToolMetadata{Name: "echo", Description: "second"})

	assert.Len(t, r.All(), 1)
	meta, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "second", meta.Description)
}

func TestRegistry_All_SortedByName(t *testing.T) {
	r := New(llm.NewFakeClient())
	r.RegisterTool("zebra", echoTool, model.ToolMetadata{Name: "zebra"})
	r.RegisterTool("alpha", echoTool, model.ToolMetadata{Name: "alpha"})

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "zebra", all[1].Name)
}

func TestRegistry_GetToolAnalytics_EmptyNameAggregatesAll(t *testing.T) {
	r := New(llm.NewFakeClient())
	r.RegisterTool("a", echoTool, model.ToolMetadata{Name: "a"})
	r.RegisterTool("b", echoTool, model.ToolMetadata{Name: "b"})
	_, _ = r.ExecuteTool(context.Background(), "a", nil)
	_, _ = r.ExecuteTool(context.Background(), "b", nil)

	all := r.GetToolAnalytics("")
	assert.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ToolID)
	assert.Equal(t, "b", all[1].ToolID)
}

func TestRegistry_SelectOptimalTools_FiltersByDBCompatibility(t *testing.T) {
	r := New(llm.NewFakeClient())
	r.RegisterTool("postgres.execute", echoTool, model.ToolMetadata{
		Name: "postgres.execute", Description: "execute a query", DatabaseCompatibility: []string{"postgres"},
	})
	r.RegisterTool("mongodb.execute", echoTool, model.ToolMetadata{
		Name: "mongodb.execute", Description: "execute a pipeline", DatabaseCompatibility: []string{"mongodb"},
	})

	names, err := r.SelectOptimalTools(context.Background(), "run a query", []string{"postgres"})
	require.NoError(t, err)
	assert.Contains(t, names, "postgres.execute")
	assert.NotContains(t, names, "mongodb.execute")
}

func TestRegistry_SelectOptimalTools_NoCandidatesReturnsNil(t *testing.T) {
	r := New(llm.NewFakeClient())
	names, err := r.SelectOptimalTools(context.Background(), "anything", []string{"postgres"})
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestRegistry_SelectOptimalTools_FallsBackHeuristicallyWhenLLMUnavailable(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Unavailable = true
	r := New(fake)
	r.RegisterTool("postgres.execute", echoTool, model.ToolMetadata{
		Name: "postgres.execute", Description: "execute a query against postgres", DatabaseCompatibility: []string{"postgres"},
	})

	names, err := r.SelectOptimalTools(context.Background(), "execute a query", []string{"postgres"})
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres.execute"}, names)
}
