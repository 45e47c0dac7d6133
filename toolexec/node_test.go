package toolexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
	"github.com/opsdata-io/gateway/tools"
)

func TestNode_Run_ExecutesRegisteredToolAndSynthesizes(t *testing.T) {
	client := llm.NewFakeClient()
	registry := tools.New(client)
	registry.RegisterTool("postgres.execute", func(ctx context.Context, params map[string]any) (any, error) {
		return []map[string]any{{"count": 5}}, nil
	}, model.ToolMetadata{Name: "postgres.execute", Description: "run a sql query"})

	sink := NewMemorySink(10)
	node := NewNode(registry, client, sink)

	result, err := node.Run(context.Background(), "how many rows are in the table")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1.0, result.SuccessRate)
	assert.NotEmpty(t, result.Synthesis)

	events := sink.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventPlanCaptured, events[0].Kind)
	assert.Equal(t, EventPerformanceMetrics, events[len(events)-1].Kind)
}

func TestNode_Run_NoRegisteredToolsYieldsEmptyPlan(t *testing.T) {
	client := llm.NewFakeClient()
	registry := tools.New(client)
	sink := NewMemorySink(10)
	node := NewNode(registry, client, sink)

	result, err := node.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, result.Plan.Steps)
	assert.False(t, result.Success)
}

func TestNode_Run_ContinuesAfterStepFailure(t *testing.T) {
	client := llm.NewFakeClient()
	registry := tools.New(client)
	registry.RegisterTool("postgres.execute", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, assert.AnError
	}, model.ToolMetadata{Name: "postgres.execute", Description: "run a sql query"})

	sink := NewMemorySink(10)
	node := NewNode(registry, client, sink)

	result, err := node.Run(context.Background(), "run a sql query")
	require.NoError(t, err)
	require.Len(t, result.ExecutionResults, 1)
	assert.False(t, result.ExecutionResults[0].Success)
	assert.False(t, result.Success)
}
