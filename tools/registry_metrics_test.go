package tools

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
	"github.com/opsdata-io/gateway/obs"
)

func TestRegistry_WithMetrics_RecordsToolExecutions(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	r := New(llm.NewFakeClient()).WithMetrics(metrics)
	r.RegisterTool("echo", echoTool, model.ToolMetadata{Name: "echo"})

	_, err := r.ExecuteTool(context.Background(), "echo", map[string]any{"value": 1})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, fam := range families {
		if fam.GetName() == "gateway_tool_executions_total" {
			found = true
			require.Len(t, fam.GetMetric(), 1)
			assert.Equal(t, float64(1), fam.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "expected gateway_tool_executions_total to be registered")
}
