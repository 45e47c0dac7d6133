package orchestrator

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/obs"
)

func TestOrchestrator_WithMetrics_RecordsAdapterQueries(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	a := &fakeAdapter{dbType: "postgres", uri: "postgres://host/db"}
	orch, err := New(a.uri, Options{}, factoryFor(a))
	require.NoError(t, err)
	orch.WithMetrics(metrics)

	_, _, err = orch.Run(context.Background(), "how many users", nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, fam := range families {
		if fam.GetName() == "gateway_adapter_queries_total" {
			found = true
			require.Len(t, fam.GetMetric(), 1)
			assert.Equal(t, float64(1), fam.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "expected gateway_adapter_queries_total to be registered")
}
