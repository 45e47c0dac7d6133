package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	dbType string
	uri    string
	online bool
}

func (f *fakeProber) TestConnection(ctx context.Context) bool { return f.online }
func (f *fakeProber) DBType() string                          { return f.dbType }
func (f *fakeProber) ConnectionURI() string                   { return f.uri }

func TestMonitor_ForceCheck_PopulatesStatuses(t *testing.T) {
	m := NewMonitor([]Backend{
		{Name: "primary-pg", Prober: &fakeProber{dbType: "postgres", uri: "postgres://u:p@db:5432/app", online: true}},
		{Name: "analytics-mongo", Prober: &fakeProber{dbType: "mongodb", uri: "mongodb://db2:27017/app", online: false}},
	})

	m.ForceCheck(context.Background())
	statuses := m.Snapshot()
	require.Len(t, statuses, 2)

	assert.Equal(t, "analytics-mongo", statuses[0].Name) // sorted by name
	assert.Equal(t, StateOffline, statuses[0].State)
	assert.Equal(t, "primary-pg", statuses[1].Name)
	assert.Equal(t, StateOnline, statuses[1].State)
	assert.Equal(t, "postgres://***:***@db:5432", statuses[1].URI)
}

func TestMonitor_Summary_ComputesUptimePercentage(t *testing.T) {
	m := NewMonitor([]Backend{
		{Name: "a", Prober: &fakeProber{dbType: "postgres", online: true}},
		{Name: "b", Prober: &fakeProber{dbType: "postgres", online: true}},
		{Name: "c", Prober: &fakeProber{dbType: "postgres", online: false}},
		{Name: "d", Prober: &fakeProber{dbType: "postgres", online: false}},
	})

	m.ForceCheck(context.Background())
	sum := m.Summary()
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Online)
	assert.Equal(t, 2, sum.Offline)
	assert.InDelta(t, 50.0, sum.UptimePct, 0.001)
}

func TestMonitor_Summary_EmptyBackendListIsZeroUptime(t *testing.T) {
	m := NewMonitor(nil)
	sum := m.Summary()
	assert.Equal(t, 0, sum.Total)
	assert.Equal(t, 0.0, sum.UptimePct)
}

func TestMonitor_Run_StopsOnContextCancel(t *testing.T) {
	m := NewMonitor([]Backend{{Name: "a", Prober: &fakeProber{online: true}}}).WithInterval(time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestMaskURI(t *testing.T) {
	cases := map[string]string{
		"postgres://user:pass@db:5432/app": "postgres://***:***@db:5432",
		"mongodb://db2:27017/app":          "mongodb://db2:27017",
		"":                                 "",
		"not-a-uri-api-key":                "***",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskURI(in), "input: %s", in)
	}
}
