package slackindex

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	workspaces []WorkspaceConfig
}

func (f fakeSource) DueWorkspaces(ctx context.Context) ([]WorkspaceConfig, error) {
	return f.workspaces, nil
}

type fakeProcessor struct {
	inFlight  atomic.Int32
	maxInFlight atomic.Int32
	processed atomic.Int32
}

func (f *fakeProcessor) ProcessWorkspace(ctx context.Context, cfg WorkspaceConfig) (Stats, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	f.processed.Add(1)
	return Stats{}, nil
}

func TestScheduler_RunOnce_BoundsConcurrency(t *testing.T) {
	var workspaces []WorkspaceConfig
	for i := 0; i < 12; i++ {
		workspaces = append(workspaces, WorkspaceConfig{WorkspaceID: string(rune('A' + i))})
	}

	proc := &fakeProcessor{}
	sched := &Scheduler{indexer: proc, source: fakeSource{workspaces: workspaces}}

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.EqualValues(t, 12, proc.processed.Load())
	assert.LessOrEqual(t, proc.maxInFlight.Load(), int32(maxConcurrentWorkspaces))
}

func TestScheduler_RunOnce_NoWorkspacesIsNoop(t *testing.T) {
	proc := &fakeProcessor{}
	sched := &Scheduler{indexer: proc, source: fakeSource{}}
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.EqualValues(t, 0, proc.processed.Load())
}
