package slackindex

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/opsdata-io/gateway/obs"
)

// maxConcurrentWorkspaces bounds the scheduler to 5 in-flight workspaces
// (spec §5: "across workspaces the scheduler bounds concurrency to 5
// in-flight workspaces").
const maxConcurrentWorkspaces = 5

// WorkspaceSource supplies the set of workspaces due for a reindex at a
// given tick; the concrete implementation lives alongside the
// credential store, which is the source of truth for bot tokens.
type WorkspaceSource interface {
	DueWorkspaces(ctx context.Context) ([]WorkspaceConfig, error)
}

// workspaceProcessor is satisfied by *Indexer; kept as an interface so
// the scheduler's concurrency-bounding logic can be tested without a
// live Qdrant/Slack/LLM stack behind it.
type workspaceProcessor interface {
	ProcessWorkspace(ctx context.Context, cfg WorkspaceConfig) (Stats, error)
}

// Scheduler wakes on an hourly tick and fans the due workspaces out to
// the indexer, bounded to maxConcurrentWorkspaces in flight (spec §5:
// "a scheduler task wakes every hour to kick the Slack Indexer for due
// workspaces").
type Scheduler struct {
	indexer workspaceProcessor
	source  WorkspaceSource
	tick    time.Duration
}

func NewScheduler(indexer *Indexer, source WorkspaceSource) *Scheduler {
	return &Scheduler{indexer: indexer, source: source, tick: time.Hour}
}

// WithTick overrides the default hourly cadence, for tests.
func (s *Scheduler) WithTick(d time.Duration) *Scheduler {
	s.tick = d
	return s
}

// Run blocks, firing RunOnce on each tick, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.tick), func() {
		if err := s.RunOnce(ctx); err != nil {
			obs.Component("slackindex.scheduler").Warn("scheduler tick failed", "error", err)
		}
	})
	if err != nil {
		obs.Component("slackindex.scheduler").Error("invalid scheduler tick spec", "tick", s.tick, "error", err)
		return
	}

	c.Start()
	defer c.Stop()
	<-ctx.Done()
}

// RunOnce processes every due workspace once, capping concurrency at
// maxConcurrentWorkspaces, and returns the first error encountered (a
// single workspace failing does not prevent the others from running,
// since errgroup only returns after all goroutines have finished).
func (s *Scheduler) RunOnce(ctx context.Context) error {
	due, err := s.source.DueWorkspaces(ctx)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWorkspaces)

	for _, cfg := range due {
		cfg := cfg
		g.Go(func() error {
			_, err := s.indexer.ProcessWorkspace(gctx, cfg)
			if err != nil {
				obs.Component("slackindex.scheduler").Warn("workspace indexing failed", "workspace", cfg.WorkspaceID, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}
