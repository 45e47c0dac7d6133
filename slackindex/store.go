// Package slackindex maintains a per-workspace semantic index of Slack
// message history in a vector store, and serves the semantic_search read
// path the Slack adapter delegates to (spec §4.3.4, §4.7).
package slackindex

import (
	"sync"
	"time"
)

// Phase is one state of the per-workspace indexing state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRunning    Phase = "running"
	PhaseFinalizing Phase = "finalizing"
)

// StuckLeaseAfter is how long a RUNNING workspace can go without a state
// update before a second scheduler tick treats it as abandoned and
// re-enters RUNNING itself.
const StuckLeaseAfter = time.Hour

// WorkspaceState is the durable-in-memory record of one workspace's
// indexing progress and lease.
type WorkspaceState struct {
	Phase           Phase
	IsIndexing      bool
	LastIndexedAt   time.Time
	LastCompletedAt time.Time
	UpdatedAt       time.Time
	TotalMessages   int
	IndexedMessages int
	OldestTS        float64
	NewestTS        float64
}

// ChannelState tracks the per-channel watermark used to fetch only new
// messages on subsequent runs.
type ChannelState struct {
	ChannelID     string
	ChannelName   string
	LastIndexedTS float64
	MessageCount  int
}

// Store holds workspace and channel state in memory, guarded by a single
// mutex (spec §5: "Session table, Availability cache: guarded by a
// mutex; sweeps are opportunistic"). A real deployment would back this
// with a database table; the in-memory shape here is what every state
// transition in §4.7 actually reads and writes.
type Store struct {
	mu         sync.Mutex
	workspaces map[string]*WorkspaceState
	channels   map[string]map[string]*ChannelState // workspaceID -> channelID -> state
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		workspaces: make(map[string]*WorkspaceState),
		channels:   make(map[string]map[string]*ChannelState),
		now:        time.Now,
	}
}

func (s *Store) workspaceLocked(workspaceID string) *WorkspaceState {
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		ws = &WorkspaceState{Phase: PhaseIdle}
		s.workspaces[workspaceID] = ws
	}
	return ws
}

// TryAcquire attempts the IDLE/stuck-RUNNING -> RUNNING transition for
// workspaceID. It returns false if another run already holds a live
// lease (spec §4.7: "A second scheduler observing is_indexing=true AND
// updated_at < now - 1h treats the prior run as stuck and re-enters
// RUNNING").
func (s *Store) TryAcquire(workspaceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.workspaceLocked(workspaceID)
	now := s.now()

	if ws.IsIndexing {
		if now.Sub(ws.UpdatedAt) < StuckLeaseAfter {
			return false
		}
		// stuck-lease reclamation: fall through and re-acquire.
	}

	ws.Phase = PhaseRunning
	ws.IsIndexing = true
	ws.LastIndexedAt = now
	ws.UpdatedAt = now
	return true
}

// Finalize performs the RUNNING -> FINALIZING -> IDLE transition,
// recording the run's totals and the observed timestamp range.
func (s *Store) Finalize(workspaceID string, totalMessages, indexedMessages int, oldestTS, newestTS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.workspaceLocked(workspaceID)
	now := s.now()

	ws.Phase = PhaseFinalizing
	ws.TotalMessages += totalMessages
	ws.IndexedMessages = indexedMessages
	if oldestTS > 0 && (ws.OldestTS == 0 || oldestTS < ws.OldestTS) {
		ws.OldestTS = oldestTS
	}
	if newestTS > ws.NewestTS {
		ws.NewestTS = newestTS
	}

	ws.Phase = PhaseIdle
	ws.IsIndexing = false
	ws.LastCompletedAt = now
	ws.UpdatedAt = now
}

// Abort releases the lease without recording a completed run, used when
// authentication or channel listing fails before any message is indexed.
func (s *Store) Abort(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.workspaceLocked(workspaceID)
	ws.Phase = PhaseIdle
	ws.IsIndexing = false
	ws.UpdatedAt = s.now()
}

// Touch refreshes UpdatedAt without changing phase, so a long-running
// workspace is not mistaken for a stuck lease by a concurrent scheduler
// tick while it is still legitimately in progress.
func (s *Store) Touch(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaceLocked(workspaceID).UpdatedAt = s.now()
}

func (s *Store) Snapshot(workspaceID string) WorkspaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.workspaceLocked(workspaceID)
}

func (s *Store) Channel(workspaceID, channelID, channelName string) *ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	byChannel, ok := s.channels[workspaceID]
	if !ok {
		byChannel = make(map[string]*ChannelState)
		s.channels[workspaceID] = byChannel
	}
	ch, ok := byChannel[channelID]
	if !ok {
		ch = &ChannelState{ChannelID: channelID, ChannelName: channelName}
		byChannel[channelID] = ch
	}
	cp := *ch
	return &cp
}

func (s *Store) UpdateChannel(workspaceID string, state ChannelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byChannel, ok := s.channels[workspaceID]
	if !ok {
		byChannel = make(map[string]*ChannelState)
		s.channels[workspaceID] = byChannel
	}
	cp := state
	byChannel[state.ChannelID] = &cp
}
