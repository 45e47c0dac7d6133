package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsdata-io/gateway/slackindex"
)

// IndexingRunRequest is the body for POST /api/indexing/run (spec §6.3).
// BotToken is supplied directly when no bearer/credential lookup is
// wired for this deployment, matching the endpoint's "bearer or direct
// credentials" contract.
type IndexingRunRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	BotToken    string `json:"bot_token,omitempty"`
	ForceFull   bool   `json:"force_full"`
}

func (s *Server) handleIndexingRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Indexer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("slack indexer not configured"))
		return
	}

	var req IndexingRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	botToken := req.BotToken
	if botToken == "" {
		token, err := s.resolveSlackBotToken(req.WorkspaceID)
		if err != nil {
			writeError(w, err)
			return
		}
		botToken = token
	}

	cfg := slackWorkspaceConfigFrom(req.WorkspaceID, botToken, req.ForceFull)

	// Indexing runs in the background; the caller polls
	// /api/indexing/status for progress (spec §6.3, §5: background
	// workers never propagate failures to the requesting HTTP handler).
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.deps.Indexer.ProcessWorkspace(ctx, cfg); err != nil {
			_ = err // logged inside ProcessWorkspace; nothing more to do here
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "workspace_id": req.WorkspaceID})
}

// IndexingSearchRequest is the body for POST /api/indexing/search.
type IndexingSearchRequest struct {
	WorkspaceID string     `json:"workspace_id"`
	Query       string     `json:"query"`
	Channels    []string   `json:"channels,omitempty"`
	Users       []string   `json:"users,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}

func (s *Server) handleIndexingSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Indexer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("slack indexer not configured"))
		return
	}

	var req IndexingSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}

	start := time.Now()
	var (
		rows []map[string]any
		err  error
	)
	if len(req.Channels) == 0 && len(req.Users) == 0 && req.DateFrom == nil && req.DateTo == nil {
		rows, err = s.deps.Indexer.SemanticSearch(r.Context(), req.WorkspaceID, req.Query, req.Limit)
	} else {
		var from, to time.Time
		if req.DateFrom != nil {
			from = *req.DateFrom
		}
		if req.DateTo != nil {
			to = *req.DateTo
		}
		rows, err = s.deps.Indexer.SemanticSearchFiltered(r.Context(), req.WorkspaceID, req.Query, req.Limit, req.Channels, req.Users, from, to)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results":      rows,
		"query_time_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleIndexingStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.IndexStore == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("slack index store not configured"))
		return
	}
	workspaceID := chi.URLParam(r, "workspace_id")
	snap := s.deps.IndexStore.Snapshot(workspaceID)

	writeJSON(w, http.StatusOK, map[string]any{
		"workspace_id":      workspaceID,
		"phase":             snap.Phase,
		"is_indexing":       snap.IsIndexing,
		"last_indexed_at":   snap.LastIndexedAt,
		"last_completed_at": snap.LastCompletedAt,
		"total_messages":    snap.TotalMessages,
		"indexed_messages":  snap.IndexedMessages,
		"oldest_ts":         snap.OldestTS,
		"newest_ts":         snap.NewestTS,
	})
}

func slackWorkspaceConfigFrom(workspaceID, botToken string, forceFull bool) slackindex.WorkspaceConfig {
	return slackindex.WorkspaceConfig{
		WorkspaceID: workspaceID,
		BotToken:    botToken,
		ForceFull:   forceFull,
	}
}
