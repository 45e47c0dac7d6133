package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opsdata-io/gateway/credstore"
)

// handleSlackAuthorize implements GET /api/auth/slack/authorize (spec
// §6.3): resume an existing CLI session, or mint one for a direct
// user_id, then 302 to the provider's authorize URL. The outbound state
// parameter is "<session-id>.<csrf-nonce>" so the callback can recover
// which session to complete without a second lookup table.
func (s *Server) handleSlackAuthorize(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil || s.deps.SlackOAuth == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("slack oauth not configured"))
		return
	}

	var sess *credstore.Session
	if id := r.URL.Query().Get("session"); id != "" {
		found, ok := s.deps.Sessions.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, errBody("unknown or expired session"))
			return
		}
		sess = found
	} else if userID := r.URL.Query().Get("user_id"); userID != "" {
		created, err := s.deps.Sessions.Create(userID)
		if err != nil {
			writeError(w, err)
			return
		}
		sess = created
	} else {
		writeJSON(w, http.StatusBadRequest, errBody("one of session or user_id is required"))
		return
	}

	state := sess.ID + "." + sess.State
	http.Redirect(w, r, s.deps.SlackOAuth.AuthorizeURL(state), http.StatusFound)
}

// handleSlackCallback implements GET /api/auth/slack/callback. On state
// mismatch the workspace upsert does not occur (spec §4 edge case 7).
func (s *Server) handleSlackCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil || s.deps.SlackOAuth == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("slack oauth not configured"))
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	sessionID, nonce, ok := strings.Cut(state, ".")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errBody("malformed state parameter"))
		return
	}

	if err := s.deps.Sessions.VerifyState(sessionID, nonce); err != nil {
		writeJSON(w, http.StatusUnauthorized, errBody("state mismatch; workspace was not linked"))
		return
	}
	sess, _ := s.deps.Sessions.Get(sessionID)

	workspaceID, workspaceName, botToken, err := s.deps.SlackOAuth.Exchange(code)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.upsertSlackWorkspace(sess.UserID, workspaceID, workspaceName); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	s.slackBotTokens[workspaceID] = botToken
	s.mu.Unlock()

	_ = s.deps.Sessions.Complete(sessionID, map[string]any{
		"workspace_id":   workspaceID,
		"workspace_name": workspaceName,
	})

	if s.deps.WebAppSuccessURL != "" {
		http.Redirect(w, r, s.deps.WebAppSuccessURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "linked", "workspace_id": workspaceID})
}

// upsertSlackWorkspace adds or updates one workspace entry in the
// user's persisted slack_credentials.json (spec §6.2).
func (s *Server) upsertSlackWorkspace(userID, workspaceID, workspaceName string) error {
	if s.deps.Credstore == nil {
		return nil
	}
	intUserID, _ := strconv.Atoi(userID)
	intWorkspaceID, _ := strconv.Atoi(workspaceID)

	existingUserID, workspaces, err := s.deps.Credstore.LoadSlackCredentials()
	if err != nil {
		return err
	}
	if existingUserID != 0 {
		intUserID = existingUserID
	}

	found := false
	for i, ws := range workspaces {
		if ws.ID == intWorkspaceID {
			workspaces[i].Name = workspaceName
			found = true
			break
		}
	}
	if !found {
		workspaces = append(workspaces, credstore.SlackWorkspaceRecord{
			ID:        intWorkspaceID,
			Name:      workspaceName,
			IsDefault: len(workspaces) == 0,
		})
	}

	return s.deps.Credstore.SaveSlackCredentials(intUserID, workspaces)
}

// handleSlackCheckSession implements the CLI polling endpoint.
func (s *Server) handleSlackCheckSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("slack oauth not configured"))
		return
	}
	id := chi.URLParam(r, "session_id")
	sess, ok := s.deps.Sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errBody("unknown or expired session"))
		return
	}
	if sess.AuthResult == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "pending"})
		return
	}
	resp := map[string]any{"status": "complete"}
	for k, v := range sess.AuthResult {
		resp[k] = v
	}
	writeJSON(w, http.StatusOK, resp)
}
