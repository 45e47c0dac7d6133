package server

import (
	"context"
	"net/http"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/opsdata-io/gateway/errs"
)

// ToolsInvokeRequest is the wire body for POST /api/tools/invoke (spec
// §6.4). WorkspaceID must match the bearer JWT's workspace claim.
type ToolsInvokeRequest struct {
	Tool        string         `json:"tool"`
	Parameters  map[string]any `json:"parameters"`
	WorkspaceID string         `json:"workspace_id"`
}

// handleToolsInvoke dispatches one of the six Slack MCP tool names (spec
// §6.4) against a bot token resolved from the bearer's workspace claim.
func (s *Server) handleToolsInvoke(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bearer == nil {
		writeJSON(w, http.StatusInternalServerError, errBody("bearer minting not configured"))
		return
	}

	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errBody("missing bearer token"))
		return
	}

	var req ToolsInvokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_, workspaceID, err := s.deps.Bearer.Verify(token, req.WorkspaceID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errBody("invalid or expired token"))
		return
	}

	botToken, err := s.resolveSlackBotToken(workspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	client := goslack.New(botToken)

	result, err := invokeSlackTool(r.Context(), client, req.Tool, req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// ToolsTokenRequest is the body for POST /api/tools/token.
type ToolsTokenRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
}

func (s *Server) handleToolsToken(w http.ResponseWriter, r *http.Request) {
	var req ToolsTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := s.resolveSlackBotToken(req.WorkspaceID); err != nil {
		writeJSON(w, http.StatusForbidden, errBody("no Slack association for this user/workspace"))
		return
	}

	bearer, err := s.deps.Bearer.Mint(req.UserID, req.WorkspaceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      bearer.Token,
		"expires_at": bearer.ExpiresAt,
	})
}

// resolveSlackBotToken looks up the bot token associated with
// workspaceID. The bot token itself is kept in the server's in-memory
// installation cache, populated by the OAuth callback (spec's Non-goals
// exclude the reasoning-chain persistence table that would otherwise
// house a workspaces table; this cache is the in-process stand-in).
func (s *Server) resolveSlackBotToken(workspaceID string) (string, error) {
	s.mu.RLock()
	token, ok := s.slackBotTokens[workspaceID]
	s.mu.RUnlock()
	if !ok {
		return "", errs.New(errs.AuthExpired, "workspace not associated with any Slack installation", nil)
	}
	return token, nil
}

// invokeSlackTool dispatches the fixed set of tool names spec §6.4
// names, every call direct slack-go/slack, matching this repo's other
// direct-API-call adapters rather than a wrapper layer.
func invokeSlackTool(ctx context.Context, client *goslack.Client, tool string, params map[string]any) (any, error) {
	switch tool {
	case "slack_list_channels":
		channels, _, err := client.GetConversationsContext(ctx, &goslack.GetConversationsParameters{Limit: 200})
		if err != nil {
			return nil, errs.New(errs.BackendUnreachable, "slack_list_channels failed", err)
		}
		return channels, nil

	case "slack_get_channel_history":
		channelID, _ := params["channel_id"].(string)
		limit := 100
		if l, ok := params["limit"].(float64); ok {
			limit = int(l)
		}
		resp, err := client.GetConversationHistoryContext(ctx, &goslack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Limit:     limit,
		})
		if err != nil {
			return nil, errs.New(errs.BackendUnreachable, "slack_get_channel_history failed", err)
		}
		return resp.Messages, nil

	case "slack_get_thread_replies":
		channelID, _ := params["channel_id"].(string)
		threadTS, _ := params["thread_ts"].(string)
		msgs, _, _, err := client.GetConversationRepliesContext(ctx, &goslack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
		})
		if err != nil {
			return nil, errs.New(errs.BackendUnreachable, "slack_get_thread_replies failed", err)
		}
		return msgs, nil

	case "slack_user_info":
		userID, _ := params["user_id"].(string)
		user, err := client.GetUserInfoContext(ctx, userID)
		if err != nil {
			return nil, errs.New(errs.BackendUnreachable, "slack_user_info failed", err)
		}
		return user, nil

	case "slack_bot_info":
		auth, err := client.AuthTestContext(ctx)
		if err != nil {
			return nil, errs.New(errs.BackendUnreachable, "slack_bot_info failed", err)
		}
		return auth, nil

	case "slack_post_message":
		channelID, _ := params["channel_id"].(string)
		text, _ := params["text"].(string)
		opts := []goslack.MsgOption{goslack.MsgOptionText(text, false)}
		if threadTS, ok := params["thread_ts"].(string); ok && threadTS != "" {
			opts = append(opts, goslack.MsgOptionTS(threadTS))
		}
		_, ts, err := client.PostMessageContext(ctx, channelID, opts...)
		if err != nil {
			return nil, errs.New(errs.BackendUnreachable, "slack_post_message failed", err)
		}
		return map[string]any{"ts": ts}, nil

	default:
		return nil, errs.New(errs.QueryInvalid, "unknown tool: "+tool, nil)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
