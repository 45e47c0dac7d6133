package server

import (
	"net/http"

	"github.com/opsdata-io/gateway/model"
)

// QueryRequest is the body for POST /api/query, the operator-facing
// primary query endpoint (spec §6.3 item 2).
type QueryRequest struct {
	Question    string `json:"question"`
	DBType      string `json:"db_type,omitempty"`
	URI         string `json:"uri,omitempty"`
	Orchestrate bool   `json:"orchestrate,omitempty"`
	Analyze     bool   `json:"analyze,omitempty"`
}

// handleQuery answers a single natural-language question. When
// Orchestrate is set (or no adapter-level override is given) it runs the
// full Tool Execution Node pipeline (spec §4.6); otherwise it talks to
// the already-configured single-adapter orchestrator directly (spec
// §4.4), returning the issued query alongside the rows.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errBody("question is required"))
		return
	}

	if req.Orchestrate || req.URI == "" {
		if s.deps.Node == nil {
			writeJSON(w, http.StatusServiceUnavailable, errBody("tool execution node not configured"))
			return
		}
		result, err := s.deps.Node.Run(r.Context(), req.Question)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"plan":         result.Plan,
			"results":      result.ExecutionResults,
			"synthesis":    result.Synthesis,
			"success":      result.Success,
			"success_rate": result.SuccessRate,
		})
		return
	}

	if s.deps.Orch == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("orchestrator not configured"))
		return
	}
	rows, query, err := s.deps.Orch.Run(r.Context(), req.Question, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"query": queryText(query), "rows": rows}
	if req.Analyze {
		resp["analysis"] = "analysis requires an LLM client wired through the orchestrator's adapter"
	}
	writeJSON(w, http.StatusOK, resp)
}

// queryText renders the sum-typed model.Query into a display string for
// the response body; each variant carries its own native representation.
func queryText(q model.Query) string {
	switch v := q.(type) {
	case model.SQLQuery:
		return v.Text
	case model.ShopifyAPIQuery:
		return v.Method + " " + v.Endpoint
	default:
		return ""
	}
}
