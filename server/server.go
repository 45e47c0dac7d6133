// Package server exposes the three HTTP surfaces spec §6.3 describes —
// the MCP gateway, the primary query endpoint, and Shopify webhook
// intake — behind one go-chi router, grounded on the teacher corpus's
// chi+cors+middleware wiring (xentoshi-lake/api/main.go).
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opsdata-io/gateway/adapter"
	"github.com/opsdata-io/gateway/availability"
	"github.com/opsdata-io/gateway/credstore"
	"github.com/opsdata-io/gateway/orchestrator"
	"github.com/opsdata-io/gateway/slackindex"
	"github.com/opsdata-io/gateway/tools"
	"github.com/opsdata-io/gateway/toolexec"
)

// SlackOAuthExchanger completes the provider-side half of the Slack OAuth
// handshake. The handshake itself (talking to slack.com, rendering the
// web-app's redirect pages) is an external collaborator per spec's
// explicit Non-goals; the gateway only needs the resulting bundle.
type SlackOAuthExchanger interface {
	Exchange(code string) (workspaceID, workspaceName, botToken string, err error)
	AuthorizeURL(state string) string
}

// Deps wires every package this surface fronts. Nil fields disable the
// routes that depend on them, so a partially-configured deployment (e.g.
// no Shopify credentials) still serves the rest of the surface.
type Deps struct {
	Registry   *tools.Registry
	Node       *toolexec.Node
	Orch       *orchestrator.Orchestrator
	Shopify    *adapter.ShopifyAdapter
	Credstore  *credstore.Store
	Bearer     *credstore.BearerMinter
	Sessions   *credstore.SessionStore
	SlackOAuth SlackOAuthExchanger
	Indexer    *slackindex.Indexer
	IndexStore *slackindex.Store
	Monitor    *availability.Monitor
	WebAppSuccessURL string
}

type Server struct {
	deps Deps

	mu             sync.RWMutex
	slackBotTokens map[string]string // workspace_id -> bot token, filled by the OAuth callback
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps, slackBotTokens: make(map[string]string)}
}

// Router builds the chi.Mux. Middleware order mirrors the teacher's
// api/main.go: request logging, panic recovery, CORS, then routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tools/invoke", s.handleToolsInvoke)
		r.Post("/tools/token", s.handleToolsToken)

		r.Get("/auth/slack/authorize", s.handleSlackAuthorize)
		r.Get("/auth/slack/callback", s.handleSlackCallback)
		r.Get("/auth/slack/check_session/{session_id}", s.handleSlackCheckSession)

		r.Post("/indexing/run", s.handleIndexingRun)
		r.Post("/indexing/search", s.handleIndexingSearch)
		r.Get("/indexing/status/{workspace_id}", s.handleIndexingStatus)

		r.Post("/query", s.handleQuery)

		r.Get("/availability", s.handleAvailability)

		r.Post("/webhooks/shopify/{topic}", s.handleShopifyWebhook)
	})

	return r
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if s.deps.Orch != nil && !s.deps.Orch.TestConnection(ctx) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("backend unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("availability monitor not configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":  s.deps.Monitor.Summary(),
		"backends": s.deps.Monitor.Snapshot(),
	})
}
