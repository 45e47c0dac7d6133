package server

import (
	"bytes"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsdata-io/gateway/obs"
)

// handleShopifyWebhook implements the webhook intake surface (spec
// §6.3 item 3, §4.3.5): verify the HMAC signature, normalize the event,
// and hand it to the downstream event log. The normalized event isn't
// persisted by this package (no reasoning-chain store is in scope); it
// is logged so an operator can see webhooks arriving end to end.
func (s *Server) handleShopifyWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.Shopify == nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("shopify adapter not configured"))
		return
	}

	topic := chi.URLParam(r, "topic")
	signature := r.Header.Get("X-Shopify-Hmac-Sha256")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("failed reading webhook body"))
		return
	}

	if !s.deps.Shopify.VerifyWebhook(body, signature) {
		writeJSON(w, http.StatusUnauthorized, errBody("invalid webhook signature"))
		return
	}

	event, err := s.deps.Shopify.ProcessWebhook(topic, bytes.NewReader(body))
	if err != nil {
		writeError(w, err)
		return
	}

	obs.Component("server.webhooks").Info("shopify webhook received",
		"topic", topic, "type", event.Type, "id", event.ID, "shop", event.ShopDomain)

	w.WriteHeader(http.StatusOK)
}
