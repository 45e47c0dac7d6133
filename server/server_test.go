package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdata-io/gateway/adapter"
	"github.com/opsdata-io/gateway/availability"
	"github.com/opsdata-io/gateway/credstore"
)

func TestHandleAvailability_NotConfigured(t *testing.T) {
	srv := NewServer(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/availability", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleAvailability_ReturnsSummaryAndBackends(t *testing.T) {
	monitor := availability.NewMonitor(nil)
	srv := NewServer(Deps{Monitor: monitor})

	req := httptest.NewRequest(http.MethodGet, "/api/availability", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body, "summary")
	assert.Contains(t, body, "backends")
}

func TestHandleToolsToken_ForbiddenWithoutAssociation(t *testing.T) {
	srv := NewServer(Deps{Bearer: credstore.NewBearerMinter("secret")})

	reqBody, _ := json.Marshal(ToolsTokenRequest{UserID: "u1", WorkspaceID: "ws1"})
	req := httptest.NewRequest(http.MethodPost, "/api/tools/token", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleToolsToken_MintsBearerWhenAssociated(t *testing.T) {
	srv := NewServer(Deps{Bearer: credstore.NewBearerMinter("secret")})
	srv.slackBotTokens["ws1"] = "xoxb-fake"

	reqBody, _ := json.Marshal(ToolsTokenRequest{UserID: "u1", WorkspaceID: "ws1"})
	req := httptest.NewRequest(http.MethodPost, "/api/tools/token", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotEmpty(t, body["token"])
}

func TestHandleToolsInvoke_RejectsMissingBearer(t *testing.T) {
	srv := NewServer(Deps{Bearer: credstore.NewBearerMinter("secret")})

	reqBody, _ := json.Marshal(ToolsInvokeRequest{Tool: "slack_bot_info", WorkspaceID: "ws1"})
	req := httptest.NewRequest(http.MethodPost, "/api/tools/invoke", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleQuery_RequiresQuestion(t *testing.T) {
	srv := NewServer(Deps{})
	reqBody, _ := json.Marshal(QueryRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleShopifyWebhook_RejectsBadSignature(t *testing.T) {
	shopify := adapter.NewShopifyAdapter("shop.myshopify.com", "token", "", "webhook-secret", nil, nil, nil)
	srv := NewServer(Deps{Shopify: shopify})

	body := []byte(`{"id": 123}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/shopify/orders/create", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", "not-a-real-signature")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleShopifyWebhook_AcceptsValidSignature(t *testing.T) {
	secret := "webhook-secret"
	shopify := adapter.NewShopifyAdapter("shop.myshopify.com", "token", "", secret, nil, nil, nil)
	srv := NewServer(Deps{Shopify: shopify})

	body := []byte(`{"id": 123, "updated_at": "2026-01-01T00:00:00Z"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/shopify/orders/create", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", sig)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSlackCheckSession_PendingThenComplete(t *testing.T) {
	sessions := credstore.NewSessionStore()
	srv := NewServer(Deps{Sessions: sessions})

	sess, err := sessions.Create("user-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/slack/check_session/"+sess.ID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "pending", body["status"])

	require.NoError(t, sessions.Complete(sess.ID, map[string]any{"workspace_id": "ws-1"}))

	req2 := httptest.NewRequest(http.MethodGet, "/api/auth/slack/check_session/"+sess.ID, nil)
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	var body2 map[string]any
	require.NoError(t, json.NewDecoder(rec2.Body).Decode(&body2))
	assert.Equal(t, "complete", body2["status"])
	assert.Equal(t, "ws-1", body2["workspace_id"])
}
