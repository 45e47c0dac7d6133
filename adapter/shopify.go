package adapter

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
)

// shopifyResourceKeywords maps a keyword found in a tolerant SQL-looking
// string to the bare Shopify resource name, in the order they are
// checked (spec §4.3.5, supplemented from original_source's
// _convert_query_format resource table).
var shopifyResourceKeywords = []struct {
	keyword  string
	resource string
}{
	{"products", "products"},
	{"orders", "orders"},
	{"customers", "customers"},
	{"inventory", "inventory_levels"},
	{"locations", "locations"},
	{"collections", "collections"},
	{"variants", "variants"},
	{"transactions", "transactions"},
}

var limitRE = regexp.MustCompile(`limit\s+(\d+)`)

var legacyPathRE = regexp.MustCompile(`/admin/api/[^/]+/([^.]+)(?:\.json)?$`)

// extractResource parses a tolerant, SQL-looking input string and
// returns the bare resource name and row limit (spec §4.3.5).
func extractResource(raw string) (resource string, limit int) {
	lower := strings.ToLower(raw)
	resource = "products"
	for _, cand := range shopifyResourceKeywords {
		if strings.Contains(lower, cand.keyword) {
			resource = cand.resource
			break
		}
	}
	limit = 50
	if m := limitRE.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			limit = n
		}
	}
	if strings.Contains(lower, "count") {
		resource += "/count"
	}
	return resource, limit
}

// normalizeEndpoint converts a legacy full API path
// (/admin/api/<version>/products.json) to the bare resource name.
func normalizeEndpoint(endpoint string) string {
	if m := legacyPathRE.FindStringSubmatch(endpoint); m != nil {
		return m[1]
	}
	return endpoint
}

// ScopeAvailability is the result of comparing granted vs requested
// Shopify scopes (spec §4.3.5: available_scopes()).
type ScopeAvailability struct {
	Granted   []string `json:"granted"`
	Requested []string `json:"requested"`
	Missing   []string `json:"missing"`
}

// ShopifyAdapter accepts tolerant SQL-like or dict-shaped queries,
// reconstitutes full API paths at HTTP time, and exposes scope and
// webhook facilities beyond the core Adapter contract (spec §4.3.5).
type ShopifyAdapter struct {
	shopDomain      string
	accessToken     string
	apiVersion      string
	webhookSecret   string
	grantedScopes   []string
	requestedScopes []string
	httpc           *http.Client
	llmc            llm.Client
}

func NewShopifyAdapter(shopDomain, accessToken, apiVersion, webhookSecret string, grantedScopes, requestedScopes []string, client llm.Client) *ShopifyAdapter {
	if apiVersion == "" {
		apiVersion = "2025-04"
	}
	return &ShopifyAdapter{
		shopDomain:      shopDomain,
		accessToken:     accessToken,
		apiVersion:      apiVersion,
		webhookSecret:   webhookSecret,
		grantedScopes:   grantedScopes,
		requestedScopes: requestedScopes,
		httpc:           &http.Client{},
		llmc:            client,
	}
}

func (a *ShopifyAdapter) DBType() string        { return "shopify" }
func (a *ShopifyAdapter) ConnectionURI() string { return "https://" + a.shopDomain }

func (a *ShopifyAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	resource, limit := extractResource(nl)
	return model.ShopifyAPIQuery{
		Endpoint: resource,
		Method:   http.MethodGet,
		Params:   map[string]any{"limit": limit},
	}, nil
}

func (a *ShopifyAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	q, ok := query.(model.ShopifyAPIQuery)
	if !ok {
		return nil, errs.New(errs.QueryInvalid, "shopify adapter requires a ShopifyAPIQuery", nil)
	}

	endpoint := normalizeEndpoint(q.Endpoint)
	method := q.Method
	if method == "" {
		method = http.MethodGet
	}

	body, err := a.request(ctx, endpoint, method, q.Params)
	if err != nil {
		return nil, err
	}

	// The top-level array key matches the bare resource name; count
	// endpoints return {"count": N} instead.
	key := strings.TrimSuffix(endpoint, "/count")
	if key != endpoint {
		if n, ok := body["count"]; ok {
			return []model.Row{{"count": n}}, nil
		}
	}
	if arr, ok := body[key].([]any); ok {
		rows := make([]model.Row, 0, len(arr))
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, model.Row(m))
			}
		}
		return rows, nil
	}
	return []model.Row{model.Row(body)}, nil
}

func (a *ShopifyAdapter) request(ctx context.Context, endpoint, method string, params map[string]any) (map[string]any, error) {
	if a.accessToken == "" || a.shopDomain == "" {
		return nil, errs.New(errs.AuthExpired, "shopify adapter is not authenticated", nil)
	}

	url := fmt.Sprintf("https://%s/admin/api/%s/%s.json", a.shopDomain, a.apiVersion, strings.TrimPrefix(endpoint, "/"))

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
		if err == nil {
			q := req.URL.Query()
			for k, v := range params {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			req.URL.RawQuery = q.Encode()
		}
	} else {
		payload, mErr := json.Marshal(params)
		if mErr != nil {
			return nil, errs.New(errs.QueryInvalid, "failed encoding shopify request body", mErr)
		}
		req, err = http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	}
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed building shopify request", err)
	}
	req.Header.Set("X-Shopify-Access-Token", a.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "shopify request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errs.New(errs.AuthExpired, "shopify access token rejected", nil)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.New(errs.QuotaExceeded, "shopify API rate limit exceeded", nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.BackendUnreachable, fmt.Sprintf("shopify API returned status %d", resp.StatusCode), nil)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed decoding shopify response", err)
	}
	return out, nil
}

// AvailableScopes diffs granted against requested scopes (spec §4.3.5).
func (a *ShopifyAdapter) AvailableScopes() ScopeAvailability {
	granted := map[string]bool{}
	for _, s := range a.grantedScopes {
		granted[s] = true
	}
	var missing []string
	for _, s := range a.requestedScopes {
		if !granted[s] {
			missing = append(missing, s)
		}
	}
	return ScopeAvailability{Granted: a.grantedScopes, Requested: a.requestedScopes, Missing: missing}
}

// VerifyWebhook checks the HMAC-SHA256 signature Shopify attaches to
// every webhook delivery, comparing in constant time (spec §4.3.5).
//
// Stdlib crypto/hmac and crypto/sha256 are used here deliberately: no
// third-party library in the reference pack wraps HMAC verification,
// and this is the exact primitive Shopify's webhook contract specifies.
func (a *ShopifyAdapter) VerifyWebhook(payload []byte, signature string) bool {
	if a.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookEvent is the normalized shape every webhook topic is rewritten
// into before it reaches downstream consumers (spec §4.3.5).
type WebhookEvent struct {
	Type       string
	ID         any
	Data       map[string]any
	ShopDomain string
	UpdatedAt  string
}

// ProcessWebhook normalizes a Shopify webhook body by topic prefix.
func (a *ShopifyAdapter) ProcessWebhook(topic string, body io.Reader) (WebhookEvent, error) {
	var data map[string]any
	if err := json.NewDecoder(body).Decode(&data); err != nil {
		return WebhookEvent{}, errs.New(errs.QueryInvalid, "failed decoding webhook body", err)
	}

	eventType := "unknown"
	switch {
	case strings.HasPrefix(topic, "orders/"):
		eventType = "order"
	case strings.HasPrefix(topic, "customers/"):
		eventType = "customer"
	case strings.HasPrefix(topic, "products/"):
		eventType = "product"
	case strings.HasPrefix(topic, "inventory_levels/"):
		eventType = "inventory"
	case strings.HasPrefix(topic, "checkouts/"):
		eventType = "checkout"
	}

	id := data["id"]
	if eventType == "inventory" {
		id = fmt.Sprintf("%v_%v", data["inventory_item_id"], data["location_id"])
	}

	updatedAt, _ := data["updated_at"].(string)

	return WebhookEvent{
		Type:       eventType,
		ID:         id,
		Data:       data,
		ShopDomain: a.shopDomain,
		UpdatedAt:  updatedAt,
	}, nil
}

func (a *ShopifyAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	return []model.SchemaDocument{
		{ID: "shopify:orders", Content: "Shopify Orders: id, customer_id, total_price, financial_status, fulfillment_status, created_at, updated_at, line_items", DBType: a.DBType()},
		{ID: "shopify:products", Content: "Shopify Products: id, title, description, vendor, product_type, handle, status, variants, images, tags", DBType: a.DBType()},
		{ID: "shopify:customers", Content: "Shopify Customers: id, first_name, last_name, email, orders_count, total_spent, created_at, tags", DBType: a.DBType()},
		{ID: "shopify:inventory_levels", Content: "Shopify Inventory: inventory_item_id, location_id, available, updated_at", DBType: a.DBType()},
	}, nil
}

func (a *ShopifyAdapter) TestConnection(ctx context.Context) bool {
	if a.accessToken == "" || a.shopDomain == "" {
		return false
	}
	_, err := a.request(ctx, "shop", http.MethodGet, nil)
	return err == nil
}

var _ Adapter = (*ShopifyAdapter)(nil)
