package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
)

// SemanticSearcher is satisfied by the Slack indexer's read path; kept
// as a narrow interface here so this package does not import slackindex
// (spec §4.3.4: semantic_search is routed through the indexer's vector
// store rather than handled directly by this adapter).
type SemanticSearcher interface {
	SemanticSearch(ctx context.Context, workspaceID, query string, topK int) ([]model.Row, error)
}

// SlackAdapter operates against an auxiliary MCP gateway, never against
// the Slack API directly (spec §4.3.4, §6.4).
type SlackAdapter struct {
	uri         string
	gatewayURL  string
	workspaceID string
	httpc       *http.Client
	llmc        llm.Client
	search      SemanticSearcher
}

func NewSlackAdapter(gatewayURL, workspaceID string, client llm.Client, search SemanticSearcher) *SlackAdapter {
	return &SlackAdapter{
		uri:         "slack://" + workspaceID,
		gatewayURL:  gatewayURL,
		workspaceID: workspaceID,
		httpc:       &http.Client{},
		llmc:        client,
		search:      search,
	}
}

func (a *SlackAdapter) DBType() string        { return "slack" }
func (a *SlackAdapter) ConnectionURI() string { return a.uri }

var slackQueryTypes = map[string]bool{
	"channels": true, "messages": true, "thread": true,
	"user": true, "bot": true, "semantic_search": true,
}

// LLMToQuery asks the model to pick one of the tagged-union query shapes
// and its parameters; unlike the SQL adapters there is no sanitizer step
// since the gateway itself enforces read scopes.
func (a *SlackAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	raw, err := a.llmc.GenerateCompletion(ctx, "classify this Slack request into {type, parameters}: "+nl, 512, 0.0)
	if err != nil {
		return nil, err
	}
	parsed, ok := tryParseJSONObject(raw)
	if !ok {
		return nil, errs.New(errs.LLMParseError, "slack classification did not return valid JSON", nil).WithRawText(raw)
	}
	qType, _ := parsed["type"].(string)
	if !slackQueryTypes[qType] {
		return nil, errs.New(errs.QueryInvalid, fmt.Sprintf("unsupported slack query type %q", qType), nil)
	}
	params, _ := parsed["parameters"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	return model.SlackToolInvocationQuery{Type: qType, Parameters: params}, nil
}

func (a *SlackAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	q, ok := query.(model.SlackToolInvocationQuery)
	if !ok {
		return nil, errs.New(errs.QueryInvalid, "slack adapter requires a SlackToolInvocationQuery", nil)
	}

	if q.Type == "semantic_search" {
		text, _ := q.Parameters["query"].(string)
		topK := 10
		if v, ok := q.Parameters["top_k"].(int); ok && v > 0 {
			topK = v
		}
		if a.search == nil {
			return nil, errs.New(errs.BackendUnreachable, "slack semantic search is unavailable: no indexer attached", nil)
		}
		return a.search.SemanticSearch(ctx, a.workspaceID, text, topK)
	}

	body, err := json.Marshal(map[string]any{
		"workspace_id": a.workspaceID,
		"type":         q.Type,
		"parameters":   q.Parameters,
	})
	if err != nil {
		return nil, errs.New(errs.QueryInvalid, "failed encoding slack gateway request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.gatewayURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed building slack gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "slack gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errs.New(errs.AuthExpired, "slack gateway token expired", nil)
	}
	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.BackendUnreachable, "slack gateway returned a server error", nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.QueryInvalid, "slack gateway rejected the request", nil)
	}

	var decoded struct {
		Rows []model.Row `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed decoding slack gateway response", err)
	}
	return decoded.Rows, nil
}

// IntrospectSchema returns a static summary: the gateway's data shape is
// fixed by its own query types, not by a per-workspace discoverable schema.
func (a *SlackAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	return []model.SchemaDocument{{
		ID:      "slack:query-types",
		Content: "Slack gateway supports query types: channels, messages, thread, user, bot, semantic_search",
		DBType:  a.DBType(),
	}}, nil
}

func (a *SlackAdapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.gatewayURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

var _ Adapter = (*SlackAdapter)(nil)
