package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/model"
)

// HTTPGatewayQuery is the generic request shape used when no more
// specific adapter claims the http/https scheme (spec §4.3.7).
type HTTPGatewayQuery struct {
	Path   string
	Method string
	Body   map[string]any
}

func (HTTPGatewayQuery) isQuery() {}

// HTTPGatewayAdapter is the fallback used only when the orchestrator was
// given an explicit db_type alongside an http(s) URI; construction
// without a db_type is rejected upstream by the orchestrator with
// AdapterSelectionAmbiguous (spec §4.4 step 2), never reached here.
type HTTPGatewayAdapter struct {
	baseURL string
	dbType  string
	httpc   *http.Client
}

func NewHTTPGatewayAdapter(baseURL, dbType string) *HTTPGatewayAdapter {
	return &HTTPGatewayAdapter{baseURL: baseURL, dbType: dbType, httpc: &http.Client{}}
}

func (a *HTTPGatewayAdapter) DBType() string        { return a.dbType }
func (a *HTTPGatewayAdapter) ConnectionURI() string { return a.baseURL }

func (a *HTTPGatewayAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	return HTTPGatewayQuery{Path: "/query", Method: http.MethodPost, Body: map[string]any{"nl": nl}}, nil
}

func (a *HTTPGatewayAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	q, ok := query.(HTTPGatewayQuery)
	if !ok {
		return nil, errs.New(errs.QueryInvalid, "http gateway adapter requires an HTTPGatewayQuery", nil)
	}

	method := q.Method
	if method == "" {
		method = http.MethodGet
	}

	var reqBody *bytes.Reader
	if q.Body != nil {
		payload, err := json.Marshal(q.Body)
		if err != nil {
			return nil, errs.New(errs.QueryInvalid, "failed encoding http gateway request body", err)
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+q.Path, reqBody)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed building http gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "http gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errs.New(errs.AuthExpired, "http gateway rejected credentials", nil)
	}
	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.BackendUnreachable, fmt.Sprintf("http gateway returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.QueryInvalid, fmt.Sprintf("http gateway rejected the request: status %d", resp.StatusCode), nil)
	}

	var decoded struct {
		Rows []model.Row `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed decoding http gateway response", err)
	}
	return decoded.Rows, nil
}

func (a *HTTPGatewayAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	return []model.SchemaDocument{{
		ID:      "http:" + a.dbType,
		Content: fmt.Sprintf("Generic HTTP gateway backend (db_type=%s); schema is opaque to this adapter", a.dbType),
		DBType:  a.dbType,
	}}, nil
}

func (a *HTTPGatewayAdapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
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

var _ Adapter = (*HTTPGatewayAdapter)(nil)
