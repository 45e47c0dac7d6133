// Package adapter implements the uniform polymorphic contract over seven
// heterogeneous backends (spec §4.3): translate NL to a backend-native
// query, execute it, introspect schema, and self-test connectivity.
package adapter

import (
	"context"

	"github.com/opsdata-io/gateway/model"
)

// Adapter is the shared contract every backend variant satisfies.
type Adapter interface {
	// LLMToQuery renders a backend-specific prompt, invokes the LLM client,
	// and returns a backend-native Query. schemaChunks may be empty.
	LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error)

	Execute(ctx context.Context, query model.Query) ([]model.Row, error)

	IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error)

	// TestConnection never returns an error; any failure maps to false.
	TestConnection(ctx context.Context) bool

	// DBType is the normalized backend tag used for tool-compatibility
	// filtering and schema indexing.
	DBType() string

	// ConnectionURI returns the URI used to construct this adapter, for
	// round-tripping into the availability monitor and the
	// orchestrator's redaction logging.
	ConnectionURI() string
}

// Run executes llm_to_query then execute in one call, per spec §4.4.
func Run(ctx context.Context, a Adapter, nl string, schemaChunks []model.SchemaDocument) ([]model.Row, model.Query, error) {
	q, err := a.LLMToQuery(ctx, nl, schemaChunks)
	if err != nil {
		return nil, nil, err
	}
	rows, err := a.Execute(ctx, q)
	return rows, q, err
}
