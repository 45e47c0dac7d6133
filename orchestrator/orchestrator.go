// Package orchestrator resolves a connection URI into a concrete adapter
// and forwards every adapter operation, redacting credentials on every
// logged URI (spec §4.4).
package orchestrator

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/opsdata-io/gateway/adapter"
	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/model"
	"github.com/opsdata-io/gateway/obs"
)

// dbTypeSynonyms normalizes accepted scheme/db_type spellings to the
// canonical adapter tag (spec §4.4 step 3).
var dbTypeSynonyms = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mongo":      "mongodb",
	"mongodb":    "mongodb",
	"qdrant":     "qdrant",
	"slack":      "slack",
	"shopify":    "shopify",
	"ga4":        "ga4",
}

// Options carries the optional keyword arguments the constructor accepts,
// mirroring Python's **opts (spec §4.4).
type Options struct {
	DBType string
}

// Orchestrator wraps exactly one Adapter, selected once at construction
// time from the connection URI (spec §4.4).
type Orchestrator struct {
	uri     string
	adapter adapter.Adapter
	log     *slog.Logger
	metrics *obs.Metrics
}

// WithMetrics attaches a Metrics instance so every Execute/Run call
// records its outcome and duration under the adapter's db_type. Safe to
// skip in tests; a nil metrics instance is a no-op.
func (o *Orchestrator) WithMetrics(m *obs.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// New parses uri, resolves the db_type (explicit override or scheme),
// and instantiates the matching adapter via factory.
func New(uri string, opts Options, factory AdapterFactory) (*Orchestrator, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, errs.New(errs.ConfigInvalid, "invalid connection URI", err)
	}

	dbType, err := resolveDBType(parsed.Scheme, opts.DBType)
	if err != nil {
		return nil, err
	}

	a, err := factory(dbType, uri, opts)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{uri: uri, adapter: a, log: obs.Component("orchestrator")}, nil
}

// AdapterFactory instantiates a concrete Adapter for the resolved db_type.
type AdapterFactory func(dbType, uri string, opts Options) (adapter.Adapter, error)

// resolveDBType implements spec §4.4 steps 2-3: http(s) schemes require
// an explicit db_type, everything else normalizes from the scheme, with
// opts.DBType always taking precedence when present.
func resolveDBType(scheme, explicit string) (string, error) {
	if explicit != "" {
		norm := strings.ToLower(explicit)
		if canon, ok := dbTypeSynonyms[norm]; ok {
			return canon, nil
		}
		return norm, nil
	}

	scheme = strings.ToLower(scheme)
	if scheme == "http" || scheme == "https" {
		return "", errs.New(errs.AdapterSelectionAmbiguous, "an http(s) connection URI requires an explicit db_type", nil)
	}

	if canon, ok := dbTypeSynonyms[scheme]; ok {
		return canon, nil
	}
	return scheme, nil
}

func (o *Orchestrator) redactedURI() string {
	parsed, err := url.Parse(o.uri)
	if err != nil {
		return "***"
	}
	if parsed.User != nil {
		if name := parsed.User.Username(); name != "" {
			parsed.User = url.UserPassword(name, "***")
		}
	}
	return parsed.String()
}

func (o *Orchestrator) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	o.log.Info("llm_to_query", "uri", o.redactedURI())
	return o.adapter.LLMToQuery(ctx, nl, schemaChunks)
}

func (o *Orchestrator) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	o.log.Info("execute", "uri", o.redactedURI())
	start := time.Now()
	rows, err := o.adapter.Execute(ctx, query)
	o.recordQuery(start, err)
	return rows, err
}

// Run translates nl then executes the result in one call (spec §4.4).
func (o *Orchestrator) Run(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) ([]model.Row, model.Query, error) {
	o.log.Info("run", "uri", o.redactedURI())
	start := time.Now()
	rows, query, err := adapter.Run(ctx, o.adapter, nl, schemaChunks)
	o.recordQuery(start, err)
	return rows, query, err
}

func (o *Orchestrator) recordQuery(start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordAdapterQuery(o.adapter.DBType(), time.Since(start), err)
}

func (o *Orchestrator) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	o.log.Info("introspect_schema", "uri", o.redactedURI())
	return o.adapter.IntrospectSchema(ctx)
}

func (o *Orchestrator) TestConnection(ctx context.Context) bool {
	o.log.Info("test_connection", "uri", o.redactedURI())
	return o.adapter.TestConnection(ctx)
}

func (o *Orchestrator) DBType() string        { return o.adapter.DBType() }
func (o *Orchestrator) ConnectionURI() string { return o.uri }
