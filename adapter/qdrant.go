package adapter

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
)

// QdrantAdapter embeds the natural-language question and runs a nearest
// neighbor search against a single collection (spec §4.3.3).
type QdrantAdapter struct {
	uri        string
	collection string
	client     *qdrant.Client
	llmc       llm.Client
	log        *slogAdapter
}

// NewQdrantAdapter dials immediately: the go-client constructor performs
// a gRPC/HTTP handshake, unlike the deferred-connect SQL/Mongo drivers.
func NewQdrantAdapter(host string, port int, apiKey, collection string, useGRPC bool, client llm.Client) (*QdrantAdapter, error) {
	cfg := &qdrant.Config{Host: host, Port: port, APIKey: apiKey, UseTLS: apiKey != ""}
	qc, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed to create qdrant client", err)
	}
	uri := fmt.Sprintf("qdrant://%s:%d/%s", host, port, collection)
	return &QdrantAdapter{uri: uri, collection: collection, client: qc, llmc: client, log: newSlogAdapter("adapter.qdrant")}, nil
}

func (a *QdrantAdapter) DBType() string        { return "qdrant" }
func (a *QdrantAdapter) ConnectionURI() string { return a.uri }

// LLMToQuery embeds nl directly; there is no intermediate query language
// for a vector search, only a target vector and top-k (spec §4.3.3).
func (a *QdrantAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	vec, err := a.llmc.Embed(ctx, nl)
	if err != nil {
		return nil, err
	}
	return model.VectorSearchQuery{Vector: vec, TopK: 10, Collection: a.collection}, nil
}

func (a *QdrantAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	q, ok := query.(model.VectorSearchQuery)
	if !ok {
		return nil, errs.New(errs.QueryInvalid, "qdrant adapter requires a VectorSearchQuery", nil)
	}
	collection := q.Collection
	if collection == "" {
		collection = a.collection
	}
	if len(q.Vector) == 0 {
		return nil, errs.New(errs.QueryInvalid, "vector search requires a non-empty query vector", nil)
	}

	limit := uint64(q.TopK)
	if limit == 0 {
		limit = 10
	}

	points, err := a.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "qdrant search failed", err)
	}

	out := make([]model.Row, 0, len(points))
	for _, p := range points {
		row := model.Row{"id": p.Id.String(), "score": p.Score}
		for k, v := range p.Payload {
			row[k] = v.String()
		}
		out = append(out, row)
	}
	return out, nil
}

// IntrospectSchema summarizes collection configuration (vector size,
// distance metric, point count) as a single SchemaDocument per
// collection, since vector stores have no column schema to enumerate.
func (a *QdrantAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	names, err := a.client.ListCollections(ctx)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed listing qdrant collections", err)
	}

	var docs []model.SchemaDocument
	var partial bool
	for _, name := range names {
		info, err := a.client.GetCollectionInfo(ctx, name)
		if err != nil {
			a.log.Warn("partial introspection for collection", "collection", name, "error", err)
			partial = true
			continue
		}
		docs = append(docs, model.SchemaDocument{
			ID:      fmt.Sprintf("collection:%s", name),
			Content: fmt.Sprintf("Vector collection %s with %d points", name, info.GetPointsCount()),
			DBType:  a.DBType(),
		})
	}

	if partial {
		return docs, errs.New(errs.PartialIntrospection, "some collections could not be introspected", nil)
	}
	return docs, nil
}

func (a *QdrantAdapter) TestConnection(ctx context.Context) bool {
	if a.client == nil {
		return false
	}
	_, err := a.client.HealthCheck(ctx)
	return err == nil
}

var _ Adapter = (*QdrantAdapter)(nil)
