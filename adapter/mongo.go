package adapter

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
)

// MongoAdapter translates natural language into an aggregation pipeline
// and runs it against a single target database (spec §4.3.2).
type MongoAdapter struct {
	uri    string
	client *mongo.Client
	db     *mongo.Database
	llmc   llm.Client
	log    *slogAdapter
}

// NewMongoAdapter connects lazily: mongo.Connect itself does not dial
// until the first operation, matching the pool's lazy-creation contract.
func NewMongoAdapter(ctx context.Context, uri, dbName string, client llm.Client) (*MongoAdapter, error) {
	mc, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed to create mongo client", err)
	}
	return &MongoAdapter{uri: uri, client: mc, db: mc.Database(dbName), llmc: client, log: newSlogAdapter("adapter.mongo")}, nil
}

func (a *MongoAdapter) DBType() string        { return "mongodb" }
func (a *MongoAdapter) ConnectionURI() string { return a.uri }

// LLMToQuery asks the model for a {collection, pipeline} document and
// converts the pipeline stages from map[string]any into bson.D-compatible
// maps understood by Execute (spec §4.3.2).
func (a *MongoAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	schemaContext := renderSchemaContext(schemaChunks)
	out, err := a.llmc.GenerateMongoQuery(ctx, nl, schemaContext)
	if err != nil {
		return nil, err
	}

	collection, _ := out["collection"].(string)
	if collection == "" {
		return nil, errs.New(errs.QueryInvalid, "mongo query missing collection", nil)
	}

	rawStages, ok := out["pipeline"].([]any)
	if !ok {
		return nil, errs.New(errs.QueryInvalid, "mongo query missing pipeline array", nil)
	}

	stages := make([]map[string]any, 0, len(rawStages))
	for _, s := range rawStages {
		stage, ok := s.(map[string]any)
		if !ok {
			return nil, errs.New(errs.QueryInvalid, "mongo pipeline stage is not an object", nil)
		}
		stages = append(stages, stage)
	}

	if err := validateNoWriteStages(stages); err != nil {
		return nil, err
	}

	return model.MongoPipelineQuery{Collection: collection, Pipeline: stages}, nil
}

// writeStageKeys flags aggregation stages that mutate data; the adapter
// is read-only (spec §4.3.2, mirroring the relational sanitizer's intent).
var writeStageKeys = []string{"$out", "$merge"}

func validateNoWriteStages(stages []map[string]any) error {
	for _, stage := range stages {
		for _, key := range writeStageKeys {
			if _, present := stage[key]; present {
				return errs.New(errs.QueryInvalid, fmt.Sprintf("pipeline stage %q is not permitted", key), nil)
			}
		}
	}
	return nil
}

func (a *MongoAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	q, ok := query.(model.MongoPipelineQuery)
	if !ok {
		return nil, errs.New(errs.QueryInvalid, "mongo adapter requires a MongoPipelineQuery", nil)
	}
	if err := validateNoWriteStages(q.Pipeline); err != nil {
		return nil, err
	}

	pipeline := make(bson.A, 0, len(q.Pipeline))
	for _, stage := range q.Pipeline {
		pipeline = append(pipeline, stage)
	}

	cur, err := a.db.Collection(q.Collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "mongo aggregate failed", err)
	}
	defer cur.Close(ctx)

	var out []model.Row
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, errs.New(errs.QueryInvalid, "failed decoding mongo document", err)
		}
		out = append(out, model.Row(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, errs.New(errs.BackendUnreachable, "mongo cursor iteration failed", err)
	}
	return out, nil
}

// IntrospectSchema samples up to sampleSize documents per collection and
// serializes the union of observed top-level field names (spec §4.3.2:
// "schema is inferred, not declared").
func (a *MongoAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	const sampleSize = 20

	names, err := a.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed listing mongo collections", err)
	}

	var docs []model.SchemaDocument
	var partial bool
	for _, name := range names {
		fields, err := a.sampleFields(ctx, name, sampleSize)
		if err != nil {
			a.log.Warn("partial introspection for collection", "collection", name, "error", err)
			partial = true
			continue
		}
		docs = append(docs, model.SchemaDocument{
			ID:      fmt.Sprintf("collection:%s", name),
			Content: fmt.Sprintf("Collection %s with inferred fields: %v", name, fields),
			DBType:  a.DBType(),
		})
	}

	if partial {
		return docs, errs.New(errs.PartialIntrospection, "some collections could not be sampled", nil)
	}
	return docs, nil
}

func (a *MongoAdapter) sampleFields(ctx context.Context, collection string, limit int64) ([]string, error) {
	cur, err := a.db.Collection(collection).Find(ctx, bson.D{}, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	seen := map[string]bool{}
	var fields []string
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		for k := range doc {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	return fields, cur.Err()
}

func (a *MongoAdapter) TestConnection(ctx context.Context) bool {
	if a.client == nil {
		return false
	}
	return a.client.Ping(ctx, nil) == nil
}

var _ Adapter = (*MongoAdapter)(nil)
