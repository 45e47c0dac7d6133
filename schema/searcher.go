// Package schema implements semantic retrieval over cached schema
// fragments by embedding similarity (spec §4.1).
package schema

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
)

// IndexBuilder lazily (re)builds the schema index for a db_type, e.g. by
// calling the matching adapter's IntrospectSchema and embedding the
// result. Invoked on first search for a db_type with no index.
type IndexBuilder func(ctx context.Context, dbType string) ([]model.SchemaDocument, error)

// Searcher holds one embedded index per db_type and answers top-k
// similarity queries (spec §4.1).
type Searcher struct {
	mu      sync.RWMutex
	indexes map[string][]model.SchemaDocument
	llmc    llm.Client
	build   IndexBuilder
}

func New(client llm.Client, build IndexBuilder) *Searcher {
	return &Searcher{
		indexes: map[string][]model.SchemaDocument{},
		llmc:    client,
		build:   build,
	}
}

// Index replaces the stored documents for dbType with a freshly embedded
// set, implementing "mutating updates require a full rebuild" (spec §4.1
// invariant). docs must already carry content; embeddings are computed
// here.
func (s *Searcher) Index(ctx context.Context, dbType string, docs []model.SchemaDocument) error {
	embedded := make([]model.SchemaDocument, len(docs))
	for i, d := range docs {
		vec, err := s.llmc.Embed(ctx, d.Content)
		if err != nil {
			return err
		}
		d.Embedding = vec
		embedded[i] = d
	}

	s.mu.Lock()
	s.indexes[dbType] = embedded
	s.mu.Unlock()
	return nil
}

// Search returns up to topK SchemaDocuments for dbType ranked by cosine
// similarity to query's embedding, ties broken by id lexicographic order
// (spec §4.1).
func (s *Searcher) Search(ctx context.Context, query string, topK int, dbType string) ([]model.SchemaDocument, error) {
	docs, err := s.docsFor(ctx, dbType)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	qVec, err := s.llmc.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	type scored struct {
		doc   model.SchemaDocument
		score float64
	}
	results := make([]scored, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != len(qVec) {
			return nil, errs.New(errs.EmbeddingDimensionMismatch, "query embedding dimension does not match indexed schema embeddings", nil)
		}
		results = append(results, scored{doc: d, score: cosineSimilarity(qVec, d.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].doc.ID < results[j].doc.ID
	})

	if topK > len(results) {
		topK = len(results)
	}
	out := make([]model.SchemaDocument, topK)
	for i := 0; i < topK; i++ {
		out[i] = results[i].doc
	}
	return out, nil
}

func (s *Searcher) docsFor(ctx context.Context, dbType string) ([]model.SchemaDocument, error) {
	s.mu.RLock()
	docs, ok := s.indexes[dbType]
	s.mu.RUnlock()
	if ok {
		return docs, nil
	}

	if s.build == nil {
		return nil, errs.New(errs.SchemaIndexUnavailable, "no schema index exists for "+dbType+" and no index builder is configured", nil)
	}

	built, err := s.build(ctx, dbType)
	if err != nil {
		return nil, errs.New(errs.SchemaIndexUnavailable, "failed to build schema index for "+dbType, err)
	}
	if err := s.Index(ctx, dbType, built); err != nil {
		return nil, errs.New(errs.SchemaIndexUnavailable, "failed to embed schema index for "+dbType, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[dbType], nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
