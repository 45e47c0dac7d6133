package llm

import (
	"context"
	"math"
)

// FakeClient is a deterministic Client double for tests, following the
// teacher's convention of exporting test doubles from the production
// package (pkg/auth/test_helpers.go, pkg/reasoning/test_helpers.go) rather
// than hand-rolling mocks in every test file.
type FakeClient struct {
	Completions map[string]string // prompt substring -> canned response
	Dimension   int
	SQLOut      string
	MongoOut    map[string]any
	GA4Out      map[string]any
	Unavailable bool
}

// NewFakeClient returns a FakeClient with a default 8-dimensional
// embedding space, small enough for table-driven tests to assert on.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Completions: map[string]string{},
		Dimension:   8,
	}
}

func (f *FakeClient) GenerateCompletion(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if f.Unavailable {
		return "", unavailableErr()
	}
	for substr, resp := range f.Completions {
		if substr == "" || contains(prompt, substr) {
			return resp, nil
		}
	}
	return "ok", nil
}

func (f *FakeClient) RenderTemplate(templateID string, data map[string]any) (string, error) {
	return templateID, nil
}

func (f *FakeClient) GenerateSQL(ctx context.Context, nl, schemaContext string) (string, error) {
	if f.Unavailable {
		return "", unavailableErr()
	}
	if f.SQLOut != "" {
		return f.SQLOut, nil
	}
	return "SELECT COUNT(*) FROM sample_orders", nil
}

func (f *FakeClient) GenerateMongoQuery(ctx context.Context, nl, schemaContext string) (map[string]any, error) {
	if f.Unavailable {
		return nil, unavailableErr()
	}
	if f.MongoOut != nil {
		return f.MongoOut, nil
	}
	return map[string]any{
		"collection": "sample_orders",
		"pipeline": []any{
			map[string]any{"$group": map[string]any{"_id": "$user_id", "n": map[string]any{"$sum": 1}}},
			map[string]any{"$sort": map[string]any{"n": -1}},
			map[string]any{"$limit": 5},
		},
	}, nil
}

func (f *FakeClient) GenerateGA4Query(ctx context.Context, nl, schemaContext string) (map[string]any, error) {
	if f.Unavailable {
		return nil, unavailableErr()
	}
	if f.GA4Out != nil {
		return f.GA4Out, nil
	}
	return map[string]any{
		"dimensions":  []any{"country"},
		"metrics":     []any{"activeUsers"},
		"date_ranges": []any{map[string]any{"relative": "last 7 days"}},
	}, nil
}

func (f *FakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.Unavailable {
		return nil, unavailableErr()
	}
	return deterministicEmbedding(text, f.Dimension), nil
}

func (f *FakeClient) EmbeddingDimension() int { return f.Dimension }

func (f *FakeClient) AnalyzeResults(ctx context.Context, rows []map[string]any, flags map[string]any) (string, error) {
	if f.Unavailable {
		return "", unavailableErr()
	}
	return "analysis complete", nil
}

func (f *FakeClient) OrchestrateAnalysis(ctx context.Context, question, dbType string) (*AnalysisResult, error) {
	if f.Unavailable {
		return nil, unavailableErr()
	}
	return &AnalysisResult{Analysis: "done: " + question, State: "complete", StepsTaken: 1}, nil
}

var _ Client = (*FakeClient)(nil)

func unavailableErr() error {
	return classify(errUnavailable{})
}

type errUnavailable struct{}

func (errUnavailable) Error() string { return "fake llm: unavailable" }

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// deterministicEmbedding hashes text into a fixed-size unit vector so that
// repeated calls with the same text produce the same embedding, which is
// what cosine-similarity tests need.
func deterministicEmbedding(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i, r := range text {
		vec[i%dim] += float32(r)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
