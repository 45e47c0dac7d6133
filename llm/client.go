// Package llm abstracts over a remote text-generation model: prompt
// rendering, completion, structured JSON extraction, and the
// retry/backoff semantics required by spec §4.2.
package llm

import (
	"context"
	"time"

	"github.com/opsdata-io/gateway/errs"
)

// MaxAnalysisSteps bounds the multi-turn OrchestrateAnalysis loop.
const MaxAnalysisSteps = 10

// RetryBackoffs are the delays between the three transient-error retry
// attempts (spec §4.2: 1s, 2s, 4s).
var RetryBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Client is the contract every LLM-backed component depends on.
type Client interface {
	GenerateCompletion(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)

	// RenderTemplate is pure: no I/O, no network calls.
	RenderTemplate(templateID string, data map[string]any) (string, error)

	GenerateSQL(ctx context.Context, nl string, schemaContext string) (string, error)
	GenerateMongoQuery(ctx context.Context, nl string, schemaContext string) (map[string]any, error)
	GenerateGA4Query(ctx context.Context, nl string, schemaContext string) (map[string]any, error)

	Embed(ctx context.Context, text string) ([]float32, error)
	EmbeddingDimension() int

	AnalyzeResults(ctx context.Context, rows []map[string]any, flags map[string]any) (string, error)

	OrchestrateAnalysis(ctx context.Context, question, dbType string) (*AnalysisResult, error)
}

// AnalysisResult is the output of a multi-turn OrchestrateAnalysis loop.
type AnalysisResult struct {
	Analysis    string
	State       string
	StepsTaken  int
}

// classify maps a raw transport/HTTP error into the taxonomy in spec §7.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return errs.New(errs.LLMUnavailable, "language model transport failed", err)
}
