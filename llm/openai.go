package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/obs"
)

// OpenAIClient implements Client against OpenAI's chat completion and
// embedding APIs.
type OpenAIClient struct {
	api              *openai.Client
	model            string
	embeddingModel   string
	embeddingDim     int
	templates        *templateSet
	log              *slogLogger
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	EmbeddingDim   int
	BaseURL        string
}

// NewOpenAIClient constructs a Client backed by OpenAI.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.ConfigInvalid, "missing OpenAI API key", nil)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	dim := cfg.EmbeddingDim
	if dim == 0 {
		dim = 1536
	}

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("llm: loading templates: %w", err)
	}

	return &OpenAIClient{
		api:            openai.NewClientWithConfig(clientCfg),
		model:          model,
		embeddingModel: embeddingModel,
		embeddingDim:   dim,
		templates:      tmpl,
		log:            newSlogLogger("llm.openai"),
	}, nil
}

func (c *OpenAIClient) EmbeddingDimension() int { return c.embeddingDim }

// GenerateCompletion performs the retry/backoff dance from spec §4.2:
// three attempts at 1s/2s/4s for transient transport errors; auth/quota
// errors surface immediately as LLMUnavailable.
func (c *OpenAIClient) GenerateCompletion(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	var lastErr error

	attempt := func() (string, error) {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			MaxTokens:   maxTokens,
			Temperature: float32(temperature),
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("llm: empty completion response")
		}
		return resp.Choices[0].Message.Content, nil
	}

	for i := 0; i <= len(RetryBackoffs); i++ {
		text, err := attempt()
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isTransient(err) {
			return "", errs.New(errs.LLMUnavailable, "language model auth/quota failure", err)
		}
		if i < len(RetryBackoffs) {
			c.log.Warn("transient LLM error, retrying", "attempt", i+1, "error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(RetryBackoffs[i]):
			}
		}
	}

	return "", errs.New(errs.LLMUnavailable, "language model transport failed after retries", lastErr)
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "deadline exceeded", "connection reset", "502", "503", "504", "temporarily unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RenderTemplate is pure: no I/O, template lookup and text/template
// execution only.
func (c *OpenAIClient) RenderTemplate(templateID string, data map[string]any) (string, error) {
	return c.templates.render(templateID, data)
}

func (c *OpenAIClient) GenerateSQL(ctx context.Context, nl string, schemaContext string) (string, error) {
	prompt, err := c.RenderTemplate("nl2sql", map[string]any{"question": nl, "schema": schemaContext})
	if err != nil {
		return "", err
	}
	text, err := c.GenerateCompletion(ctx, prompt, 512, 0.0)
	if err != nil {
		return "", err
	}
	return stripCodeFence(text), nil
}

func (c *OpenAIClient) GenerateMongoQuery(ctx context.Context, nl string, schemaContext string) (map[string]any, error) {
	prompt, err := c.RenderTemplate("mongo_query", map[string]any{"question": nl, "schema": schemaContext})
	if err != nil {
		return nil, err
	}
	return c.generateJSON(ctx, prompt)
}

func (c *OpenAIClient) GenerateGA4Query(ctx context.Context, nl string, schemaContext string) (map[string]any, error) {
	prompt, err := c.RenderTemplate("ga4_query", map[string]any{"question": nl, "schema": schemaContext})
	if err != nil {
		return nil, err
	}
	return c.generateJSON(ctx, prompt)
}

// generateJSON implements the "one retry with a reminder" parse-failure
// contract from spec §4.2.
func (c *OpenAIClient) generateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	text, err := c.GenerateCompletion(ctx, prompt, 1024, 0.0)
	if err != nil {
		return nil, err
	}
	if obj, ok := tryParseJSONObject(stripCodeFence(text)); ok {
		return obj, nil
	}

	reminder := prompt + "\n\nReturn only valid JSON. No prose, no code fences."
	text2, err := c.GenerateCompletion(ctx, reminder, 1024, 0.0)
	if err != nil {
		return nil, err
	}
	if obj, ok := tryParseJSONObject(stripCodeFence(text2)); ok {
		return obj, nil
	}

	return nil, errs.New(errs.LLMParseError, "language model returned unparseable JSON", nil).WithRawText(text2)
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, errs.New(errs.LLMUnavailable, "embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, errs.New(errs.LLMUnavailable, "embedding response was empty", nil)
	}
	return resp.Data[0].Embedding, nil
}

func (c *OpenAIClient) AnalyzeResults(ctx context.Context, rows []map[string]any, flags map[string]any) (string, error) {
	prompt, err := c.RenderTemplate("analyze_results", map[string]any{"rows": rows, "flags": flags})
	if err != nil {
		return "", err
	}
	return c.GenerateCompletion(ctx, prompt, 512, 0.3)
}

// OrchestrateAnalysis runs a bounded multi-turn loop: each turn asks the
// model whether it needs another step or is ready to conclude. The loop
// never exceeds MaxAnalysisSteps (spec §4.2).
func (c *OpenAIClient) OrchestrateAnalysis(ctx context.Context, question, dbType string) (*AnalysisResult, error) {
	state := "investigating"
	var steps int

	for steps = 1; steps <= MaxAnalysisSteps; steps++ {
		prompt, err := c.RenderTemplate("orchestrate_step", map[string]any{
			"question": question, "db_type": dbType, "step": steps, "state": state,
		})
		if err != nil {
			return nil, err
		}
		text, err := c.GenerateCompletion(ctx, prompt, 256, 0.2)
		if err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToLower(text), "done") || strings.Contains(strings.ToLower(text), "conclude") {
			return &AnalysisResult{Analysis: text, State: "complete", StepsTaken: steps}, nil
		}
		state = text
	}

	return &AnalysisResult{Analysis: state, State: "max_steps_reached", StepsTaken: steps - 1}, nil
}

var _ Client = (*OpenAIClient)(nil)

// slogLogger is a thin indirection so tests can assert on warnings without
// pulling in log/slog's global state.
type slogLogger struct{ name string }

func newSlogLogger(name string) *slogLogger { return &slogLogger{name: name} }

func (l *slogLogger) Warn(msg string, args ...any) {
	obs.Component(l.name).Warn(msg, args...)
}
