// Package tools implements the dynamic catalogue of callable operations:
// registration, metrics-tracked execution, and LLM-or-heuristic selection
// (spec §4.5).
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
	"github.com/opsdata-io/gateway/obs"
	"github.com/opsdata-io/gateway/registry"
)

// Func is the uniform shape every registered tool is invoked through,
// regardless of whether the underlying implementation was originally
// synchronous or asynchronous (spec §4.5: "async and synchronous
// functions are both supported").
type Func func(ctx context.Context, params map[string]any) (any, error)

type entry struct {
	fn       Func
	metadata model.ToolMetadata
}

// toolStats accumulates the rolling performance window for one tool.
type toolStats struct {
	mu         sync.Mutex
	durations  []time.Duration // most recent 100
	successes  int
	failures   int
}

func (s *toolStats) record(d time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = append(s.durations, d)
	if len(s.durations) > 100 {
		s.durations = s.durations[len(s.durations)-100:]
	}
	if success {
		s.successes++
	} else {
		s.failures++
	}
}

func (s *toolStats) snapshot() (avgMS float64, errorRate float64, total, successes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total = s.successes + s.failures
	successes = s.successes
	if total > 0 {
		errorRate = float64(s.failures) / float64(total)
	}
	if len(s.durations) > 0 {
		var sum time.Duration
		for _, d := range s.durations {
			sum += d
		}
		avgMS = float64(sum.Milliseconds()) / float64(len(s.durations))
	}
	return
}

// Registry is the tool catalogue: metadata, callable implementations,
// and per-tool execution analytics (spec §4.5). The catalogue is backed
// by the generic name->item store in package registry; mu here only
// guards the per-tool stats map alongside it.
type Registry struct {
	mu      sync.RWMutex
	tools   *registry.Base[entry]
	stats   map[string]*toolStats
	llmc    llm.Client
	metrics *obs.Metrics
}

func New(client llm.Client) *Registry {
	return &Registry{
		tools: registry.New[entry](),
		stats: map[string]*toolStats{},
		llmc:  client,
	}
}

// WithMetrics attaches a Metrics instance so every ExecuteTool call
// records its outcome and duration under the tool's name. Safe to skip
// in tests; a nil metrics instance is a no-op.
func (r *Registry) WithMetrics(m *obs.Metrics) *Registry {
	r.metrics = m
	return r
}

// RegisterTool is an idempotent overwrite: registering an existing name
// replaces its function and metadata and logs a warning (spec §4.5).
func (r *Registry) RegisterTool(name string, fn Func, metadata model.ToolMetadata) {
	if _, exists := r.tools.Get(name); exists {
		obs.Component("tools.registry").Warn("overwriting previously registered tool", "tool", name)
	}
	r.tools.Register(name, entry{fn: fn, metadata: metadata})

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stats[name]; !ok {
		r.stats[name] = &toolStats{}
	}
}

// ExecuteResult is the shape returned to callers of ExecuteTool.
type ExecuteResult struct {
	Success      bool
	Result       any
	ExecutionID  string
	DurationMS   int64
	ToolMetadata model.ToolMetadata
	Timestamp    time.Time
}

// ExecuteTool invokes the named tool with a fresh execution id, records
// timing and success/failure into the rolling performance cache, and
// re-raises failures as ToolExecutionFailed rather than swallowing them
// (spec §4.5).
func (r *Registry) ExecuteTool(ctx context.Context, name string, params map[string]any) (ExecuteResult, error) {
	e, ok := r.tools.Get(name)
	r.mu.RLock()
	stats := r.stats[name]
	r.mu.RUnlock()

	if !ok {
		return ExecuteResult{}, errs.New(errs.ToolExecutionFailed, fmt.Sprintf("no tool registered as %q", name), nil)
	}

	executionID := uuid.NewString()
	start := time.Now()
	result, err := e.fn(ctx, params)
	duration := time.Since(start)

	stats.record(duration, err == nil)
	if r.metrics != nil {
		r.metrics.RecordTool(name, duration, err)
	}

	if err != nil {
		return ExecuteResult{
			Success:      false,
			ExecutionID:  executionID,
			DurationMS:   duration.Milliseconds(),
			ToolMetadata: e.metadata,
			Timestamp:    start,
		}, errs.New(errs.ToolExecutionFailed, fmt.Sprintf("tool %q failed", name), err)
	}

	return ExecuteResult{
		Success:      true,
		Result:       result,
		ExecutionID:  executionID,
		DurationMS:   duration.Milliseconds(),
		ToolMetadata: e.metadata,
		Timestamp:    start,
	}, nil
}

// Get returns the metadata for name, or false if not registered.
func (r *Registry) Get(name string) (model.ToolMetadata, bool) {
	e, ok := r.tools.Get(name)
	return e.metadata, ok
}

// All returns every registered tool's metadata, sorted by name.
func (r *Registry) All() []model.ToolMetadata {
	entries := r.tools.List() // already name-sorted by registry.Base
	out := make([]model.ToolMetadata, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.metadata)
	}
	return out
}

// ToolAnalytics is the per-tool or aggregate stats snapshot returned by
// GetToolAnalytics (spec §4.5).
type ToolAnalytics struct {
	ToolID            string
	TotalExecutions   int
	SuccessfulCalls   int
	FailedCalls       int
	ErrorRate         float64
	AverageDurationMS float64
}

// GetToolAnalytics returns one tool's analytics, or an aggregate across
// every registered tool when name is empty.
func (r *Registry) GetToolAnalytics(name string) []ToolAnalytics {
	names := []string{name}
	if name == "" {
		names = r.tools.Keys() // already sorted
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolAnalytics, 0, len(names))
	for _, n := range names {
		stats, ok := r.stats[n]
		if !ok {
			continue
		}
		avg, errRate, total, successes := stats.snapshot()
		out = append(out, ToolAnalytics{
			ToolID:            n,
			TotalExecutions:   total,
			SuccessfulCalls:   successes,
			FailedCalls:       total - successes,
			ErrorRate:         errRate,
			AverageDurationMS: avg,
		})
	}
	return out
}

// SelectOptimalTools picks at most 5 tool names for targetOutcome,
// preferring the LLM path and falling back to the backend-compatibility
// + keyword-overlap heuristic when the LLM is unavailable or its
// response cannot be parsed (spec §4.5).
func (r *Registry) SelectOptimalTools(ctx context.Context, targetOutcome string, dbTypes []string) ([]string, error) {
	candidates := r.compatibleTools(dbTypes)
	if len(candidates) == 0 {
		return nil, nil
	}

	if names, ok := r.selectViaLLM(ctx, targetOutcome, candidates); ok {
		return names, nil
	}
	return r.selectHeuristically(targetOutcome, candidates), nil
}

func (r *Registry) compatibleTools(dbTypes []string) []model.ToolMetadata {
	want := map[string]bool{}
	for _, t := range dbTypes {
		want[t] = true
	}

	var out []model.ToolMetadata
	for _, e := range r.tools.List() {
		if len(want) == 0 || len(e.metadata.DatabaseCompatibility) == 0 {
			out = append(out, e.metadata)
			continue
		}
		for _, c := range e.metadata.DatabaseCompatibility {
			if want[c] {
				out = append(out, e.metadata)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) selectViaLLM(ctx context.Context, targetOutcome string, candidates []model.ToolMetadata) ([]string, bool) {
	if r.llmc == nil {
		return nil, false
	}
	var b strings.Builder
	b.WriteString("Select 2-5 tools best suited for: " + targetOutcome + "\nAvailable tools:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	raw, err := r.llmc.GenerateCompletion(ctx, b.String(), 512, 0.0)
	if err != nil {
		return nil, false
	}
	names := extractToolNames(raw, candidates)
	if len(names) == 0 {
		return nil, false
	}
	if len(names) > 5 {
		names = names[:5]
	}
	return names, true
}

func extractToolNames(raw string, candidates []model.ToolMetadata) []string {
	var out []string
	for _, c := range candidates {
		if strings.Contains(raw, c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

// selectHeuristically scores each candidate by keyword overlap against
// targetOutcome's words, then breaks ties by error rate, complexity,
// then historical success count (spec §4.5).
func (r *Registry) selectHeuristically(targetOutcome string, candidates []model.ToolMetadata) []string {
	keywords := keywordSet(targetOutcome)

	type scored struct {
		meta      model.ToolMetadata
		overlap   int
		errorRate float64
		successes int
	}

	r.mu.RLock()
	scoredList := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		descWords := keywordSet(c.Description + " " + c.Name)
		overlap := 0
		for kw := range keywords {
			if descWords[kw] {
				overlap++
			}
		}
		errRate := 0.0
		successes := 0
		if stats, ok := r.stats[c.Name]; ok {
			_, errRate, _, successes = stats.snapshot()
		}
		scoredList = append(scoredList, scored{meta: c, overlap: overlap, errorRate: errRate, successes: successes})
	}
	r.mu.RUnlock()

	sort.SliceStable(scoredList, func(i, j int) bool {
		a, b := scoredList[i], scoredList[j]
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if a.errorRate != b.errorRate {
			return a.errorRate < b.errorRate
		}
		if a.meta.Complexity != b.meta.Complexity {
			return a.meta.Complexity < b.meta.Complexity
		}
		return a.successes > b.successes
	})

	limit := 5
	if len(scoredList) < limit {
		limit = len(scoredList)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = scoredList[i].meta.Name
	}
	return out
}

func keywordSet(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	set := map[string]bool{}
	for _, w := range words {
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}
