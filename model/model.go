// Package model holds the data types shared across adapters, the schema
// searcher, and the tool execution node (spec §3).
package model

import "time"

// SchemaDocument is the canonical, cross-backend schema-fragment
// representation used for indexing and semantic retrieval.
type SchemaDocument struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	DBType    string    `json:"db_type"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Row is one result row from an adapter's Execute, a generic string-keyed
// map since the result shape varies per backend.
type Row = map[string]any

// --- Query sum type: one concrete struct per backend, behind the Query marker. ---

type Query interface{ isQuery() }

type SQLQuery struct{ Text string }

func (SQLQuery) isQuery() {}

type MongoPipelineQuery struct {
	Collection string
	Pipeline   []map[string]any
}

func (MongoPipelineQuery) isQuery() {}

type VectorSearchQuery struct {
	Vector     []float32
	TopK       int
	Collection string
	Filter     map[string]any
}

func (VectorSearchQuery) isQuery() {}

type ShopifyAPIQuery struct {
	Endpoint string
	Method   string // GET | POST
	Params   map[string]any
}

func (ShopifyAPIQuery) isQuery() {}

type GA4DateRange struct {
	Start    string
	End      string
	Relative string
}

type GA4OrderBy struct {
	Dimension string
	Metric    string
	Desc      bool
}

type GA4ReportQuery struct {
	Dimensions []string
	Metrics    []string
	DateRanges []GA4DateRange
	OrderBys   []GA4OrderBy
	Limit      int
	Filters    map[string]any
}

func (GA4ReportQuery) isQuery() {}

type SlackToolInvocationQuery struct {
	Type       string // channels | messages | thread | user | bot | semantic_search
	Parameters map[string]any
}

func (SlackToolInvocationQuery) isQuery() {}

// --- Tool catalogue types (spec §3: ToolMetadata, ToolCall, ExecutionResult) ---

type ToolCategory string

const (
	CategoryDatabaseQuery          ToolCategory = "database_query"
	CategoryDatabaseAnalysis       ToolCategory = "database_analysis"
	CategoryDataTransformation     ToolCategory = "data_transformation"
	CategorySchemaIntrospection    ToolCategory = "schema_introspection"
	CategoryPerformanceOptimization ToolCategory = "performance_optimization"
	CategoryCrossDatabase          ToolCategory = "cross_database"
	CategoryVisualization          ToolCategory = "visualization"
	CategoryUtility                ToolCategory = "utility"
)

type ToolMetadata struct {
	Name                  string
	Description           string
	Category              ToolCategory
	Complexity            int // 1..4
	InputTypes            []string
	OutputTypes           []string
	DatabaseCompatibility []string
	EstimatedDurationMS   int
	MemoryEstimateMB      int
	RequiresLLM           bool
	StreamingCapable      bool
	Parallelizable        bool
	Dependencies          []string
}

type ToolCall struct {
	CallID     string
	ToolID     string
	Parameters map[string]any
	Context    map[string]any
}

type ExecutionResult struct {
	ToolID   string
	CallID   string
	Success  bool
	Result   any
	Error    string
	Metadata map[string]any
}

// --- Execution plan (spec §3, §9: typed late-binding AST) ---

// Param is either a Literal or a StepRef; see toolexec.Resolve.
type Param interface{ isParam() }

type Literal struct{ Value any }

func (Literal) isParam() {}

type StepRef struct{ N int }

func (StepRef) isParam() {}

type PlanStep struct {
	StepNumber  int
	ToolID      string
	Parameters  map[string]Param
	Description string
	DependsOn   []int
}

type ExecutionPlan struct {
	Steps []PlanStep
}

// --- Slack indexer state (spec §3) ---

type IndexState string

const (
	StateIdle       IndexState = "idle"
	StateRunning    IndexState = "running"
	StateFinalizing IndexState = "finalizing"
)

type SlackIndexStatus struct {
	WorkspaceID       string
	Collection        string
	LastIndexedAt     time.Time
	LastCompletedAt   time.Time
	IsIndexing        bool
	State             IndexState
	UpdatedAt         time.Time
	TotalMessages     int
	IndexedMessages   int
	OldestTS          float64
	NewestTS          float64
	HistoryDays       int
	UpdateFrequencyHr int
	EmbeddingModel    string
}

type IndexedChannel struct {
	WorkspaceID     string
	ChannelID       string
	ChannelName     string
	LastIndexedTS   float64
	MessageCount    int
}

// --- Credential store (spec §3) ---

type CredentialRecord struct {
	WorkspaceID      string
	EncBotToken      []byte
	EncUserToken     []byte
	GrantedScopes    []string
	RequestedScopes  []string
	RefreshToken     string
	Expiry           time.Time
}

// --- OAuth rendezvous session (spec §3) ---

type Session struct {
	SessionID  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	State      string // CSRF nonce
	AuthResult map[string]any
}

// --- Performance sample (spec §3) ---

type PerformanceSample struct {
	ToolID         string
	Start          time.Time
	DurationMS     int64
	Success        bool
	Error          string
	ResultSizeBytes int
}
