package llm

import (
	"bytes"
	"fmt"
	"text/template"
)

// templateSet holds the parsed prompt templates. RenderTemplate must be
// pure (no I/O), so templates are parsed once at construction time.
type templateSet struct {
	tmpls map[string]*template.Template
}

var rawTemplates = map[string]string{
	"nl2sql": `You translate natural-language questions into a single read-only
PostgreSQL SELECT statement.

Schema context:
{{.schema}}

Question: {{.question}}

Return only the SQL statement, no prose, no markdown fences.`,

	"mongo_query": `You translate natural-language questions into a MongoDB
aggregation pipeline.

Schema context:
{{.schema}}

Question: {{.question}}

Return a JSON object of the form {"collection": "<name>", "pipeline": [...]}.`,

	"ga4_query": `You translate natural-language questions into a Google
Analytics 4 report request.

Schema context:
{{.schema}}

Question: {{.question}}

Return a JSON object with dimensions, metrics, date_ranges, order_bys, limit.`,

	"analyze_results": `Summarize the following query result rows in one or
two sentences for a business user.

Rows: {{.rows}}
Flags: {{.flags}}`,

	"orchestrate_step": `You are iteratively investigating a question against
a {{.db_type}} backend.

Question: {{.question}}
Step: {{.step}}
Current state: {{.state}}

Respond with "done: <final answer>" if you have enough information, or
describe the next investigative step otherwise.`,

	"tool_selection": `Given the user question and the available tools below,
choose between 2 and 5 tools best suited to answer it. Respond with a JSON
array of {"tool": "<name>", "reason": "<why>"}.

Question: {{.question}}
Tools:
{{.tools}}`,

	"execution_plan": `Given the selected tools and the user question, produce
an ordered JSON execution plan. Each step has step_number, tool_id,
parameters, description, and depends_on. Parameter values may be the
literal string "output_from_step_<n>" to reference a prior step's result.

Question: {{.question}}
Tools: {{.tools}}`,

	"synthesis": `Given the original question, the execution plan, and each
step's outcome, write an executive-summary answer.

Question: {{.question}}
Plan: {{.plan}}
Outcomes: {{.outcomes}}`,
}

func loadTemplates() (*templateSet, error) {
	set := &templateSet{tmpls: make(map[string]*template.Template, len(rawTemplates))}
	for id, raw := range rawTemplates {
		t, err := template.New(id).Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("llm: parsing template %q: %w", id, err)
		}
		set.tmpls[id] = t
	}
	return set, nil
}

func (s *templateSet) render(templateID string, data map[string]any) (string, error) {
	t, ok := s.tmpls[templateID]
	if !ok {
		return "", fmt.Errorf("llm: unknown template %q", templateID)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("llm: rendering template %q: %w", templateID, err)
	}
	return buf.String(), nil
}
