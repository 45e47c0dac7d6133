package toolexec

import (
	"fmt"
	"strings"
)

// applyIntelligentDefaults fills in any parameter a tool requires but a
// plan step left unset, keyed on tool-name prefix (spec §4.6 Phase 2).
// The pass is idempotent: calling it twice with the same input produces
// the same output, since it only ever fills gaps, never overwrites an
// existing value.
func applyIntelligentDefaults(toolID string, params map[string]any) map[string]any {
	if params == nil {
		params = map[string]any{}
	}

	switch {
	case strings.HasPrefix(toolID, "postgres.") || strings.HasPrefix(toolID, "postgresql."):
		if _, ok := params["query"]; !ok {
			params["query"] = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema='public'"
		}
	case strings.HasPrefix(toolID, "mongodb."):
		if _, ok := params["pipeline"]; !ok {
			if _, hasColl := params["collection"]; !hasColl {
				params["collection"] = "sample_orders"
			}
			params["pipeline"] = []map[string]any{{"$count": "total"}}
		}
	case strings.HasPrefix(toolID, "file_system.export"):
		if _, ok := params["filepath"]; !ok {
			params["filepath"] = fmt.Sprintf("/tmp/%s.csv", sanitizeFilename(toolID))
		}
	}

	return params
}

func sanitizeFilename(toolID string) string {
	return strings.NewReplacer(".", "_", "/", "_").Replace(toolID)
}
