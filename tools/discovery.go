package tools

import (
	"context"
	"fmt"

	"github.com/opsdata-io/gateway/adapter"
	"github.com/opsdata-io/gateway/model"
)

// DiscoverAdapterTools registers the four core operations every adapter
// exposes, plus a small backend-specific set keyed by db_type (spec
// §4.5: "Tool discovery ... probes every known adapter class").
func (r *Registry) DiscoverAdapterTools(a adapter.Adapter) {
	dbType := a.DBType()

	r.RegisterTool(dbType+".llm_to_query", func(ctx context.Context, params map[string]any) (any, error) {
		nl, _ := params["nl"].(string)
		return a.LLMToQuery(ctx, nl, nil)
	}, model.ToolMetadata{
		Name:                  dbType + ".llm_to_query",
		Description:           fmt.Sprintf("Translate a natural-language question into a %s-native query", dbType),
		Category:              model.CategoryDatabaseQuery,
		Complexity:            2,
		DatabaseCompatibility: []string{dbType},
		EstimatedDurationMS:   2000,
		RequiresLLM:           true,
	})

	r.RegisterTool(dbType+".execute", func(ctx context.Context, params map[string]any) (any, error) {
		q, _ := params["query"].(model.Query)
		return a.Execute(ctx, q)
	}, model.ToolMetadata{
		Name:                  dbType + ".execute",
		Description:           fmt.Sprintf("Execute a %s-native query and return row results", dbType),
		Category:              model.CategoryDatabaseQuery,
		Complexity:            2,
		DatabaseCompatibility: []string{dbType},
		EstimatedDurationMS:   2000,
	})

	r.RegisterTool(dbType+".introspect_schema", func(ctx context.Context, params map[string]any) (any, error) {
		return a.IntrospectSchema(ctx)
	}, model.ToolMetadata{
		Name:                  dbType + ".introspect_schema",
		Description:           fmt.Sprintf("Enumerate the %s backend's schema fragments", dbType),
		Category:              model.CategorySchemaIntrospection,
		Complexity:            1,
		DatabaseCompatibility: []string{dbType},
		EstimatedDurationMS:   2000,
	})

	r.RegisterTool(dbType+".test_connection", func(ctx context.Context, params map[string]any) (any, error) {
		return a.TestConnection(ctx), nil
	}, model.ToolMetadata{
		Name:                  dbType + ".test_connection",
		Description:           fmt.Sprintf("Check whether the %s backend is reachable", dbType),
		Category:              model.CategoryUtility,
		Complexity:            1,
		DatabaseCompatibility: []string{dbType},
		EstimatedDurationMS:   2000,
	})

	r.discoverBackendSpecificTools(a, dbType)
}

// discoverBackendSpecificTools registers a handful of higher-level,
// backend-specific analysis tools beyond the four core operations (spec
// §4.5: "e.g. Mongo aggregation validators, Shopify order statistics,
// GA4 audience performance").
func (r *Registry) discoverBackendSpecificTools(a adapter.Adapter, dbType string) {
	switch shopify := a.(type) {
	case *adapter.ShopifyAdapter:
		r.RegisterTool("shopify.available_scopes", func(ctx context.Context, params map[string]any) (any, error) {
			return shopify.AvailableScopes(), nil
		}, model.ToolMetadata{
			Name:                  "shopify.available_scopes",
			Description:           "Report granted vs requested Shopify OAuth scopes",
			Category:              model.CategoryUtility,
			Complexity:            1,
			DatabaseCompatibility: []string{"shopify"},
			EstimatedDurationMS:   100,
		})
	}

	switch dbType {
	case "mongodb":
		r.RegisterTool("mongodb.validate_pipeline", func(ctx context.Context, params map[string]any) (any, error) {
			stages, _ := params["pipeline"].([]map[string]any)
			return validateNoWriteStagesPublic(stages), nil
		}, model.ToolMetadata{
			Name:                  "mongodb.validate_pipeline",
			Description:           "Validate that an aggregation pipeline contains no write stages",
			Category:              model.CategoryUtility,
			Complexity:            1,
			DatabaseCompatibility: []string{"mongodb"},
			EstimatedDurationMS:   50,
		})
	case "ga4":
		r.RegisterTool("ga4.audience_overview", func(ctx context.Context, params map[string]any) (any, error) {
			return a.IntrospectSchema(ctx)
		}, model.ToolMetadata{
			Name:                  "ga4.audience_overview",
			Description:           "Summarize available GA4 dimensions and metrics for audience analysis",
			Category:              model.CategoryDatabaseAnalysis,
			Complexity:            2,
			DatabaseCompatibility: []string{"ga4"},
			EstimatedDurationMS:   2000,
		})
	}
}

// validateNoWriteStagesPublic mirrors adapter.validateNoWriteStages for
// callers outside the adapter package that only have a []map[string]any.
func validateNoWriteStagesPublic(stages []map[string]any) map[string]any {
	for _, stage := range stages {
		for _, key := range []string{"$out", "$merge"} {
			if _, present := stage[key]; present {
				return map[string]any{"valid": false, "reason": "write stage " + key + " is not permitted"}
			}
		}
	}
	return map[string]any{"valid": true}
}
