package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
	"github.com/opsdata-io/gateway/obs"
)

// GA4Adapter renders a ga4_query.tpl-shaped completion and resolves
// relative date ranges against the server clock before executing
// against the Google Analytics Data API (spec §4.3.6).
type GA4Adapter struct {
	propertyID string
	apiKey     string
	httpc      *http.Client
	llmc       llm.Client
	now        func() time.Time
}

func NewGA4Adapter(propertyID, apiKey string, client llm.Client) *GA4Adapter {
	return &GA4Adapter{propertyID: propertyID, apiKey: apiKey, httpc: &http.Client{}, llmc: client, now: time.Now}
}

func (a *GA4Adapter) DBType() string        { return "ga4" }
func (a *GA4Adapter) ConnectionURI() string { return "ga4://" + a.propertyID }

// resolveRelativeRange maps a relative expression to concrete start/end
// dates; unknown expressions fall back to "last 7 days" (spec §4.3.6).
func (a *GA4Adapter) resolveRelativeRange(relative string) (start, end string, usedFallback bool) {
	today := a.now()
	format := "2006-01-02"

	switch relative {
	case "yesterday":
		d := today.AddDate(0, 0, -1)
		return d.Format(format), d.Format(format), false
	case "last 7 days":
		return today.AddDate(0, 0, -7).Format(format), today.Format(format), false
	case "last 30 days":
		return today.AddDate(0, 0, -30).Format(format), today.Format(format), false
	case "this month":
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return start.Format(format), today.Format(format), false
	case "last month":
		firstOfThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		lastOfPrevMonth := firstOfThisMonth.AddDate(0, 0, -1)
		firstOfPrevMonth := time.Date(lastOfPrevMonth.Year(), lastOfPrevMonth.Month(), 1, 0, 0, 0, 0, today.Location())
		return firstOfPrevMonth.Format(format), lastOfPrevMonth.Format(format), false
	default:
		return today.AddDate(0, 0, -7).Format(format), today.Format(format), true
	}
}

func (a *GA4Adapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	schemaContext := renderSchemaContext(schemaChunks)
	out, err := a.llmc.GenerateGA4Query(ctx, nl, schemaContext)
	if err != nil {
		return nil, err
	}

	dims := toStringSlice(out["dimensions"])
	metrics := toStringSlice(out["metrics"])
	if len(metrics) == 0 {
		return nil, errs.New(errs.QueryInvalid, "ga4 query must specify at least one metric", nil)
	}

	var ranges []model.GA4DateRange
	for _, raw := range toAnySlice(out["date_ranges"]) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if rel, ok := m["relative"].(string); ok {
			start, end, fallback := a.resolveRelativeRange(rel)
			if fallback {
				obs.Component("adapter.ga4").Warn("unknown relative date expression, defaulting to last 7 days", "relative", rel)
			}
			ranges = append(ranges, model.GA4DateRange{Start: start, End: end, Relative: rel})
		} else {
			s, _ := m["start"].(string)
			e, _ := m["end"].(string)
			ranges = append(ranges, model.GA4DateRange{Start: s, End: e})
		}
	}
	if len(ranges) == 0 {
		start, end, _ := a.resolveRelativeRange("last 7 days")
		ranges = append(ranges, model.GA4DateRange{Start: start, End: end, Relative: "last 7 days"})
	}

	var orderBys []model.GA4OrderBy
	for _, raw := range toAnySlice(out["order_bys"]) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ob := model.GA4OrderBy{}
		if d, ok := m["dimension"].(string); ok {
			ob.Dimension = d
		}
		if met, ok := m["metric"].(string); ok {
			ob.Metric = met
		}
		if desc, ok := m["desc"].(bool); ok {
			ob.Desc = desc
		}
		orderBys = append(orderBys, ob)
	}

	limit := 0
	if v, ok := out["limit"].(float64); ok {
		limit = int(v)
	}

	return model.GA4ReportQuery{
		Dimensions: dims,
		Metrics:    metrics,
		DateRanges: ranges,
		OrderBys:   orderBys,
		Limit:      limit,
	}, nil
}

func toStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(v any) []any {
	arr, _ := v.([]any)
	return arr
}

func (a *GA4Adapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	q, ok := query.(model.GA4ReportQuery)
	if !ok {
		return nil, errs.New(errs.QueryInvalid, "ga4 adapter requires a GA4ReportQuery", nil)
	}

	body := map[string]any{
		"dimensions": dimList(q.Dimensions),
		"metrics":    metricList(q.Metrics),
		"dateRanges": dateRangeList(q.DateRanges),
	}
	if q.Limit > 0 {
		body["limit"] = fmt.Sprintf("%d", q.Limit)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errs.New(errs.QueryInvalid, "failed encoding ga4 request", err)
	}

	url := fmt.Sprintf("https://analyticsdata.googleapis.com/v1beta/properties/%s:runReport?key=%s", a.propertyID, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed building ga4 request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "ga4 request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errs.New(errs.AuthExpired, "ga4 credentials rejected", nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.BackendUnreachable, fmt.Sprintf("ga4 API returned status %d", resp.StatusCode), nil)
	}

	var decoded struct {
		DimensionHeaders []struct{ Name string } `json:"dimensionHeaders"`
		MetricHeaders    []struct{ Name string } `json:"metricHeaders"`
		Rows             []struct {
			DimensionValues []struct{ Value string } `json:"dimensionValues"`
			MetricValues    []struct{ Value string } `json:"metricValues"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed decoding ga4 response", err)
	}

	rows := make([]model.Row, 0, len(decoded.Rows))
	for _, r := range decoded.Rows {
		row := model.Row{}
		for i, dv := range r.DimensionValues {
			if i < len(decoded.DimensionHeaders) {
				row[decoded.DimensionHeaders[i].Name] = dv.Value
			}
		}
		for i, mv := range r.MetricValues {
			if i < len(decoded.MetricHeaders) {
				row[decoded.MetricHeaders[i].Name] = mv.Value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func dimList(names []string) []map[string]string {
	out := make([]map[string]string, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]string{"name": n})
	}
	return out
}

func metricList(names []string) []map[string]string {
	out := make([]map[string]string, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]string{"name": n})
	}
	return out
}

func dateRangeList(ranges []model.GA4DateRange) []map[string]string {
	out := make([]map[string]string, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, map[string]string{"startDate": r.Start, "endDate": r.End})
	}
	return out
}

// IntrospectSchema enumerates available dimensions/metrics from the
// provider's metadata endpoint, plus one overview document (spec §4.3.6).
func (a *GA4Adapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	url := fmt.Sprintf("https://analyticsdata.googleapis.com/v1beta/properties/%s/metadata?key=%s", a.propertyID, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed building ga4 metadata request", err)
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "ga4 metadata request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.PartialIntrospection, fmt.Sprintf("ga4 metadata returned status %d", resp.StatusCode), nil)
	}

	var decoded struct {
		Dimensions []struct{ APIName, UIName, Description string } `json:"dimensions"`
		Metrics    []struct{ APIName, UIName, Description string } `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errs.New(errs.PartialIntrospection, "failed decoding ga4 metadata", err)
	}

	docs := []model.SchemaDocument{{
		ID:      "ga4:overview",
		Content: fmt.Sprintf("GA4 property %s exposes %d dimensions and %d metrics", a.propertyID, len(decoded.Dimensions), len(decoded.Metrics)),
		DBType:  a.DBType(),
	}}
	for _, d := range decoded.Dimensions {
		docs = append(docs, model.SchemaDocument{
			ID:      "ga4:dimension:" + d.APIName,
			Content: fmt.Sprintf("Dimension %s (%s): %s", d.APIName, d.UIName, d.Description),
			DBType:  a.DBType(),
		})
	}
	for _, m := range decoded.Metrics {
		docs = append(docs, model.SchemaDocument{
			ID:      "ga4:metric:" + m.APIName,
			Content: fmt.Sprintf("Metric %s (%s): %s", m.APIName, m.UIName, m.Description),
			DBType:  a.DBType(),
		})
	}
	return docs, nil
}

func (a *GA4Adapter) TestConnection(ctx context.Context) bool {
	_, err := a.IntrospectSchema(ctx)
	return err == nil
}

var _ Adapter = (*GA4Adapter)(nil)
