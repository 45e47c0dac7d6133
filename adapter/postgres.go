package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
	"github.com/opsdata-io/gateway/obs"
)

// PostgresAdapter translates natural language to SQL, sanitizes it, and
// executes it against a PostgreSQL pool (spec §4.3.1).
type PostgresAdapter struct {
	uri  string
	pool *pgxpool.Pool
	llm  llm.Client
	log  *slogAdapter
}

// NewPostgresAdapter lazily creates a connection pool for uri (spec §5:
// "Connection pools ... created lazily on first use").
func NewPostgresAdapter(ctx context.Context, uri string, client llm.Client) (*PostgresAdapter, error) {
	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed to create postgres pool", err)
	}
	return &PostgresAdapter{uri: uri, pool: pool, llm: client, log: newSlogAdapter("adapter.postgres")}, nil
}

func (a *PostgresAdapter) DBType() string        { return "postgres" }
func (a *PostgresAdapter) ConnectionURI() string { return a.uri }

func (a *PostgresAdapter) LLMToQuery(ctx context.Context, nl string, schemaChunks []model.SchemaDocument) (model.Query, error) {
	schemaContext := renderSchemaContext(schemaChunks)
	sql, err := a.llm.GenerateSQL(ctx, nl, schemaContext)
	if err != nil {
		return nil, err
	}
	sanitized, err := SanitizeSQL(sql)
	if err != nil {
		return nil, err
	}
	return model.SQLQuery{Text: sanitized}, nil
}

func (a *PostgresAdapter) Execute(ctx context.Context, query model.Query) ([]model.Row, error) {
	q, ok := query.(model.SQLQuery)
	if !ok {
		return nil, errs.New(errs.QueryInvalid, "postgres adapter requires a SQLQuery", nil)
	}

	// Defense in depth: re-sanitize even queries constructed outside
	// LLMToQuery (e.g. from a tool invocation).
	sanitized, err := SanitizeSQL(q.Text)
	if err != nil {
		return nil, err
	}

	rows, err := a.pool.Query(ctx, sanitized)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "postgres query failed", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []model.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, errs.New(errs.QueryInvalid, "failed reading postgres row", err)
		}
		row := make(model.Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.BackendUnreachable, "postgres row iteration failed", err)
	}
	return out, nil
}

// IntrospectSchema enumerates user schemas, tables, columns, and keys,
// serializing one SchemaDocument per table (spec §4.3.1).
func (a *PostgresAdapter) IntrospectSchema(ctx context.Context) ([]model.SchemaDocument, error) {
	const tablesQuery = `
SELECT table_schema, table_name
FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name`

	rows, err := a.pool.Query(ctx, tablesQuery)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "failed listing tables", err)
	}
	defer rows.Close()

	type tableRef struct{ schema, name string }
	var tables []tableRef
	for rows.Next() {
		var t tableRef
		if err := rows.Scan(&t.schema, &t.name); err != nil {
			return nil, errs.New(errs.PartialIntrospection, "failed scanning table list", err)
		}
		tables = append(tables, t)
	}

	var docs []model.SchemaDocument
	var partial bool
	for _, t := range tables {
		cols, err := a.columnsFor(ctx, t.schema, t.name)
		if err != nil {
			a.log.Warn("partial introspection for table", "table", t.name, "error", err)
			partial = true
			continue
		}
		docs = append(docs, model.SchemaDocument{
			ID:      fmt.Sprintf("table:%s.%s", t.schema, t.name),
			Content: fmt.Sprintf("Table %s.%s with columns: %s", t.schema, t.name, strings.Join(cols, ", ")),
			DBType:  a.DBType(),
		})
	}

	if partial {
		return docs, errs.New(errs.PartialIntrospection, "some tables could not be introspected", nil)
	}
	return docs, nil
}

func (a *PostgresAdapter) columnsFor(ctx context.Context, schema, table string) ([]string, error) {
	const q = `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema=$1 AND table_name=$2 ORDER BY ordinal_position`
	rows, err := a.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		cols = append(cols, fmt.Sprintf("%s(%s)", name, typ))
	}
	return cols, rows.Err()
}

func (a *PostgresAdapter) TestConnection(ctx context.Context) bool {
	if a.pool == nil {
		return false
	}
	var one int
	row := a.pool.QueryRow(ctx, "SELECT 1")
	if err := row.Scan(&one); err != nil {
		return false
	}
	return one == 1
}

var _ Adapter = (*PostgresAdapter)(nil)
var _ = pgx.ErrNoRows // keep pgx imported for its error sentinels used by callers

func renderSchemaContext(docs []model.SchemaDocument) string {
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// slogAdapter is a tiny wrapper so every adapter logs through the same
// component-tagged logger without importing obs directly in each file.
type slogAdapter struct{ name string }

func newSlogAdapter(name string) *slogAdapter { return &slogAdapter{name: name} }

func (s *slogAdapter) Warn(msg string, args ...any) { obs.Component(s.name).Warn(msg, args...) }
func (s *slogAdapter) Info(msg string, args ...any) { obs.Component(s.name).Info(msg, args...) }
