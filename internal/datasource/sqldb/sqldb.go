// Package sqldb exposes a read-only view of a Postgres database to the
// agent: schema introspection, row sampling and guarded SELECT execution.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
)

// ColumnMetadata describes one column of an introspected table.
type ColumnMetadata struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key"`
	Nullable   bool   `json:"nullable"`
}

// TableMetadata describes one table.
type TableMetadata struct {
	Name    string           `json:"name"`
	Columns []ColumnMetadata `json:"columns"`
}

// SchemaMetadata is the full introspected schema.
type SchemaMetadata struct {
	Tables       []TableMetadata `json:"tables"`
	DatabaseName string          `json:"database_name,omitempty"`
}

// QueryResult carries the rows of a SELECT.
type QueryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// Source is a handle to one Postgres database. It is constructed explicitly
// and injected into whatever needs it; there is no package-level singleton.
type Source struct {
	db *sql.DB

	mu     sync.RWMutex
	schema *SchemaMetadata
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Source, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Source{db: db}, nil
}

// NewSource wraps an existing *sql.DB. Used by tests and by callers that
// manage the pool themselves.
func NewSource(db *sql.DB) *Source { return &Source{db: db} }

func (s *Source) Close() error { return s.db.Close() }

const schemaQuery = `
SELECT c.table_name,
       c.column_name,
       c.data_type,
       c.is_nullable = 'YES',
       COALESCE(tc.constraint_type, '') = 'PRIMARY KEY'
FROM information_schema.columns c
LEFT JOIN information_schema.key_column_usage kcu
  ON kcu.table_schema = c.table_schema
 AND kcu.table_name = c.table_name
 AND kcu.column_name = c.column_name
LEFT JOIN information_schema.table_constraints tc
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
 AND tc.constraint_type = 'PRIMARY KEY'
WHERE c.table_schema = 'public'
ORDER BY c.table_name, c.ordinal_position`

// Schema introspects the public schema, caching the result until a caller
// asks for a refresh.
func (s *Source) Schema(ctx context.Context, refresh bool) (*SchemaMetadata, error) {
	s.mu.RLock()
	cached := s.schema
	s.mu.RUnlock()
	if cached != nil && !refresh {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, schemaQuery)
	if err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}
	defer rows.Close()

	meta := &SchemaMetadata{}
	var current *TableMetadata
	for rows.Next() {
		var table string
		var col ColumnMetadata
		if err := rows.Scan(&table, &col.Name, &col.Type, &col.Nullable, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		if current == nil || current.Name != table {
			meta.Tables = append(meta.Tables, TableMetadata{Name: table})
			current = &meta.Tables[len(meta.Tables)-1]
		}
		current.Columns = append(current.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading schema rows: %w", err)
	}

	s.mu.Lock()
	s.schema = meta
	s.mu.Unlock()
	return meta, nil
}

// SampleRows returns up to n random rows from a table. The table name is
// checked against the introspected schema before being interpolated.
func (s *Source) SampleRows(ctx context.Context, table string, n int) (*QueryResult, error) {
	schema, err := s.Schema(ctx, false)
	if err != nil {
		return nil, err
	}
	known := false
	for _, t := range schema.Tables {
		if t.Name == table {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("table %q not found", table)
	}
	if n <= 0 {
		n = 5
	}
	return s.query(ctx, fmt.Sprintf(`SELECT * FROM %q ORDER BY random() LIMIT %d`, table, n))
}

// RunSelectQuery executes a read-only statement.
func (s *Source) RunSelectQuery(ctx context.Context, query string) (*QueryResult, error) {
	if !IsReadOnly(query) {
		return nil, fmt.Errorf("only read-only queries are allowed")
	}
	return s.query(ctx, query)
}

func (s *Source) query(ctx context.Context, query string) (*QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := &QueryResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}
