package sqldb

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestSchemaCachesUntilRefresh(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "nullable", "pk"}).
		AddRow("orders", "id", "integer", false, true).
		AddRow("orders", "total", "numeric", true, false).
		AddRow("users", "id", "integer", false, true)
	mock.ExpectQuery("SELECT c.table_name").WillReturnRows(rows)

	src := NewSource(db)
	schema, err := src.Schema(context.Background(), false)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if len(schema.Tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(schema.Tables))
	}
	if schema.Tables[0].Name != "orders" || len(schema.Tables[0].Columns) != 2 {
		t.Fatalf("unexpected first table: %+v", schema.Tables[0])
	}
	if !schema.Tables[0].Columns[0].PrimaryKey {
		t.Fatalf("expected orders.id to be primary key")
	}

	// Second call must hit the cache (no further query expectations).
	if _, err := src.Schema(context.Background(), false); err != nil {
		t.Fatalf("cached Schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunSelectQueryRejectsWrites(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	src := NewSource(db)
	if _, err := src.RunSelectQuery(context.Background(), "DELETE FROM orders"); err == nil {
		t.Fatalf("expected write statement to be rejected")
	}
}

func TestRunSelectQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT name, total FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"name", "total"}).
			AddRow([]byte("widget"), 12.5).
			AddRow([]byte("gadget"), 7.25))

	src := NewSource(db)
	res, err := src.RunSelectQuery(context.Background(), "SELECT name, total FROM orders")
	if err != nil {
		t.Fatalf("RunSelectQuery: %v", err)
	}
	if res.RowCount != 2 || len(res.Columns) != 2 {
		t.Fatalf("unexpected result shape: %+v", res)
	}
	if res.Rows[0][0] != "widget" {
		t.Fatalf("byte column not converted to string: %#v", res.Rows[0][0])
	}
}

func TestSampleRowsUnknownTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT c.table_name").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "nullable", "pk"}).
			AddRow("orders", "id", "integer", false, true))

	src := NewSource(db)
	if _, err := src.SampleRows(context.Background(), "no_such_table", 5); err == nil {
		t.Fatalf("expected unknown table to be rejected")
	}
}
