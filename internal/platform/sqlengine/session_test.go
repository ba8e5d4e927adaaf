package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExecuteConvertsMoneyTextToNumber(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	if err := CreateTextTable(ctx, db, SQLite, "u_ab12cd34_ventas", []string{"producto", "monto"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := InsertRows(ctx, db, SQLite, "u_ab12cd34_ventas", []string{"producto", "monto"}, [][]string{
		{"silla", "$1,234.56"},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	s := Borrow(db, SQLite, Scope{})
	stmt := fmt.Sprintf("SELECT COALESCE(SUM(%s), 0) AS total FROM u_ab12cd34_ventas", SQLite.NumericCast("monto"))
	res, err := s.Execute(ctx, stmt)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected one row, got %d", len(res.Rows))
	}
	got, ok := res.Rows[0]["total"].(float64)
	if !ok {
		t.Fatalf("expected float64, got %T (%v)", res.Rows[0]["total"], res.Rows[0]["total"])
	}
	if got != 1234.56 {
		t.Fatalf("got %v want 1234.56", got)
	}
}

func TestExecuteRefusesWrites(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	if err := CreateTextTable(ctx, db, SQLite, "t", []string{"a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	s := Borrow(db, SQLite, Scope{})
	if _, err := s.Execute(ctx, "INSERT INTO t (a) VALUES ('x') RETURNING a"); err == nil {
		t.Fatalf("write succeeded on a read-only session")
	}
	res, err := s.Execute(ctx, "SELECT COUNT(*) AS n FROM t")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n := res.Rows[0]["n"]; n != int64(0) {
		t.Fatalf("write leaked out of the read transaction: n=%v", n)
	}
	// The pool connection must come back writable for ingestion.
	if _, err := db.ExecContext(ctx, "INSERT INTO t (a) VALUES ('y')"); err != nil {
		t.Fatalf("connection left read-only: %v", err)
	}
}

func TestConfinedSessionRefusesTablesOutsideScope(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	for _, table := range []string{"app_user", "u_ab12cd34_ventas", "u_ffff0000_ventas"} {
		if err := CreateTextTable(ctx, db, SQLite, table, []string{"email", "monto"}); err != nil {
			t.Fatalf("create %s: %v", table, err)
		}
		if err := InsertRows(ctx, db, SQLite, table, []string{"email", "monto"}, [][]string{{"victim@x.io", "$5"}}); err != nil {
			t.Fatalf("insert %s: %v", table, err)
		}
	}
	s := Borrow(db, SQLite, Scope{Prefix: "u_ab12cd34_", Exclude: []string{"app_user"}})

	if _, err := s.Execute(ctx, "SELECT email, monto FROM u_ab12cd34_ventas"); err != nil {
		t.Fatalf("own table: %v", err)
	}
	cases := []string{
		"SELECT email FROM app_user",
		"SELECT email FROM u_ffff0000_ventas",
		"SELECT v.monto FROM u_ab12cd34_ventas v JOIN app_user u ON u.email = v.email",
		"SELECT (SELECT email FROM app_user LIMIT 1) AS e FROM u_ab12cd34_ventas",
		"SELECT name FROM sqlite_master",
		"SELECT * FROM pragma_table_info('app_user')",
		"SELECT monto FROM u_ab12cd34_ventas; DELETE FROM app_user",
	}
	for _, stmt := range cases {
		if _, err := s.Execute(ctx, stmt); !errors.Is(err, ErrStatementRejected) {
			t.Fatalf("%q: expected rejection, got %v", stmt, err)
		}
	}
	// Unconfined sessions (external databases) are not checked.
	if _, err := Borrow(db, SQLite, Scope{}).Execute(ctx, "SELECT email FROM app_user"); err != nil {
		t.Fatalf("unconfined session: %v", err)
	}
}

func TestExecuteErrorReleasesConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := openMemory(t)
	s := Borrow(db, SQLite, Scope{})
	for i := 0; i < 3; i++ {
		if _, err := s.Execute(ctx, "SELECT * FROM missing_table"); err == nil {
			t.Fatalf("expected error")
		}
	}
	// With a single-connection pool this blocks forever if a failed run leaked its connection.
	if _, err := s.Execute(ctx, "SELECT 1 AS one"); err != nil {
		t.Fatalf("connection leaked: %v", err)
	}
}

func TestTablesRespectsScopeAndCap(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	for i := 0; i < MaxTables+5; i++ {
		if err := CreateTextTable(ctx, db, SQLite, fmt.Sprintf("u_owner_%02d", i), []string{"c"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := CreateTextTable(ctx, db, SQLite, "users", []string{"email"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := Borrow(db, SQLite, Scope{}).Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(all) != MaxTables {
		t.Fatalf("expected cap %d, got %d", MaxTables, len(all))
	}

	scoped, err := Borrow(db, SQLite, Scope{Tables: []string{"u_owner_03"}}).Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Name != "u_owner_03" {
		t.Fatalf("unexpected scoped tables: %+v", scoped)
	}
	text := FormatSchema(scoped)
	if !strings.HasPrefix(text, "u_owner_03(c text)") {
		t.Fatalf("unexpected schema text %q", text)
	}
}

func TestNormalizeValue(t *testing.T) {
	cases := []struct {
		name   string
		in     any
		dbType string
		want   any
	}{
		{"decimal bytes", []byte("12.50"), "DECIMAL", 12.5},
		{"numeric string", "99", "NUMERIC", 99.0},
		{"int bytes", []byte("42"), "BIGINT", int64(42)},
		{"unsigned int", []byte("7"), "UNSIGNED INT", int64(7)},
		{"text bytes", []byte("hola"), "VARCHAR", "hola"},
		{"interval stays text", []byte("1 day"), "INTERVAL", "1 day"},
		{"nil", nil, "TEXT", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeValue(tc.in, tc.dbType); got != tc.want {
				t.Fatalf("got %v (%T) want %v (%T)", got, got, tc.want, tc.want)
			}
		})
	}
}

func TestDescriptorDSN(t *testing.T) {
	cases := []struct {
		name string
		d    Descriptor
		want string
	}{
		{"postgres", Descriptor{Dialect: Postgres, Host: "db", User: "u", Password: "p@ss", Database: "shop"}, "postgres://u:p%40ss@db:5432/shop"},
		{"mysql", Descriptor{Dialect: MySQL, Host: "10.0.0.2", User: "root", Password: "pw", Database: "ventas"}, "root:pw@tcp(10.0.0.2:3306)/ventas"},
		{"sqlserver", Descriptor{Dialect: SQLServer, Host: "mssql", Port: 1500, User: "sa", Password: "x", Database: "erp"}, "sqlserver://sa:x@mssql:1500?database=erp"},
		{"sqlite", Descriptor{Dialect: SQLite, Database: "/data/app.db"}, "/data/app.db"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.d.DSN(0)
			if err != nil {
				t.Fatalf("DSN: %v", err)
			}
			if !strings.HasPrefix(got, tc.want) {
				t.Fatalf("got %q want prefix %q", got, tc.want)
			}
		})
	}
}

func TestDescriptorValidate(t *testing.T) {
	if err := (Descriptor{Dialect: MySQL, Database: "x"}).Validate(); err == nil {
		t.Fatalf("missing host should fail")
	}
	if err := (Descriptor{Dialect: "oracle", Host: "h", Database: "x"}).Validate(); err == nil {
		t.Fatalf("unknown dialect should fail")
	}
	if _, err := ParseDialect("postgresql"); err != nil {
		t.Fatalf("postgresql alias: %v", err)
	}
}
