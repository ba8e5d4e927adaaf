package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

const (
	// MaxTables caps introspection so huge catalogs stay promptable.
	MaxTables = 50
	// MaxRows caps a single result set held in memory.
	MaxRows = 10000
)

// Scope narrows which tables of a target are visible to introspection and,
// for confined sessions, which tables a statement may read.
type Scope struct {
	Tables  []string
	Prefix  string
	Exclude []string
}

func (s Scope) allows(table string) bool {
	for _, ex := range s.Exclude {
		if strings.EqualFold(ex, table) {
			return false
		}
	}
	if len(s.Tables) > 0 {
		for _, t := range s.Tables {
			if strings.EqualFold(t, table) {
				return true
			}
		}
		return false
	}
	if s.Prefix != "" {
		return strings.HasPrefix(strings.ToLower(table), strings.ToLower(s.Prefix))
	}
	return true
}

type Column struct {
	Name string
	Type string
}

type Table struct {
	Name    string
	Columns []Column
}

type Row = map[string]any

type Result struct {
	Columns   []string
	Rows      []Row
	Truncated bool
}

// Session is a request-scoped handle to one target database. Sessions opened
// from a Descriptor own their pool and close it; borrowed sessions do not.
type Session struct {
	db      *sql.DB
	dialect Dialect
	scope   Scope
	owned   bool
}

// Open dials an external database and verifies it answers within timeout.
func Open(ctx context.Context, d Descriptor, timeout time.Duration) (*Session, error) {
	dsn, err := d.DSN(timeout)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.Dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Dialect, err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Minute)

	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", d.Target(), err)
	}
	return &Session{db: db, dialect: d.Dialect, owned: true}, nil
}

// Ping opens, pings and closes.
func Ping(ctx context.Context, d Descriptor, timeout time.Duration) error {
	s, err := Open(ctx, d, timeout)
	if err != nil {
		return err
	}
	return s.Close()
}

// Borrow wraps a shared pool; Close leaves the pool open.
func Borrow(db *sql.DB, dialect Dialect, scope Scope) *Session {
	return &Session{db: db, dialect: dialect, scope: scope}
}

func (s *Session) Dialect() Dialect { return s.dialect }

// WithScope returns a session over the same pool with a narrower scope.
func (s *Session) WithScope(scope Scope) *Session {
	cp := *s
	cp.scope = scope
	return &cp
}

func (s *Session) Close() error {
	if s == nil || !s.owned || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Session) introspectQuery() string {
	switch s.dialect {
	case Postgres:
		return `SELECT table_name, column_name, data_type FROM information_schema.columns
WHERE table_schema = current_schema() ORDER BY table_name, ordinal_position`
	case MySQL:
		return `SELECT table_name, column_name, data_type FROM information_schema.columns
WHERE table_schema = DATABASE() ORDER BY table_name, ordinal_position`
	case SQLServer:
		return `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = SCHEMA_NAME() ORDER BY TABLE_NAME, ORDINAL_POSITION`
	default:
		return `SELECT m.name, p.name, p.type FROM sqlite_master m JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' ORDER BY m.name, p.cid`
	}
}

// Tables lists at most MaxTables visible tables with their columns, read live.
func (s *Session) Tables(ctx context.Context) ([]Table, error) {
	rows, err := s.db.QueryContext(ctx, s.introspectQuery())
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	defer rows.Close()

	byName := map[string]*Table{}
	order := make([]string, 0, 16)
	for rows.Next() {
		var table, col, typ string
		if err := rows.Scan(&table, &col, &typ); err != nil {
			return nil, fmt.Errorf("introspect scan: %w", err)
		}
		if !s.scope.allows(table) {
			continue
		}
		t, ok := byName[table]
		if !ok {
			if len(order) >= MaxTables {
				continue
			}
			t = &Table{Name: table}
			byName[table] = t
			order = append(order, table)
		}
		t.Columns = append(t.Columns, Column{Name: col, Type: strings.ToLower(typ)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect rows: %w", err)
	}
	sort.Strings(order)
	out := make([]Table, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

// SchemaText renders the visible schema as "table(col type, ...)" lines.
func (s *Session) SchemaText(ctx context.Context) (string, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return "", err
	}
	return FormatSchema(tables), nil
}

func FormatSchema(tables []Table) string {
	var b strings.Builder
	for _, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.Name+" "+c.Type)
		}
		fmt.Fprintf(&b, "%s(%s)\n", t.Name, strings.Join(cols, ", "))
	}
	return b.String()
}

// Confined reports whether the session is limited to a subset of the tables
// in its database. Confined sessions check every statement before running it.
func (s *Session) Confined() bool {
	return s.scope.Prefix != "" || len(s.scope.Tables) > 0
}

// Execute runs one read statement on a dedicated connection inside a
// read-only transaction that is always rolled back and always released.
// Confined sessions refuse statements that reach outside their scope.
func (s *Session) Execute(ctx context.Context, statement string) (*Result, error) {
	if s.Confined() {
		if err := CheckStatement(statement, s.dialect, s.scope); err != nil {
			return nil, err
		}
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	// SQLite ignores TxOptions.ReadOnly; query_only is its per-connection switch.
	if s.dialect == SQLite {
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return nil, fmt.Errorf("read-only mode: %w", err)
		}
		defer func() { _, _ = conn.ExecContext(context.Background(), "PRAGMA query_only = OFF") }()
	}

	// go-mssqldb rejects ReadOnly; SQL Server relies on the rollback alone.
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.dialect != SQLServer})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(colTypes))
	dbTypes := make([]string, len(colTypes))
	for i, ct := range colTypes {
		names[i] = ct.Name()
		dbTypes[i] = ct.DatabaseTypeName()
	}

	res := &Result{Columns: names, Rows: make([]Row, 0, 16)}
	for rows.Next() {
		if len(res.Rows) >= MaxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(names))
		for i, name := range names {
			row[name] = NormalizeValue(vals[i], dbTypes[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
