package sqlengine

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type Dialect string

const (
	Postgres  Dialect = "postgres"
	MySQL     Dialect = "mysql"
	SQLServer Dialect = "sqlserver"
	SQLite    Dialect = "sqlite"
)

// RemoteDialects are the engines a user may register as an external source.
// SQLite opens files on this host, so it stays internal.
func RemoteDialects() []Dialect { return []Dialect{Postgres, MySQL, SQLServer} }

func ParseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type %q", raw)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	case SQLServer:
		return "sqlserver"
	case SQLite:
		return "sqlite"
	default:
		return ""
	}
}

func (d Dialect) defaultPort() int {
	switch d {
	case Postgres:
		return 5432
	case MySQL:
		return 3306
	case SQLServer:
		return 1433
	default:
		return 0
	}
}

func (d Dialect) QuoteIdent(name string) string {
	switch d {
	case MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case SQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// Placeholder returns the n-th (1-based) bind parameter marker.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case Postgres:
		return "$" + strconv.Itoa(n)
	case SQLServer:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// NumericCast is the expression that turns a money-like text column into a number.
func (d Dialect) NumericCast(col string) string {
	inner := fmt.Sprintf("REPLACE(REPLACE(%s, '$', ''), ',', '')", col)
	switch d {
	case MySQL:
		return fmt.Sprintf("CAST(%s AS DECIMAL(18,2))", inner)
	case SQLServer:
		return fmt.Sprintf("TRY_CAST(%s AS DECIMAL(18,2))", inner)
	case SQLite:
		return fmt.Sprintf("CAST(%s AS REAL)", inner)
	default:
		return fmt.Sprintf("CAST(%s AS NUMERIC)", inner)
	}
}

// Descriptor is the stored connection information of an external database.
type Descriptor struct {
	Dialect  Dialect           `json:"dialect"`
	Host     string            `json:"host,omitempty"`
	Port     int               `json:"port,omitempty"`
	User     string            `json:"user,omitempty"`
	Password string            `json:"password,omitempty"`
	Database string            `json:"database,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

func (d Descriptor) Validate() error {
	if d.Dialect.DriverName() == "" {
		return fmt.Errorf("unsupported database type %q", d.Dialect)
	}
	if strings.TrimSpace(d.Database) == "" {
		return fmt.Errorf("database is required")
	}
	if d.Dialect != SQLite && strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func (d Descriptor) address() string {
	port := d.Port
	if port == 0 {
		port = d.Dialect.defaultPort()
	}
	return net.JoinHostPort(strings.TrimSpace(d.Host), strconv.Itoa(port))
}

// DSN renders the driver connection string.
func (d Descriptor) DSN(connectTimeout time.Duration) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	switch d.Dialect {
	case Postgres:
		q := url.Values{}
		for k, v := range d.Params {
			q.Set(k, v)
		}
		if connectTimeout > 0 && q.Get("connect_timeout") == "" {
			q.Set("connect_timeout", strconv.Itoa(int(connectTimeout.Seconds())))
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     d.address(),
			Path:     "/" + d.Database,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case MySQL:
		cfg := mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = d.address()
		cfg.DBName = d.Database
		cfg.ParseTime = true
		cfg.Timeout = connectTimeout
		if len(d.Params) > 0 {
			cfg.Params = make(map[string]string, len(d.Params))
			for k, v := range d.Params {
				cfg.Params[k] = v
			}
		}
		return cfg.FormatDSN(), nil
	case SQLServer:
		q := url.Values{}
		q.Set("database", d.Database)
		for k, v := range d.Params {
			q.Set(k, v)
		}
		if connectTimeout > 0 && q.Get("dial timeout") == "" {
			q.Set("dial timeout", strconv.Itoa(int(connectTimeout.Seconds())))
		}
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(d.User, d.Password),
			Host:     d.address(),
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case SQLite:
		return d.Database, nil
	}
	return "", fmt.Errorf("unsupported database type %q", d.Dialect)
}

// Target is a credential-free label for logs and listings.
func (d Descriptor) Target() string {
	if d.Dialect == SQLite {
		return "sqlite:" + d.Database
	}
	return fmt.Sprintf("%s://%s/%s", d.Dialect, d.address(), d.Database)
}
