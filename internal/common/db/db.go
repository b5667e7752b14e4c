package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Dialect identifies the SQL flavour behind a Database.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// Config holds the connection pool configuration.
type Config struct {
	// Driver is "mysql" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is the data source name in the driver's native format.
	DSN string `yaml:"dsn"`

	// Default: 25
	MaxOpenConnections int `yaml:"maxOpenConnections"`

	// Default: 5
	MaxIdleConnections int `yaml:"maxIdleConnections"`

	// Default: 5 minutes
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`

	// Default: 10 minutes
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`
}

// Row is a single scanned result row.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	RowsAffected() (int64, error)
}

// Querier abstracts single-statement database operations.
// Queries are written with '?' placeholders and rebound for the dialect.
type Querier interface {
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Database is a pooled connection.
type Database interface {
	Querier
	Dialect() Dialect
	Ping(ctx context.Context) error
	Close() error
}

// SQLDatabase implements Database on database/sql.
type SQLDatabase struct {
	db      *sql.DB
	dialect Dialect
}

// Open creates a pooled connection and verifies it with a ping.
func Open(config Config) (*SQLDatabase, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("DSN cannot be empty")
	}
	dialect, err := parseDialect(config.Driver)
	if err != nil {
		return nil, err
	}

	if config.MaxOpenConnections == 0 {
		config.MaxOpenConnections = 25
	}
	if config.MaxIdleConnections == 0 {
		config.MaxIdleConnections = 5
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = 5 * time.Minute
	}
	if config.ConnMaxIdleTime == 0 {
		config.ConnMaxIdleTime = 10 * time.Minute
	}

	db, err := sql.Open(string(dialect), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConnections)
	db.SetMaxIdleConns(config.MaxIdleConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLDatabase{db: db, dialect: dialect}, nil
}

func parseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (s *SQLDatabase) Dialect() Dialect {
	return s.dialect
}

// QueryRow executes a query that returns at most one row
func (s *SQLDatabase) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return s.db.QueryRowContext(ctx, Rebind(s.dialect, query), args...)
}

// Exec executes a query that doesn't return rows
func (s *SQLDatabase) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	result, err := s.db.ExecContext(ctx, Rebind(s.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return result, nil
}

func (s *SQLDatabase) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

// Rebind rewrites '?' placeholders into '$n' for postgres. Quoted literals are left alone.
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
