package sqlstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nainya/entitycore/pkg/value"
)

// Dialect captures what differs between the supported databases
type Dialect interface {
	Name() string
	Driver() string
	Placeholder(n int) string
	ColumnType(t value.Type) string
	// AutoIncrementColumn is the full definition of a generated key column
	AutoIncrementColumn(quotedName string) string
	TimeArg(t time.Time, dateOnly bool) any
	IsUniqueViolation(err error) bool
}

// Quote quotes an identifier for both dialects
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// DialectFor resolves a provider name
func DialectFor(provider string) (Dialect, error) {
	switch provider {
	case "sqlite", "sqlite3":
		return SQLite(), nil
	case "postgres", "postgresql", "pgx":
		return Postgres(), nil
	}
	return nil, fmt.Errorf("sqlstore: unknown dialect %q", provider)
}

type sqliteDialect struct{}

// SQLite targets modernc.org/sqlite
func SQLite() Dialect { return sqliteDialect{} }

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) Driver() string         { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) ColumnType(t value.Type) string {
	switch t.Kind() {
	case value.TypeBool, value.TypeInt:
		return "INTEGER"
	case value.TypeFloat:
		return "REAL"
	}
	return "TEXT"
}

func (sqliteDialect) AutoIncrementColumn(name string) string {
	return name + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

// sqlite has no time type; times are stored as sortable text
func (sqliteDialect) TimeArg(t time.Time, dateOnly bool) any {
	if dateOnly {
		return t.UTC().Format(value.DateLayout)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type postgresDialect struct{}

// Postgres targets the pgx database/sql driver
func Postgres() Dialect { return postgresDialect{} }

func (postgresDialect) Name() string                    { return "postgres" }
func (postgresDialect) Driver() string                  { return "pgx" }
func (postgresDialect) Placeholder(n int) string        { return fmt.Sprintf("$%d", n) }
func (postgresDialect) TimeArg(t time.Time, _ bool) any { return t.UTC() }

func (postgresDialect) ColumnType(t value.Type) string {
	switch t.Kind() {
	case value.TypeBool:
		return "BOOLEAN"
	case value.TypeInt:
		return "BIGINT"
	case value.TypeFloat:
		return "DOUBLE PRECISION"
	case value.TypeDate:
		return "DATE"
	case value.TypeDateTime:
		return "TIMESTAMPTZ"
	case value.TypeJSON, value.TypeArray:
		return "JSONB"
	}
	return "TEXT"
}

func (postgresDialect) AutoIncrementColumn(name string) string {
	return name + " BIGSERIAL PRIMARY KEY"
}

const pgUniqueViolation = "23505"

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
