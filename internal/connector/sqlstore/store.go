// Package sqlstore persists objects in SQL tables through database/sql,
// with sqlite (modernc.org/sqlite) and postgres (pgx) dialects. Inserts
// write every present column; updates write only dirty columns and address
// the row by the identifier it was last saved under.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
	"github.com/nainya/entitycore/pkg/value"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store implements object.Connector and object.Finder over a *sql.DB
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ object.Connector = (*Store)(nil)
	_ object.Finder    = (*Store)(nil)
)

// Open connects to dsn with the dialect named by provider and pings it
func Open(ctx context.Context, provider, dsn string) (*Store, error) {
	d, err := DialectFor(provider)
	if err != nil {
		return nil, err
	}
	openMu.Lock()
	db, err := sqlOpen(d.Driver(), dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Name(), err)
	}
	return New(db, d), nil
}

// New wraps an open database
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// DB exposes the underlying handle for tests and migrations
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect in use
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureSchema creates missing tables and indices for models
func (s *Store) EnsureSchema(ctx context.Context, models ...*model.Model) error {
	for _, m := range models {
		stmts := append([]string{CreateTable(s.dialect, m)}, CreateIndices(m)...)
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("ensure %s: %w", m.Table(), err)
			}
		}
	}
	return nil
}

// SaveObject inserts new objects and updates the dirty columns of
// persisted ones
func (s *Store) SaveObject(ctx context.Context, obj *object.Object) error {
	var err error
	if obj.IsNew() {
		err = s.insert(ctx, obj)
	} else {
		err = s.update(ctx, obj)
	}
	if err == nil {
		return nil
	}
	if s.dialect.IsUniqueViolation(err) {
		err = fmt.Errorf("%s: %w: %v", obj.ModelName(), object.ErrUniqueViolation, err)
	}
	return errs.Connector("save", err)
}

func (s *Store) insert(ctx context.Context, obj *object.Object) error {
	m := obj.Model()
	row := obj.SaveValues()
	auto, hasAuto := autoIncrementField(m)

	var cols, marks []string
	var args []any
	for _, f := range persistedFields(m) {
		v, ok := row[f.Name]
		if !ok || v.IsNull() {
			continue
		}
		arg, err := toArg(s.dialect, f, v)
		if err != nil {
			return err
		}
		cols = append(cols, Quote(f.Column))
		args = append(args, arg)
		marks = append(marks, s.dialect.Placeholder(len(args)))
	}

	query := "INSERT INTO " + Quote(m.Table())
	if len(cols) == 0 {
		query += " DEFAULT VALUES"
	} else {
		query += " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	}

	if !hasAuto || !row[auto.Name].IsNull() {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	}

	var id int64
	query += " RETURNING " + Quote(auto.Column)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return err
	}
	return obj.SetValue(auto.Name, value.Int(id))
}

func (s *Store) update(ctx context.Context, obj *object.Object) error {
	m := obj.Model()
	saveKeys := m.SaveKeys()

	var sets []string
	var args []any
	for _, name := range obj.ModifiedFields() {
		if !saveKeys.Contains(name) {
			continue
		}
		f, _ := m.Field(name)
		v, _, err := obj.GetValue(name)
		if err != nil {
			return err
		}
		arg, err := toArg(s.dialect, f, v)
		if err != nil {
			return err
		}
		args = append(args, arg)
		sets = append(sets, Quote(f.Column)+" = "+s.dialect.Placeholder(len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	where, args, err := s.whereClause(m, m.Primary(), obj.PersistedIdentifierValues(), args)
	if err != nil {
		return err
	}
	query := "UPDATE " + Quote(m.Table()) + " SET " + strings.Join(sets, ", ") + " WHERE " + where
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectOneRow(res, m)
}

// DeleteObject removes the row the object was last saved as
func (s *Store) DeleteObject(ctx context.Context, obj *object.Object) error {
	m := obj.Model()
	where, args, err := s.whereClause(m, m.Primary(), obj.PersistedIdentifierValues(), nil)
	if err != nil {
		return errs.Connector("delete", err)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+Quote(m.Table())+" WHERE "+where, args...)
	if err != nil {
		return errs.Connector("delete", err)
	}
	if err := expectOneRow(res, m); err != nil {
		return errs.Connector("delete", err)
	}
	return nil
}

// FindUnique selects the row whose primary key or unique index matches
// where exactly
func (s *Store) FindUnique(ctx context.Context, m *model.Model, where map[string]value.Value) (map[string]value.Value, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	idx, ok := m.UniqueIndexFor(keys...)
	if !ok {
		return nil, errs.KeysUnallowed(keys...)
	}
	cond, args, err := s.whereClause(m, idx, where, nil)
	if err != nil {
		return nil, errs.Connector("find", err)
	}

	fields := persistedFields(m)
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = Quote(f.Column)
	}
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + Quote(m.Table()) + " WHERE " + cond + " LIMIT 1"

	raw := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(ptrs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound(m.Name())
		}
		return nil, errs.Connector("find", err)
	}

	row := make(map[string]value.Value, len(fields))
	for i, f := range fields {
		v, err := fromColumn(f, raw[i])
		if err != nil {
			return nil, errs.Connector("find", err)
		}
		if !v.IsNull() {
			row[f.Name] = v
		}
	}
	return row, nil
}

// whereClause renders equality on idx columns, numbering placeholders
// after the args already bound
func (s *Store) whereClause(m *model.Model, idx model.Index, vals map[string]value.Value, args []any) (string, []any, error) {
	conds := make([]string, len(idx.Items))
	for i, item := range idx.Items {
		v := vals[item.Field]
		if v.IsNull() {
			return "", nil, errs.NotFound(m.Name())
		}
		f, _ := m.Field(item.Field)
		arg, err := toArg(s.dialect, f, v)
		if err != nil {
			return "", nil, err
		}
		args = append(args, arg)
		conds[i] = Quote(item.Column) + " = " + s.dialect.Placeholder(len(args))
	}
	return strings.Join(conds, " AND "), args, nil
}

func expectOneRow(res sql.Result, m *model.Model) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound(m.Name())
	}
	return nil
}
