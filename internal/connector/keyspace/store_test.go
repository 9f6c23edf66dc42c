package keyspace_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/entitycore/internal/connector/keyspace"
	"github.com/nainya/entitycore/internal/connector/memory"
	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
	"github.com/nainya/entitycore/pkg/value"
)

func accountModel(t *testing.T) *model.Model {
	t.Helper()
	b := model.NewBuilder("Account")
	b.Field("id", value.IntType).Primary().AutoIncrement().ReadOnly()
	b.Field("email", value.StringType).Unique()
	b.Field("name", value.StringType).Optional()
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func countryModel(t *testing.T) *model.Model {
	t.Helper()
	b := model.NewBuilder("Country")
	b.Field("code", value.StringType).Primary()
	b.Field("name", value.StringType)
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func create(t *testing.T, m *model.Model, conn object.Connector, payload map[string]any) *object.Object {
	t.Helper()
	obj := object.New(m, conn)
	require.NoError(t, obj.SetJSON(context.Background(), payload))
	require.NoError(t, obj.Save(context.Background()))
	return obj
}

func TestSaveAssignsAutoIncrement(t *testing.T) {
	counts := map[string]int{}
	conn := memory.New(func(model string, rows int) { counts[model] = rows })
	m := accountModel(t)

	a := create(t, m, conn, map[string]any{"email": "a@x.io"})
	b := create(t, m, conn, map[string]any{"email": "b@x.io"})

	assert.Equal(t, value.Int(1), a.Identifier())
	assert.Equal(t, value.Int(2), b.Identifier())
	assert.False(t, a.IsNew())
	assert.Empty(t, a.ModifiedFields())
	assert.Equal(t, 2, conn.Count(m))
	assert.Equal(t, 2, counts["Account"])
}

func TestSaveRejectsDuplicateUnique(t *testing.T) {
	conn := memory.New(nil)
	m := accountModel(t)
	create(t, m, conn, map[string]any{"email": "a@x.io"})

	dup := object.New(m, conn)
	require.NoError(t, dup.SetJSON(context.Background(), map[string]any{"email": "a@x.io"}))
	err := dup.Save(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, object.ErrUniqueViolation))
	assert.Equal(t, errs.KindConnector, errs.KindOf(err))
	assert.True(t, dup.IsNew())
	_, ok, _ := dup.GetValue("id")
	assert.False(t, ok, "failed insert must not assign an id")
	assert.Equal(t, 1, conn.Count(m))
}

func TestUpdateMovesUniqueEntry(t *testing.T) {
	ctx := context.Background()
	conn := memory.New(nil)
	m := accountModel(t)
	a := create(t, m, conn, map[string]any{"email": "a@x.io", "name": "Ann"})

	require.NoError(t, a.UpdateJSON(ctx, map[string]any{"email": "ann@x.io"}))
	require.NoError(t, a.Save(ctx))

	_, err := conn.FindUnique(ctx, m, map[string]value.Value{"email": value.String("a@x.io")})
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	row, err := conn.FindUnique(ctx, m, map[string]value.Value{"email": value.String("ann@x.io")})
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), row["id"])
	assert.Equal(t, value.String("Ann"), row["name"])

	// the old address is free again
	create(t, m, conn, map[string]any{"email": "a@x.io"})
	assert.Equal(t, 2, conn.Count(m))
}

func TestUpdateRejectsTakenUnique(t *testing.T) {
	ctx := context.Background()
	conn := memory.New(nil)
	m := accountModel(t)
	create(t, m, conn, map[string]any{"email": "a@x.io"})
	b := create(t, m, conn, map[string]any{"email": "b@x.io"})

	require.NoError(t, b.UpdateJSON(ctx, map[string]any{"email": "a@x.io"}))
	err := b.Save(ctx)
	assert.True(t, errors.Is(err, object.ErrUniqueViolation))
	assert.True(t, b.IsModified())

	row, err := conn.FindUnique(ctx, m, map[string]value.Value{"id": value.Int(2)})
	require.NoError(t, err)
	assert.Equal(t, value.String("b@x.io"), row["email"])
}

func TestPrimaryKeyChange(t *testing.T) {
	ctx := context.Background()
	conn := memory.New(nil)
	m := countryModel(t)
	c := create(t, m, conn, map[string]any{"code": "uk", "name": "United Kingdom"})

	require.NoError(t, c.UpdateJSON(ctx, map[string]any{"code": "gb"}))
	require.NoError(t, c.Save(ctx))

	_, err := conn.FindUnique(ctx, m, map[string]value.Value{"code": value.String("uk")})
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	row, err := conn.FindUnique(ctx, m, map[string]value.Value{"code": value.String("gb")})
	require.NoError(t, err)
	assert.Equal(t, value.String("United Kingdom"), row["name"])
	assert.Equal(t, 1, conn.Count(m))
}

func TestInsertDuplicatePrimary(t *testing.T) {
	conn := memory.New(nil)
	m := countryModel(t)
	create(t, m, conn, map[string]any{"code": "fr", "name": "France"})

	dup := object.New(m, conn)
	require.NoError(t, dup.SetJSON(context.Background(), map[string]any{"code": "fr", "name": "Francia"}))
	assert.True(t, errors.Is(dup.Save(context.Background()), object.ErrUniqueViolation))
}

func TestFindUniqueRequiresUniqueKeys(t *testing.T) {
	conn := memory.New(nil)
	m := accountModel(t)

	_, err := conn.FindUnique(context.Background(), m, map[string]value.Value{"name": value.String("Ann")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrKeysUnallowed))

	_, err = conn.FindUnique(context.Background(), m, map[string]value.Value{
		"id": value.Int(1), "email": value.String("a@x.io"),
	})
	assert.True(t, errors.Is(err, errs.ErrKeysUnallowed))
}

func TestDeleteRemovesRowAndIndex(t *testing.T) {
	ctx := context.Background()
	conn := memory.New(nil)
	m := accountModel(t)
	a := create(t, m, conn, map[string]any{"email": "a@x.io"})

	require.NoError(t, a.Delete(ctx))
	assert.True(t, a.IsDeleted())
	assert.Equal(t, 0, conn.Count(m))
	assert.Equal(t, 0, conn.Len())

	_, err := conn.FindUnique(ctx, m, map[string]value.Value{"id": value.Int(1)})
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDeleteMissingRow(t *testing.T) {
	conn := memory.New(nil)
	m := accountModel(t)
	ghost, err := object.Hydrate(m, conn, map[string]value.Value{"id": value.Int(99), "email": value.String("g@x.io")})
	require.NoError(t, err)

	err = ghost.Delete(context.Background())
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Equal(t, errs.KindConnector, errs.KindOf(err))
	assert.False(t, ghost.IsDeleted())
}

func TestRowsInPrimaryOrder(t *testing.T) {
	conn := memory.New(nil)
	m := countryModel(t)
	for _, code := range []string{"de", "at", "ch"} {
		create(t, m, conn, map[string]any{"code": code, "name": code})
	}

	var codes []string
	require.NoError(t, conn.Rows(m, func(row map[string]value.Value) bool {
		s, _ := row["code"].AsString()
		codes = append(codes, s)
		return true
	}))
	assert.Equal(t, []string{"at", "ch", "de"}, codes)
}

type failingSpace struct{}

func (failingSpace) Get([]byte) ([]byte, bool)               { return nil, false }
func (failingSpace) Scan([]byte, func(key, val []byte) bool) {}
func (failingSpace) Apply([]keyspace.Mutation) error         { return errors.New("disk on fire") }

func TestSaveFailureLeavesObjectNew(t *testing.T) {
	store := keyspace.New(failingSpace{}, nil)
	m := accountModel(t)
	obj := object.New(m, store)
	require.NoError(t, obj.SetJSON(context.Background(), map[string]any{"email": "a@x.io"}))

	err := obj.Save(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.True(t, obj.IsNew())
	_, ok, _ := obj.GetValue("id")
	assert.False(t, ok)
}

func TestCanceledContext(t *testing.T) {
	conn := memory.New(nil)
	m := accountModel(t)
	obj := object.New(m, conn)
	require.NoError(t, obj.SetJSON(context.Background(), map[string]any{"email": "a@x.io"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := obj.Save(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, conn.Count(m))
}
