package remote_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nainya/entitycore/internal/connector/memory"
	"github.com/nainya/entitycore/internal/connector/remote"
	"github.com/nainya/entitycore/internal/server"
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
	b.Field("joined", value.DateTimeType).Optional()
	b.Field("tags", value.JSONType).Optional()
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func setup(t *testing.T, m *model.Model) (*remote.Connector, *memory.Connector) {
	t.Helper()
	backend := memory.New(nil)
	srv, err := server.NewServer(backend, "memory", []*model.Model{m}, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	gs := server.NewGRPCServer(srv, nil)
	go func() {
		_ = gs.Serve(lis)
	}()

	conn, err := remote.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		gs.Stop()
		lis.Close()
	})
	return conn, backend
}

func TestSaveRoundTrip(t *testing.T) {
	m := accountModel(t)
	conn, backend := setup(t, m)
	ctx := context.Background()

	obj := object.New(m, conn)
	require.NoError(t, obj.SetJSON(ctx, map[string]any{
		"email":  "ada@x.io",
		"joined": "2024-03-01T10:00:00Z",
		"tags":   []any{"admin"},
	}))
	require.NoError(t, obj.Save(ctx))

	assert.Equal(t, value.Int(1), obj.Identifier())
	assert.False(t, obj.IsNew())
	assert.Equal(t, 1, backend.Count(m))

	row, err := conn.FindUnique(ctx, m, map[string]value.Value{"id": value.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, value.String("ada@x.io"), row["email"])
	joined, _ := m.Field("joined")
	want, err := joined.Decode("2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, want.Equal(row["joined"]))
}

func TestUpdateAndDelete(t *testing.T) {
	m := accountModel(t)
	conn, backend := setup(t, m)
	ctx := context.Background()

	obj := object.New(m, conn)
	require.NoError(t, obj.SetJSON(ctx, map[string]any{"email": "ada@x.io"}))
	require.NoError(t, obj.Save(ctx))

	require.NoError(t, obj.UpdateJSON(ctx, map[string]any{"email": "ada@y.io"}))
	require.NoError(t, obj.Save(ctx))

	_, err := conn.FindUnique(ctx, m, map[string]value.Value{"email": value.String("ada@x.io")})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	row, err := conn.FindUnique(ctx, m, map[string]value.Value{"email": value.String("ada@y.io")})
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), row["id"])

	require.NoError(t, obj.Delete(ctx))
	assert.True(t, obj.IsDeleted())
	assert.Equal(t, 0, backend.Count(m))
}

func TestUniqueViolationCrossesTheWire(t *testing.T) {
	m := accountModel(t)
	conn, _ := setup(t, m)
	ctx := context.Background()

	first := object.New(m, conn)
	require.NoError(t, first.SetJSON(ctx, map[string]any{"email": "ada@x.io"}))
	require.NoError(t, first.Save(ctx))

	second := object.New(m, conn)
	require.NoError(t, second.SetJSON(ctx, map[string]any{"email": "ada@x.io"}))
	err := second.Save(ctx)
	require.Error(t, err)
	assert.Equal(t, errs.KindConnector, errs.KindOf(err))
	assert.True(t, errors.Is(err, object.ErrUniqueViolation))
	assert.True(t, second.IsNew())
}

func TestDeleteMissingRecord(t *testing.T) {
	m := accountModel(t)
	conn, _ := setup(t, m)

	obj, err := object.Hydrate(m, conn, map[string]value.Value{"id": value.Int(9), "email": value.String("x@x.io")})
	require.NoError(t, err)
	err = conn.DeleteObject(context.Background(), obj)
	assert.Equal(t, errs.KindConnector, errs.KindOf(err))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestFindUniqueRejectsPlainKeysLocally(t *testing.T) {
	m := accountModel(t)
	conn, _ := setup(t, m)

	_, err := conn.FindUnique(context.Background(), m, map[string]value.Value{"joined": value.Null()})
	assert.Equal(t, errs.KindKeysUnallowed, errs.KindOf(err))
}

func TestPing(t *testing.T) {
	m := accountModel(t)
	conn, _ := setup(t, m)
	require.NoError(t, conn.Ping(context.Background()))
}

func TestCanceledContext(t *testing.T) {
	m := accountModel(t)
	conn, _ := setup(t, m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := conn.Ping(ctx)
	assert.Equal(t, errs.KindConnector, errs.KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}
