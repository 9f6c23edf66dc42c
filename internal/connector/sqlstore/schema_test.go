package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/entitycore/pkg/model"
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

func membershipModel(t *testing.T) *model.Model {
	t.Helper()
	b := model.NewBuilder("Membership")
	b.Field("userId", value.IntType).Column("user_id")
	b.Field("groupId", value.IntType).Column("group_id")
	b.Field("joinedAt", value.DateTimeType).Column("joined_at").IndexSettings(model.IndexSettings{Name: "by_joined", Sort: model.Desc})
	b.Primary("userId", "groupId")
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func TestCreateTable(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		model   func(*testing.T) *model.Model
		want    string
	}{
		{
			name:    "sqlite auto increment",
			dialect: SQLite(),
			model:   accountModel,
			want: "CREATE TABLE IF NOT EXISTS \"accounts\" (\n" +
				"\t\"id\" INTEGER PRIMARY KEY AUTOINCREMENT,\n" +
				"\t\"email\" TEXT NOT NULL,\n" +
				"\t\"name\" TEXT\n)",
		},
		{
			name:    "postgres auto increment",
			dialect: Postgres(),
			model:   accountModel,
			want: "CREATE TABLE IF NOT EXISTS \"accounts\" (\n" +
				"\t\"id\" BIGSERIAL PRIMARY KEY,\n" +
				"\t\"email\" TEXT NOT NULL,\n" +
				"\t\"name\" TEXT\n)",
		},
		{
			name:    "postgres composite primary",
			dialect: Postgres(),
			model:   membershipModel,
			want: "CREATE TABLE IF NOT EXISTS \"memberships\" (\n" +
				"\t\"user_id\" BIGINT NOT NULL,\n" +
				"\t\"group_id\" BIGINT NOT NULL,\n" +
				"\t\"joined_at\" TIMESTAMPTZ NOT NULL,\n" +
				"\tPRIMARY KEY (\"user_id\", \"group_id\")\n)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CreateTable(tt.dialect, tt.model(t)))
		})
	}
}

func TestCreateIndices(t *testing.T) {
	assert.Equal(t, []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS "accounts_email" ON "accounts" ("email" ASC)`,
	}, CreateIndices(accountModel(t)))

	assert.Equal(t, []string{
		`CREATE INDEX IF NOT EXISTS "memberships_by_joined" ON "memberships" ("joined_at" DESC)`,
	}, CreateIndices(membershipModel(t)))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgresql")
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.Driver())
	assert.Equal(t, "$3", d.Placeholder(3))

	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "?", d.Placeholder(3))

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"plain"`, Quote("plain"))
	assert.Equal(t, `"we""ird"`, Quote(`we"ird`))
}
