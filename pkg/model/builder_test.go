package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/entitycore/pkg/value"
)

func userBuilder() *Builder {
	b := NewBuilder("UserProfile")
	b.Field("id", value.IntType).Primary().AutoIncrement().ReadOnly()
	b.Field("email", value.StringType).Unique().AuthIdentity()
	b.Field("password", value.StringType).WriteOnly().AuthBy().Unqueryable()
	b.Field("age", value.IntType).Optional().IndexSettings(IndexSettings{Name: "by_age", Sort: Desc})
	b.Field("fullName", value.StringType).Store(Calculated)
	b.Field("token", value.StringType).Store(Temp).Column("tmp_token")
	return b
}

func TestBuildKeyProjections(t *testing.T) {
	m, err := userBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"email", "password", "age", "fullName", "token"}, m.InputKeys().Keys())
	assert.Equal(t, []string{"id", "email", "password", "age"}, m.SaveKeys().Keys())
	assert.Equal(t, []string{"id", "email", "age", "fullName", "token"}, m.OutputKeys().Keys())
	assert.Equal(t, []string{"id", "email", "password", "age", "fullName", "token"}, m.GetValueKeys().Keys())
	assert.Equal(t, []string{"id", "email"}, m.UniqueQueryKeys().Keys())
	assert.NotContains(t, m.QueryKeys().Keys(), "password")
	assert.Equal(t, []string{"email"}, m.AuthIdentityKeys().Keys())
	assert.Equal(t, []string{"password"}, m.AuthByKeys().Keys())
}

func TestBuildDefaultsNames(t *testing.T) {
	m, err := userBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, "userprofiles", m.Table())
	assert.Equal(t, "user-profiles", m.URLSegment())
	assert.Equal(t, "UserProfile", m.LocalizedName())

	f, ok := m.Field("token")
	require.True(t, ok)
	assert.Equal(t, "tmp_token", f.Column)
	f, ok = m.Field("email")
	require.True(t, ok)
	assert.Equal(t, "email", f.Column)
}

func TestBuildSynthesizesIndices(t *testing.T) {
	m, err := userBuilder().Build()
	require.NoError(t, err)

	primary := m.Primary()
	assert.Equal(t, PrimaryIndex, primary.Kind)
	assert.Equal(t, []string{"id"}, primary.Keys())
	pf, ok := m.PrimaryField()
	require.True(t, ok)
	assert.Equal(t, "id", pf.Name)

	indices := m.Indices()
	require.Len(t, indices, 2)
	assert.Equal(t, Index{Kind: UniqueIndex, Name: "email", Items: []IndexItem{{Field: "email", Column: "email"}}}, indices[0])
	assert.Equal(t, Index{Kind: PlainIndex, Name: "by_age", Items: []IndexItem{{Field: "age", Column: "age", Sort: Desc}}}, indices[1])
	assert.Len(t, m.UniqueIndices(), 2)
}

func TestBuildCompositePrimary(t *testing.T) {
	b := NewBuilder("Membership")
	b.Field("userId", value.IntType)
	b.Field("groupId", value.IntType)
	b.Primary("userId", "groupId")
	b.Unique("groupId", "userId")

	m, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "userId_groupId", m.Primary().Name)
	assert.Equal(t, []string{"userId", "groupId"}, m.Primary().Keys())
	assert.Equal(t, "groupId_userId", m.Indices()[0].Name)
	_, single := m.PrimaryField()
	assert.False(t, single)
}

func TestBuildFailures(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Builder
		want  error
	}{
		{
			name: "no primary",
			build: func() *Builder {
				b := NewBuilder("Post")
				b.Field("title", value.StringType)
				return b
			},
			want: ErrNoPrimary,
		},
		{
			name: "two primary fields",
			build: func() *Builder {
				b := NewBuilder("Post")
				b.Field("a", value.IntType).Primary()
				b.Field("b", value.IntType).Primary()
				return b
			},
			want: ErrMultiplePrimary,
		},
		{
			name: "field and model primary",
			build: func() *Builder {
				b := NewBuilder("Post")
				b.Field("a", value.IntType).Primary()
				b.Primary("a")
				return b
			},
			want: ErrMultiplePrimary,
		},
		{
			name: "duplicate field",
			build: func() *Builder {
				b := NewBuilder("Post")
				b.Field("id", value.IntType).Primary()
				b.Field("id", value.StringType)
				return b
			},
			want: ErrDuplicateField,
		},
		{
			name: "duplicate index",
			build: func() *Builder {
				b := NewBuilder("Post")
				b.Field("id", value.IntType).Primary()
				b.Field("slug", value.StringType).Unique()
				b.IndexSettings(IndexSettings{Name: "slug"}, "id")
				return b
			},
			want: ErrDuplicateIndex,
		},
		{
			name: "unknown index field",
			build: func() *Builder {
				b := NewBuilder("Post")
				b.Field("id", value.IntType).Primary()
				b.Index("missing")
				return b
			},
			want: ErrUnknownField,
		},
		{
			name: "relation arity",
			build: func() *Builder {
				b := NewBuilder("Post")
				b.Field("id", value.IntType).Primary()
				b.Relation("author").Model("User").Fields("id")
				return b
			},
			want: ErrInvalidRelation,
		},
		{
			name: "untyped field",
			build: func() *Builder {
				b := NewBuilder("Post")
				b.Field("id", value.IntType).Primary()
				b.Field("body", value.Type{})
				return b
			},
			want: ErrInvalidFieldType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.build().Build()
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestBuildReportsEveryProblem(t *testing.T) {
	b := NewBuilder("Post")
	b.Field("title", value.StringType)
	b.Index("missing")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPrimary)
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Contains(t, err.Error(), `model "Post"`)
}

func TestMustBuildPanicsWithoutPrimary(t *testing.T) {
	b := NewBuilder("Tag")
	b.Field("name", value.StringType)
	assert.Panics(t, func() { b.MustBuild() })
}

func TestRelations(t *testing.T) {
	b := NewBuilder("Post")
	b.Field("id", value.IntType).Primary()
	b.Field("authorId", value.IntType)
	b.Relation("author").Model("User").Fields("authorId").References("id")
	b.Relation("tags").Model("Tag").Through("PostTag").Many().Fields("postId").References("tagId")

	m, err := b.Build()
	require.NoError(t, err)
	require.Len(t, m.Relations(), 2)

	author, ok := m.Relation("author")
	require.True(t, ok)
	assert.False(t, author.Many)
	assert.False(t, author.HasJoinTable())

	tags, ok := m.Relation("tags")
	require.True(t, ok)
	assert.True(t, tags.Many)
	assert.True(t, tags.HasJoinTable())
}

func TestDefaultSpecs(t *testing.T) {
	var none Default
	assert.False(t, none.IsSet())

	lit := DefaultValue(value.Int(3))
	v, ok := lit.Literal()
	assert.True(t, ok)
	assert.Equal(t, value.Int(3), v)
	_, ok = lit.Pipeline()
	assert.False(t, ok)
}

func TestUniqueIndexFor(t *testing.T) {
	b := NewBuilder("Membership")
	b.Field("userId", value.IntType)
	b.Field("groupId", value.IntType)
	b.Field("nick", value.StringType).Unique()
	b.Field("note", value.StringType).Optional().Index()
	b.Primary("userId", "groupId")
	m, err := b.Build()
	require.NoError(t, err)

	idx, ok := m.UniqueIndexFor("groupId", "userId")
	require.True(t, ok)
	assert.Equal(t, PrimaryIndex, idx.Kind)

	idx, ok = m.UniqueIndexFor("nick")
	require.True(t, ok)
	assert.Equal(t, "nick", idx.Name)

	_, ok = m.UniqueIndexFor("note")
	assert.False(t, ok, "plain index is not unique")
	_, ok = m.UniqueIndexFor("userId")
	assert.False(t, ok, "prefix of a composite key is not unique")
}
