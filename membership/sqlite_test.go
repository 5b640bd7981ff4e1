package membership

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *SQLiteResolver {
	t.Helper()
	r, err := NewSQLiteResolver(filepath.Join(t.TempDir(), "members.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestConversationMembersEmpty(t *testing.T) {
	r := newTestResolver(t)

	members, err := r.ConversationMembers(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestConversationMembersReturnsSeededRows(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	convo := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	other := uuid.New()

	require.NoError(t, r.AddMember(ctx, convo, alice))
	require.NoError(t, r.AddMember(ctx, convo, bob))
	require.NoError(t, r.AddMember(ctx, uuid.New(), other))

	members, err := r.ConversationMembers(ctx, convo, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, members)
}

func TestConversationMembersExcludesActor(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	convo := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	require.NoError(t, r.AddMember(ctx, convo, alice))
	require.NoError(t, r.AddMember(ctx, convo, bob))

	members, err := r.ConversationMembers(ctx, convo, &alice)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob}, members)
}

func TestAddMemberIsIdempotent(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	convo := uuid.New()
	alice := uuid.New()

	require.NoError(t, r.AddMember(ctx, convo, alice))
	require.NoError(t, r.AddMember(ctx, convo, alice))

	members, err := r.ConversationMembers(ctx, convo, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice}, members)
}

func TestResolverFuncAdapter(t *testing.T) {
	want := []uuid.UUID{uuid.New()}
	fn := ResolverFunc(func(context.Context, uuid.UUID, *uuid.UUID) ([]uuid.UUID, error) {
		return want, nil
	})

	got, err := fn.ConversationMembers(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
