package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/repository"
)

func TestGetOrCreate_SeedsDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPreferenceRepository(db)
	ctx := context.Background()

	user := createUser(t, db, "prefuser")

	pref, err := repo.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, pref.LikeInApp)
	assert.True(t, pref.LikePush)
	assert.False(t, pref.LikeEmail)
	assert.True(t, pref.CommentEmail)
	assert.True(t, pref.MentionEmail)
	assert.False(t, pref.MessageEmail)

	again, err := repo.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, pref.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&model.NotificationPreference{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdate_PersistsMatrix(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPreferenceRepository(db)
	ctx := context.Background()

	user := createUser(t, db, "prefuser")

	pref, err := repo.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)

	pref.LikePush = false
	pref.MessageEmail = true
	require.NoError(t, repo.Update(ctx, pref))

	got, err := repo.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.LikePush)
	assert.True(t, got.MessageEmail)
}

func TestAddToken_Deduplicates(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPreferenceRepository(db)
	ctx := context.Background()

	user := createUser(t, db, "tokenuser")

	require.NoError(t, repo.AddToken(ctx, user.ID, "device-token-1"))
	require.NoError(t, repo.AddToken(ctx, user.ID, "device-token-1"))
	require.NoError(t, repo.AddToken(ctx, user.ID, "device-token-2"))

	tokens, err := repo.TokensByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	values := []string{tokens[0].Token, tokens[1].Token}
	assert.ElementsMatch(t, []string{"device-token-1", "device-token-2"}, values)
}

func TestRemoveToken_Idempotent(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPreferenceRepository(db)
	ctx := context.Background()

	user := createUser(t, db, "tokenuser")

	require.NoError(t, repo.AddToken(ctx, user.ID, "device-token-1"))
	require.NoError(t, repo.RemoveToken(ctx, user.ID, "device-token-1"))
	require.NoError(t, repo.RemoveToken(ctx, user.ID, "device-token-1"))
	require.NoError(t, repo.RemoveToken(ctx, user.ID, "never-registered"))

	tokens, err := repo.TokensByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestTokens_IsolatedPerUser(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPreferenceRepository(db)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	require.NoError(t, repo.AddToken(ctx, alice.ID, "shared-token"))
	require.NoError(t, repo.AddToken(ctx, bob.ID, "shared-token"))
	require.NoError(t, repo.RemoveToken(ctx, alice.ID, "shared-token"))

	bobTokens, err := repo.TokensByUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, bobTokens, 1)
}
