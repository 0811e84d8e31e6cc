package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func seedNotification(t *testing.T, db *gorm.DB) *model.Notification {
	t.Helper()
	recipient := createUser(t, db, "recipient-"+uuid.NewString()[:8])
	alice := createUser(t, db, "actor-"+uuid.NewString()[:8])
	n := likeNotification(recipient, alice, postTarget())
	require.NoError(t, db.Create(n).Error)
	return n
}

func TestCreatePending_OneRowPerChannel(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewDeliveryRepository(db)
	ctx := context.Background()

	n := seedNotification(t, db)
	channels := []model.Channel{model.ChannelInApp, model.ChannelPush, model.ChannelEmail}

	attempts, err := repo.CreatePending(ctx, n.ID, channels)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, channels[i], a.Channel)
		assert.Equal(t, model.DeliveryPending, a.Status)
		assert.Zero(t, a.AttemptCount)
		// Fresh rows carry a future due time so a crash before the first
		// send leaves them recoverable.
		require.NotNil(t, a.NextRetryAt)
		assert.True(t, a.NextRetryAt.After(time.Now()))
	}

	attempts, err = repo.CreatePending(ctx, n.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestMarkSent_ClearsRetryState(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewDeliveryRepository(db)
	ctx := context.Background()

	n := seedNotification(t, db)
	attempts, err := repo.CreatePending(ctx, n.ID, []model.Channel{model.ChannelPush})
	require.NoError(t, err)

	next := time.Now().Add(time.Second)
	require.NoError(t, repo.RecordFailure(ctx, attempts[0].ID, "provider timeout", &next))
	require.NoError(t, repo.MarkSent(ctx, attempts[0].ID))

	got, err := repo.ByNotification(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.DeliverySent, got[0].Status)
	assert.Equal(t, 2, got[0].AttemptCount)
	assert.Empty(t, got[0].LastError)
	assert.Nil(t, got[0].NextRetryAt)
	assert.True(t, got[0].Terminal())
}

func TestMarkSkipped_IsTerminal(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewDeliveryRepository(db)
	ctx := context.Background()

	n := seedNotification(t, db)
	attempts, err := repo.CreatePending(ctx, n.ID, []model.Channel{model.ChannelInApp})
	require.NoError(t, err)

	require.NoError(t, repo.MarkSkipped(ctx, attempts[0].ID, "no live connections"))

	got, err := repo.ByNotification(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.DeliverySkipped, got[0].Status)
	assert.Equal(t, "no live connections", got[0].LastError)
	assert.Zero(t, got[0].AttemptCount)
	assert.True(t, got[0].Terminal())
}

func TestRecordFailure_SchedulesOrTerminates(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewDeliveryRepository(db)
	ctx := context.Background()

	n := seedNotification(t, db)
	attempts, err := repo.CreatePending(ctx, n.ID, []model.Channel{model.ChannelEmail})
	require.NoError(t, err)

	next := time.Now().Add(5 * time.Second)
	require.NoError(t, repo.RecordFailure(ctx, attempts[0].ID, "postmark 500", &next))

	got, err := repo.ByNotification(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.DeliveryPending, got[0].Status)
	assert.Equal(t, 1, got[0].AttemptCount)
	assert.Equal(t, "postmark 500", got[0].LastError)
	require.NotNil(t, got[0].NextRetryAt)
	assert.False(t, got[0].Terminal())

	require.NoError(t, repo.RecordFailure(ctx, attempts[0].ID, "postmark 500 again", nil))

	got, err = repo.ByNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, got[0].Status)
	assert.Equal(t, 2, got[0].AttemptCount)
	assert.Nil(t, got[0].NextRetryAt)
	assert.True(t, got[0].Terminal())
}

func TestDueAttempts_ClaimsOnce(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewDeliveryRepository(db)
	ctx := context.Background()

	n := seedNotification(t, db)
	attempts, err := repo.CreatePending(ctx, n.ID, []model.Channel{model.ChannelPush, model.ChannelEmail})
	require.NoError(t, err)

	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)
	require.NoError(t, repo.RecordFailure(ctx, attempts[0].ID, "transient", &past))
	require.NoError(t, repo.RecordFailure(ctx, attempts[1].ID, "transient", &future))

	now := time.Now()
	due, err := repo.DueAttempts(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, attempts[0].ID, due[0].ID)
	// The claim pushed the due time one lease ahead.
	require.NotNil(t, due[0].NextRetryAt)
	assert.True(t, due[0].NextRetryAt.After(now))

	// The lease holds, so a second scan at the same instant finds nothing.
	due, err = repo.DueAttempts(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueAttempts_FreshRowsComeDueAfterLease(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewDeliveryRepository(db)
	ctx := context.Background()

	n := seedNotification(t, db)
	attempts, err := repo.CreatePending(ctx, n.ID, []model.Channel{model.ChannelPush})
	require.NoError(t, err)

	// A just-created row is still in flight with its creator.
	due, err := repo.DueAttempts(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// If the sender crashed before touching the row, the worker picks it
	// up once the initial lease runs out.
	due, err = repo.DueAttempts(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, attempts[0].ID, due[0].ID)
}

func TestDueAttempts_ReclaimsAfterLeaseExpiry(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewDeliveryRepository(db)
	ctx := context.Background()

	n := seedNotification(t, db)
	attempts, err := repo.CreatePending(ctx, n.ID, []model.Channel{model.ChannelEmail})
	require.NoError(t, err)

	past := time.Now().Add(-time.Second)
	require.NoError(t, repo.RecordFailure(ctx, attempts[0].ID, "transient", &past))

	base := time.Now()
	due, err := repo.DueAttempts(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	due, err = repo.DueAttempts(ctx, base, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// A worker that claimed the row and died never marks it terminal, so
	// the row becomes claimable again once its lease expires.
	due, err = repo.DueAttempts(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, attempts[0].ID, due[0].ID)
}
