package repository_test

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wavegram/notify-engine/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Notification{},
		&model.NotificationPreference{},
		&model.PushToken{},
		&model.DeliveryAttempt{},
	))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username: username,
		FullName: username + " Test",
		Email:    username + "@example.com",
		IsActive: true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func likeNotification(recipient, sender *model.User, target model.TargetRef) *model.Notification {
	n := &model.Notification{
		RecipientID:    recipient.ID,
		SenderID:       &sender.ID,
		Type:           model.TypeLike,
		TargetType:     target.Type,
		TargetID:       target.ID,
		GroupKey:       model.GroupKeyFor(recipient.ID, model.TypeLike, target),
		AggregateCount: 1,
		ActorIDs:       []string{sender.ID.String()},
		ActorNames:     []string{sender.DisplayName()},
	}
	n.Text = n.DisplayText()
	return n
}

func postTarget() model.TargetRef {
	return model.TargetRef{Type: model.TargetPost, ID: uuid.New()}
}
