package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/realtime"
	"github.com/wavegram/notify-engine/internal/repository"
	"github.com/wavegram/notify-engine/internal/service"
	"github.com/wavegram/notify-engine/pkg/mailer"
	"github.com/wavegram/notify-engine/pkg/push"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakePush records sends and fails per token or globally.
type fakePush struct {
	mu     sync.Mutex
	sent   []string
	perTok map[string]error
	err    error
}

func (f *fakePush) Send(ctx context.Context, token string, p push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.perTok[token]; ok {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, token)
	return nil
}

func (f *fakePush) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) sentMessages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Message(nil), f.sent...)
}

type env struct {
	db         *gorm.DB
	users      repository.UserRepository
	notifs     repository.NotificationRepository
	prefs      repository.PreferenceRepository
	deliveries repository.DeliveryRepository
	registry   *realtime.Registry
	push       *fakePush
	mail       *fakeMailer
	reads      service.ReadService
	dispatch   *service.DispatchService
	ingest     service.IngestService
}

func newEnv(t *testing.T) *env {
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

	e := &env{
		db:       db,
		registry: realtime.NewRegistry(),
		push:     &fakePush{perTok: map[string]error{}},
		mail:     &fakeMailer{},
	}
	e.users = repository.NewUserRepository(db)
	e.notifs = repository.NewNotificationRepository(db)
	e.prefs = repository.NewPreferenceRepository(db)
	e.deliveries = repository.NewDeliveryRepository(db)
	e.reads = service.NewReadService(e.notifs, nil)
	e.dispatch = service.NewDispatchService(
		e.notifs, e.deliveries, e.prefs, e.users,
		e.registry, e.push, e.mail, model.ResolverRegistry{},
		service.DefaultRetryPolicy(),
	)
	// Dispatch is driven synchronously from the tests, not from Emit.
	e.ingest = service.NewIngestService(e.users, e.notifs, e.prefs, e.reads, nil)
	return e
}

func (e *env) createUser(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username: username,
		FullName: username + " Test",
		Email:    username + "@example.com",
		IsActive: true,
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *env) emit(t *testing.T, recipient *model.User, sender *model.User, typ model.NotificationType, target model.TargetRef) uuid.UUID {
	t.Helper()
	input := service.EmitInput{
		RecipientID: recipient.ID,
		Type:        typ,
		Target:      target,
	}
	if sender != nil {
		input.SenderID = &sender.ID
	}
	id, err := e.ingest.Emit(context.Background(), input)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	return id
}

func (e *env) attemptFor(t *testing.T, notificationID uuid.UUID, ch model.Channel) *model.DeliveryAttempt {
	t.Helper()
	attempts, err := e.deliveries.ByNotification(context.Background(), notificationID)
	require.NoError(t, err)
	for i := range attempts {
		if attempts[i].Channel == ch {
			return &attempts[i]
		}
	}
	t.Fatalf("no %s attempt recorded for notification %s", ch, notificationID)
	return nil
}

func postTarget() model.TargetRef {
	return model.TargetRef{Type: model.TargetPost, ID: uuid.New()}
}
