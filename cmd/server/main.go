package main

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/wavegram/notify-engine/internal/config"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/realtime"
	"github.com/wavegram/notify-engine/internal/server"
	"github.com/wavegram/notify-engine/internal/service"
	"github.com/wavegram/notify-engine/pkg/database"
	"github.com/wavegram/notify-engine/pkg/mailer"
	"github.com/wavegram/notify-engine/pkg/push"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db := database.Connect()
	if err := migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if cfg.AppEnv == "development" {
		if err := seedDevUsers(db); err != nil {
			log.Fatalf("failed to seed dev users: %v", err)
		}
	}

	ctx := context.Background()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("⚠️ Redis unreachable, unread counts fall back to the database: %v", err)
		}
	} else {
		log.Println("REDIS_URL not set, unread count caching disabled")
	}

	var pushSender push.Sender
	if cfg.FirebaseCredentialsPath != "" {
		pushSender, err = push.NewFCMSender(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			log.Fatalf("failed to initialize FCM: %v", err)
		}
	} else {
		log.Println("FIREBASE_CREDENTIALS_PATH not set, push delivery disabled")
	}

	var emailSender mailer.Sender
	if cfg.PostmarkServerToken != "" {
		emailSender, err = mailer.NewPostmarkSender(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.EmailFrom)
		if err != nil {
			log.Fatalf("failed to initialize mailer: %v", err)
		}
	} else {
		log.Println("POSTMARK_SERVER_TOKEN not set, email delivery disabled")
	}

	registry := realtime.NewRegistry()
	resolvers := model.ResolverRegistry{}

	srv := server.NewServer(cfg, db, redisClient, registry, pushSender, emailSender, resolvers)

	retryWorker := service.NewRetryWorker(srv.Deliveries, srv.Dispatcher, cfg.RetryPollInterval)
	retryWorker.Start(ctx)

	cleanupWorker := service.NewCleanupWorker(srv.Notifs, cfg.CleanupInterval, cfg.CleanupMaxAge)
	cleanupWorker.Start(ctx)

	log.Printf("listening on :%s", cfg.Port)
	if err := srv.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Notification{},
		&model.NotificationPreference{},
		&model.PushToken{},
		&model.DeliveryAttempt{},
	)
}

// seedDevUsers inserts two users so the test emit endpoint has someone to
// notify on a fresh database.
func seedDevUsers(db *gorm.DB) error {
	seeds := []model.User{
		{Username: "alice", FullName: "Alice Example", Email: "alice@wavegram.dev", IsActive: true},
		{Username: "bob", FullName: "Bob Example", Email: "bob@wavegram.dev", IsActive: true},
	}

	for _, u := range seeds {
		var count int64
		if err := db.Model(&model.User{}).
			Where("email = ?", u.Email).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.PasswordHash = string(hashed)

		if err := db.Create(&u).Error; err != nil {
			return err
		}
		log.Printf("✅ Seeded dev user %s (%s)", u.Username, u.Email)
	}

	return nil
}
