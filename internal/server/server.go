package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/wavegram/notify-engine/internal/config"
	"github.com/wavegram/notify-engine/internal/handler"
	"github.com/wavegram/notify-engine/internal/middleware"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/realtime"
	"github.com/wavegram/notify-engine/internal/repository"
	"github.com/wavegram/notify-engine/internal/service"
	"github.com/wavegram/notify-engine/pkg/mailer"
	"github.com/wavegram/notify-engine/pkg/push"
	"gorm.io/gorm"
)

type Server struct {
	engine *gin.Engine

	// Exposed so collaborators in the same process and the background
	// workers can be wired from main.
	Ingest     service.IngestService
	Dispatcher *service.DispatchService
	Deliveries repository.DeliveryRepository
	Notifs     repository.NotificationRepository
}

func NewServer(
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	registry *realtime.Registry,
	pushSender push.Sender,
	emailSender mailer.Sender,
	resolvers model.ResolverRegistry,
) *Server {
	userRepo := repository.NewUserRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)

	readSvc := service.NewReadService(notifRepo, redisClient)
	dispatchSvc := service.NewDispatchService(
		notifRepo, deliveryRepo, prefRepo, userRepo,
		registry, pushSender, emailSender, resolvers,
		service.DefaultRetryPolicy(),
	)
	ingestSvc := service.NewIngestService(userRepo, notifRepo, prefRepo, readSvc, dispatchSvc)
	notifSvc := service.NewNotificationService(notifRepo, readSvc, resolvers)
	prefSvc := service.NewPreferenceService(prefRepo)

	notificationHandler := handler.NewNotificationHandler(notifSvc, readSvc)
	preferenceHandler := handler.NewPreferenceHandler(prefSvc)
	wsHandler := handler.NewWSHandler(registry)
	eventHandler := handler.NewEventHandler(ingestSvc)

	router := gin.New()
	setupCORS(router, cfg.AllowedOrigins)
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		notifications := protected.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/grouped", notificationHandler.Grouped)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.PUT("/read-all", notificationHandler.MarkAllAsRead)
			notifications.GET("/ws", wsHandler.Handle)

			notifications.GET("/preferences", preferenceHandler.Get)
			notifications.PUT("/preferences", preferenceHandler.Update)
			notifications.POST("/preferences/add-fcm-token", preferenceHandler.AddFCMToken)
			notifications.POST("/preferences/remove-fcm-token", preferenceHandler.RemoveFCMToken)

			notifications.GET("/:id", notificationHandler.Get)
			notifications.PUT("/:id/read", notificationHandler.MarkAsRead)
			notifications.DELETE("/:id", notificationHandler.Delete)
		}

		if cfg.AppEnv == "development" {
			protected.POST("/notifications/test", eventHandler.EmitTest)
		}
	}

	return &Server{
		engine:     router,
		Ingest:     ingestSvc,
		Dispatcher: dispatchSvc,
		Deliveries: deliveryRepo,
		Notifs:     notifRepo,
	}
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
