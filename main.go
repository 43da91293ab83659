package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/config"
	"github.com/kendall-kelly/design-studio-api/controllers"
	"github.com/kendall-kelly/design-studio-api/middleware"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/services"
	"github.com/kendall-kelly/design-studio-api/store"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		jww.FATAL.Fatalf("Failed to load configuration: %v", err)
	}
	config.ConfigureLogging(cfg.LogLevel)
	jww.INFO.Println("Starting Design Studio API server...")

	// Connect to database
	if err := config.ConnectDatabase(cfg); err != nil {
		jww.FATAL.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := models.AutoMigrate(db); err != nil {
		jww.FATAL.Fatalf("Failed to migrate database: %v", err)
	}
	jww.INFO.Println("Database migration completed successfully")

	feed, err := openFeed(cfg)
	if err != nil {
		jww.FATAL.Fatalf("Failed to open change feed: %v", err)
	}
	defer feed.Close()

	var storage services.FileStorage
	if cfg.AWSS3Bucket != "" {
		s3Storage, err := services.NewS3FileStorage(context.Background(), cfg)
		if err != nil {
			jww.FATAL.Fatalf("Failed to initialise file storage: %v", err)
		}
		storage = s3Storage
	} else {
		jww.WARN.Println("[S3] AWS_S3_BUCKET not set, file uploads are disabled")
	}

	app := newApplication(cfg, db, feed, storage, services.NewAuth0Service(cfg), middleware.EnsureValidToken(cfg))
	router := setupRouter(app)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		jww.INFO.Printf("Server is running on http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			jww.FATAL.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	jww.INFO.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		jww.ERROR.Printf("Server shutdown failed: %v", err)
	}
}

// openFeed picks the Redis change feed when REDIS_URL is set and the
// in-process feed otherwise.
func openFeed(cfg *config.Config) (store.Feed, error) {
	if cfg.RedisURL == "" {
		jww.INFO.Println("[FEED] REDIS_URL not set, using in-process change feed")
		return store.NewMemoryFeed(), nil
	}
	return store.NewRedisFeed(cfg.RedisURL)
}

// application holds the wired handlers behind the router.
type application struct {
	cfg         *config.Config
	store       *store.GormStore
	auth        gin.HandlerFunc
	sendLimiter gin.HandlerFunc

	users    *controllers.UserController
	orders   *controllers.OrderController
	messages *controllers.MessageController
	uploads  *controllers.UploadController
	chat     *controllers.ChatController
	push     *controllers.PushController
}

// newApplication wires the store, chat core, services and controllers. A
// nil storage disables uploads.
func newApplication(cfg *config.Config, db *gorm.DB, feed store.Feed, storage services.FileStorage, userInfo services.UserInfoProvider, auth gin.HandlerFunc) *application {
	gormStore := store.New(db, feed, cfg.StoreTimeout)
	cache := chat.NewCache(cfg.CacheTTL)
	rooms := chat.NewRoomResolver(gormStore, cache)
	messages := chat.NewMessageService(gormStore, rooms, cache)

	notifier := services.NewPushNotifier(gormStore, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	orders := services.NewOrderService(gormStore)
	assignment := services.NewAssignmentService(gormStore, messages, notifier, cfg.DesignerCapacity)

	return &application{
		cfg:         cfg,
		store:       gormStore,
		auth:        auth,
		sendLimiter: middleware.RateLimit(middleware.NewPerMinuteLimiter(cfg.MessageRateLimit)),
		users:       controllers.NewUserController(gormStore, userInfo),
		orders:      controllers.NewOrderController(gormStore, gormStore, orders, assignment),
		messages:    controllers.NewMessageController(gormStore, orders, messages),
		uploads:     controllers.NewUploadController(gormStore, gormStore, orders, storage, cfg.MaxUploadSize),
		chat:        controllers.NewChatController(gormStore, orders, messages, feed, cache, notifier, cfg.CORSOrigins),
		push:        controllers.NewPushController(gormStore, gormStore, notifier.VAPIDPublicKey()),
	}
}

// setupRouter registers every route on a new gin engine.
func setupRouter(app *application) *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(corsConfig(app.cfg.CORSOrigins)))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public endpoints
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", app.databaseStatus)
		v1.GET("/push/vapid-key", app.push.GetVAPIDKey)

		protected := v1.Group("")
		protected.Use(app.auth)
		{
			protected.POST("/users", app.users.CreateUser)
			protected.GET("/users/me", app.users.GetMyProfile)
			protected.PUT("/users/me", app.users.UpdateMyProfile)

			protected.POST("/orders", app.orders.CreateOrder)
			protected.GET("/orders", app.orders.ListOrders)
			protected.GET("/orders/:id", app.orders.GetOrder)
			protected.GET("/orders/:id/stages", app.orders.ListOrderStages)
			protected.PATCH("/orders/:id/status", app.orders.UpdateOrderStatus)
			protected.POST("/orders/:id/assign", app.orders.AssignDesigner)

			protected.GET("/orders/:id/messages", app.messages.GetMessages)
			protected.POST("/orders/:id/messages", app.sendLimiter, app.messages.SendMessage)
			protected.POST("/orders/:id/messages/read", app.messages.MarkMessagesRead)
			protected.POST("/orders/:id/files", app.uploads.UploadOrderFile)
			protected.GET("/orders/:id/chat", app.chat.Connect)

			protected.POST("/push/subscriptions", app.push.Subscribe)
			protected.DELETE("/push/subscriptions", app.push.Unsubscribe)
		}
	}

	return router
}

func corsConfig(origins string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = allowed
	return cfg
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Design Studio API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func (app *application) databaseStatus(c *gin.Context) {
	if err := app.store.Ping(c.Request.Context()); err != nil {
		jww.ERROR.Printf("Database ping failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := app.store.DB().WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
