package app

import (
	"log"
	"time"

	"storyloom/internal/config"
	"storyloom/internal/content"
	"storyloom/internal/engine"
	"storyloom/internal/feed"
	"storyloom/internal/middleware"
	"storyloom/internal/model"
	"storyloom/internal/repository"
	"storyloom/internal/service"
	"storyloom/internal/thread"
	"storyloom/internal/util"
	"storyloom/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewRouter(cfg *config.Config) *gin.Engine {
	// Set Gin mode
	if cfg.ServerPort == "5000" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registerValidators()

	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware(cfg.ClientURL))

	// Rate limiting middleware (if enabled)
	if cfg.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		r.Use(rateLimiter.Middleware())
		log.Printf("Rate limiting enabled: %d req/sec, burst: %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		panic("Failed to connect to database: " + err.Error())
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&model.User{},
		&model.Work{},
		&model.Chapter{},
		&model.Comment{},
		&model.Reaction{},
		&model.Notification{},
	); err != nil {
		panic("Failed to migrate database: " + err.Error())
	}

	// Lift legacy body-prefix markers into the explicit comment columns
	if err := content.MigrateLegacy(db); err != nil {
		log.Printf("Warning: legacy comment migration failed: %v", err)
	}

	// Initialize Redis with retry logic
	redisClient := initRedisWithRetry(cfg)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	workRepo := repository.NewWorkRepository(db, redisClient)
	chapterRepo := repository.NewChapterRepository(db, redisClient)
	commentRepo := repository.NewCommentRepository(db, redisClient)
	reactionRepo := repository.NewReactionRepository(db, redisClient)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize RabbitMQ with retry logic
	rabbitMQ := initRabbitMQWithRetry(cfg)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Println("WebSocket hub started")

	// Initialize notification service and worker
	notificationService := service.NewNotificationService(notificationRepo, rabbitMQ)
	notificationService.SetWSHub(wsHub)

	if rabbitMQ != nil {
		notificationWorker := service.NewNotificationWorker(rabbitMQ, wsHub)
		if err := notificationWorker.Start(); err != nil {
			log.Printf("Warning: Failed to start notification worker: %v", err)
		} else {
			log.Println("Notification worker started successfully")
		}
	}

	// Initialize Cloudinary client
	var cloudinaryClient *util.CloudinaryClient
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		var err error
		cloudinaryClient, err = util.NewCloudinaryClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v. Image uploads will be disabled.", err)
		} else {
			log.Println("Cloudinary initialized successfully")
		}
	} else {
		log.Println("Cloudinary credentials not configured. Image uploads will be disabled.")
	}

	// Initialize the comment engine over its change feed
	bus := feed.NewBus()
	commentEngine := engine.New(commentRepo, reactionRepo, chapterRepo, bus)
	commentEngine.SetNotifier(service.NewCommentNotifier(notificationService, chapterRepo))

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	workService := service.NewWorkService(workRepo, userRepo)
	chapterService := service.NewChapterService(chapterRepo, workRepo, notificationService)

	// Initialize handlers
	authHandler := NewAuthHandler(authService, cfg.JWTSecret)
	workHandler := NewWorkHandler(workService, cloudinaryClient)
	chapterHandler := NewChapterHandler(chapterService, authService)
	threadHandler := NewThreadHandler(commentEngine, cloudinaryClient)
	notificationHandler := NewNotificationHandler(notificationService)

	// API routes
	api := r.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)

			// Protected routes
			auth.GET("/me", authHandler.AuthMiddleware(), authHandler.GetMe)
		}

		// Work routes
		works := api.Group("/works")
		{
			// Public routes
			works.GET("", workHandler.ListWorks)
			works.GET("/author/:userID", workHandler.ListByAuthor)
			works.GET("/:id", workHandler.GetWork)
			works.GET("/:id/chapters", authHandler.OptionalAuthMiddleware(), chapterHandler.ListChapters)

			// Protected routes
			works.Use(authHandler.AuthMiddleware())
			{
				works.POST("", workHandler.CreateWork)
				works.PUT("/:id", workHandler.UpdateWork)
				works.POST("/:id/cover", workHandler.UploadCover)
				works.DELETE("/:id", workHandler.DeleteWork)
				works.POST("/:id/chapters", chapterHandler.CreateChapter)
				works.POST("/:id/chapters/renumber", chapterHandler.Renumber)
			}
		}

		// Chapter routes
		chapters := api.Group("/chapters")
		{
			// Public routes
			chapters.GET("/:id", authHandler.OptionalAuthMiddleware(), chapterHandler.GetChapter)

			// Protected routes
			chapters.Use(authHandler.AuthMiddleware())
			{
				chapters.PUT("/:id", chapterHandler.UpdateChapter)
				chapters.DELETE("/:id", chapterHandler.DeleteChapter)
				chapters.POST("/:id/submit", chapterHandler.Submit)
				chapters.POST("/:id/approve", chapterHandler.Approve)
				chapters.POST("/:id/reject", chapterHandler.Reject)
			}
		}

		// Thread routes: comments may be read and posted by guests
		threads := api.Group("/threads")
		threads.Use(authHandler.OptionalAuthMiddleware())
		{
			threads.GET("/:id", threadHandler.GetPage)
			threads.POST("/:id/comments", threadHandler.PostComment)
			threads.POST("/:id/reactions", threadHandler.React)
		}

		// Comment routes
		comments := api.Group("/comments")
		comments.Use(authHandler.OptionalAuthMiddleware())
		{
			comments.PUT("/:id", threadHandler.EditComment)
			comments.DELETE("/:id", threadHandler.DeleteComment)
			comments.POST("/:id/pin", threadHandler.TogglePin)
		}

		// Sticker asset upload
		api.POST("/stickers", authHandler.AuthMiddleware(), threadHandler.UploadSticker)

		// Notification routes
		notifications := api.Group("/notifications")
		{
			// Protected routes
			notifications.Use(authHandler.AuthMiddleware())
			{
				notifications.GET("", notificationHandler.GetNotifications)
				notifications.GET("/unread/count", notificationHandler.GetUnreadCount)
				notifications.PUT("/:id/read", notificationHandler.MarkAsRead)
				notifications.PUT("/read-all", notificationHandler.MarkAllAsRead)
				notifications.DELETE("/:id", notificationHandler.DeleteNotification)
			}
		}
	}

	// WebSocket routes
	r.GET("/ws", func(c *gin.Context) {
		websocket.ServeWS(wsHub, cfg.JWTSecret)(c.Writer, c.Request)
	})
	serveThread := websocket.ServeThreadWS(commentEngine, cfg.JWTSecret)
	r.GET("/ws/threads/:id", func(c *gin.Context) {
		serveThread(c.Writer, c.Request, c.Param("id"))
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

// registerValidators adds the domain binding validators
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("reactionkind", func(fl validator.FieldLevel) bool {
			return model.IsValidReactionKind(fl.Field().String())
		})
		v.RegisterValidation("sortmode", func(fl validator.FieldLevel) bool {
			return thread.IsValidSortMode(thread.SortMode(fl.Field().String()))
		})
	}
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = "host=" + cfg.PostgresHost +
			" port=" + cfg.PostgresPort +
			" user=" + cfg.PostgresUser +
			" password=" + cfg.PostgresPassword +
			" dbname=" + cfg.PostgresDB +
			" sslmode=" + cfg.PostgresSSLMode
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// initRabbitMQWithRetry attempts to connect to RabbitMQ with exponential backoff retry
func initRabbitMQWithRetry(cfg *config.Config) *util.RabbitMQClient {
	maxRetries := 10
	initialDelay := 2 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		rabbitMQ, err := util.NewRabbitMQClient(cfg)
		if err == nil {
			log.Printf("RabbitMQ connected successfully on attempt %d", attempt)
			return rabbitMQ
		}

		if attempt < maxRetries {
			delay := initialDelay * time.Duration(1<<uint(attempt-1))
			if delay > maxDelay {
				delay = maxDelay
			}

			log.Printf("Failed to connect to RabbitMQ (attempt %d/%d): %v. Retrying in %v...", attempt, maxRetries, err, delay)
			time.Sleep(delay)
		} else {
			log.Printf("Warning: Failed to connect to RabbitMQ after %d attempts: %v. Notifications fall back to direct WebSocket push.", maxRetries, err)
		}
	}

	return nil
}

// initRedisWithRetry attempts to connect to Redis with exponential backoff retry
func initRedisWithRetry(cfg *config.Config) *util.RedisClient {
	maxRetries := 10
	initialDelay := 2 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		redisClient, err := util.NewRedisClient(cfg)
		if err == nil {
			log.Printf("Redis connected successfully on attempt %d", attempt)
			return redisClient
		}

		if attempt < maxRetries {
			delay := initialDelay * time.Duration(1<<uint(attempt-1))
			if delay > maxDelay {
				delay = maxDelay
			}

			log.Printf("Failed to connect to Redis (attempt %d/%d): %v. Retrying in %v...", attempt, maxRetries, err, delay)
			time.Sleep(delay)
		} else {
			log.Printf("Warning: Failed to connect to Redis after %d attempts: %v. Caching will be disabled.", maxRetries, err)
		}
	}

	return nil
}

func corsMiddleware(clientURL string) gin.HandlerFunc {
	// Allowed origins (whitelist)
	allowedOrigins := []string{
		clientURL, // Default from config
		"http://localhost:3000",
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", clientURL)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
