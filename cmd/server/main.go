package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quickvisa/intake-backend/internal/cache"
	"github.com/quickvisa/intake-backend/internal/config"
	"github.com/quickvisa/intake-backend/internal/database"
	"github.com/quickvisa/intake-backend/internal/handlers"
	"github.com/quickvisa/intake-backend/internal/metrics"
	"github.com/quickvisa/intake-backend/internal/middleware"
	"github.com/quickvisa/intake-backend/internal/services"
	"github.com/quickvisa/intake-backend/internal/storage"
	"github.com/quickvisa/intake-backend/pkg/jwt"
	"github.com/quickvisa/intake-backend/pkg/sms"
	"github.com/quickvisa/intake-backend/pkg/validator"
	"github.com/quickvisa/intake-backend/pkg/vision"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting visa intake backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	schemaVersion, err := database.MigrateUp(db)
	if err != nil {
		logger.Fatalf("Failed to apply migrations: %v", err)
	}
	logger.WithField("schema_version", schemaVersion).Info("Database ready")

	// Intake session cache: Redis when configured, otherwise in-process
	var sessionStore cache.SessionStore
	var sweeper services.SessionSweeper
	if cfg.Redis.URL != "" {
		redisStore, err := cache.NewRedisStore(context.Background(), cfg.Redis.URL)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		sessionStore = redisStore
		logger.Info("Intake sessions stored in Redis")
	} else {
		memoryStore := cache.NewMemoryStore()
		sessionStore = memoryStore
		sweeper = memoryStore
		logger.Warn("REDIS_URL not set, intake sessions are kept in memory")
	}
	defer sessionStore.Close()

	fileStore, err := storage.NewFilesystem(cfg.Storage.BasePath, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize document storage: %v", err)
	}

	var extractor vision.Extractor = vision.Disabled{}
	if cfg.Vision.APIURL != "" {
		visionClient, err := vision.NewClient(vision.Config{
			Provider:    cfg.Vision.Provider,
			BaseURL:     cfg.Vision.APIURL,
			APIKey:      cfg.Vision.APIKey,
			Model:       cfg.Vision.Model,
			Timeout:     cfg.Vision.Timeout,
			AgentConfig: cfg.Vision.AgentConfig,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize passport extraction: %v", err)
		}
		extractor = visionClient
		logger.WithFields(logrus.Fields{
			"provider": cfg.Vision.Provider,
			"model":    cfg.Vision.Model,
		}).Info("Passport extraction enabled")
	} else {
		logger.Warn("VISION_API_URL not set, uploads are stored without extraction")
	}

	var gateway sms.Gateway
	if cfg.SMS.Mode == "production" {
		gateway = sms.NewWhatsAppGateway(sms.WhatsAppConfig{
			APIURL:        cfg.SMS.APIURL,
			PhoneNumberID: cfg.SMS.PhoneNumberID,
			AccessToken:   cfg.SMS.AccessToken,
			TemplateName:  cfg.SMS.TemplateName,
			Language:      cfg.SMS.Language,
		})
	} else {
		gateway = sms.NewLogGateway(logger)
		logger.Info("Passcode gateway in development mode (codes are logged and returned)")
	}
	logger.WithField("gateway", gateway.GetName()).Info("Passcode gateway initialized")

	m := metrics.New()
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.SessionExpiry)
	phoneValidator := validator.NewPhoneValidator()
	passcodeService := services.NewPasscodeService(db, cfg.Passcode.Length, time.Duration(cfg.Passcode.ExpiryMinutes)*time.Minute, cfg.Security.BcryptCost)
	rateLimitService := services.NewRateLimitService(db, services.RateLimitConfigFrom(cfg.RateLimit))
	auditService := services.NewAuditService(db, cfg.Security.EnableAuditLog)

	draftRepository := database.NewDraftRepository(db)
	reconciliationService := services.NewReconciliationService(draftRepository, m, logger)
	documentService := services.NewDocumentService(fileStore, extractor, reconciliationService, m, logger, services.DocumentConfig{
		MaxUploadSize:  cfg.Storage.MaxUploadSizeBytes(),
		StorageTimeout: cfg.Upload.StorageTimeout,
		VisionTimeout:  cfg.Vision.Timeout,
	})
	applicationService := services.NewApplicationService(draftRepository, logger)
	intakeSessionService := services.NewIntakeSessionService(sessionStore, cfg.Redis.SessionTTL)

	cronService := services.NewCronService(passcodeService, rateLimitService, sweeper, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	identityHandler := handlers.NewIdentityHandler(jwtService, passcodeService, rateLimitService, phoneValidator, gateway, auditService, m, logger)
	documentHandler := handlers.NewDocumentHandler(documentService, intakeSessionService, phoneValidator, cfg.Storage.MaxUploadSizeBytes(), auditService, logger)
	applicationHandler := handlers.NewApplicationHandler(applicationService, auditService, logger)
	intakeSessionHandler := handlers.NewIntakeSessionHandler(intakeSessionService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db, sessionStore))
	router.GET("/metrics", gin.WrapH(m.Handler()))

	auth := middleware.AuthMiddleware(jwtService, logger)

	v1 := router.Group("/api/v1")
	{
		identity := v1.Group("/identity")
		{
			identity.POST("/send-code", identityHandler.SendCode)
			identity.POST("/verify-code", identityHandler.VerifyCode)
			identity.POST("/verify-session", identityHandler.VerifySession)
		}

		intakeSessions := v1.Group("/intake/sessions")
		intakeSessions.Use(auth)
		{
			intakeSessions.POST("", intakeSessionHandler.Create)
			intakeSessions.GET("/:id", intakeSessionHandler.Get)
		}

		v1.POST("/documents", auth, documentHandler.Upload)

		applications := v1.Group("/applications")
		applications.Use(auth)
		{
			applications.GET("", applicationHandler.List)
			applications.GET("/:id", applicationHandler.Get)
			applications.PATCH("/:id", applicationHandler.Update)
			applications.GET("/:id/progress", applicationHandler.Progress)
			applications.POST("/:id/confirm", applicationHandler.Confirm)
		}
	}

	// Uploads wait on extraction, so the write timeout covers the vision call
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Vision.Timeout + cfg.Upload.StorageTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// healthCheckHandler reports database and session cache reachability
func healthCheckHandler(db database.DB, sessions cache.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"cache":     "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		}

		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
			body["database_error"] = err.Error()
		}
		if err := sessions.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["cache"] = "unhealthy"
			body["cache_error"] = err.Error()
		}

		c.JSON(status, body)
	}
}
