package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/laviou/backend/internal/api"
	"github.com/laviou/backend/internal/auth"
	"github.com/laviou/backend/internal/concierge"
	"github.com/laviou/backend/internal/config"
	"github.com/laviou/backend/internal/db"
	"github.com/laviou/backend/internal/email"
	"github.com/laviou/backend/internal/health"
	"github.com/laviou/backend/internal/items"
	"github.com/laviou/backend/internal/logger"
	"github.com/laviou/backend/internal/middleware"
	"github.com/laviou/backend/internal/ratelimit"
	"github.com/laviou/backend/internal/sharing"
	"github.com/laviou/backend/internal/storage"
)

const version = "1.0.0"

func main() {
	// A missing .env is fine; the environment itself may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error(context.Background(), "invalid configuration", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "server")
	logger.SetDefault(log)
	ctx := context.Background()

	database, err := db.New(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	if err != nil {
		log.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Error(ctx, "failed to run migrations", err)
		os.Exit(1)
	}

	// Redis and object storage are optional at boot: rate limiting and image
	// features switch off when they are unreachable, everything else serves.
	var limiter *ratelimit.Limiter
	if l, err := ratelimit.New(cfg.RedisAddr); err != nil {
		log.Warn(ctx, "redis unavailable, rate limiting disabled", map[string]interface{}{"error": err.Error()})
	} else {
		limiter = l
		defer limiter.Close()
	}

	var imageStore *storage.ImageStore
	if s, err := storage.New(&storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}); err != nil {
		log.Warn(ctx, "object storage unavailable, image features disabled", map[string]interface{}{"error": err.Error()})
	} else {
		imageStore = s
	}

	notifier := email.NewSendGrid(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.IsProduction())

	userRepo := db.NewUserRepository(database)
	resetRepo := db.NewResetRepository(database)
	itemRepo := db.NewItemRepository(database)
	sharingRepo := db.NewSharingRepository(database)
	conciergeRepo := db.NewConciergeRepository(database)

	// auth.Limiter is an interface; a typed nil pointer would not compare
	// equal to nil inside the service.
	var authLimiter auth.Limiter
	if limiter != nil {
		authLimiter = limiter
	}
	authService := auth.NewService(userRepo, resetRepo, notifier, authLimiter, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)

	var itemImages items.ImageStore
	if imageStore != nil {
		itemImages = imageStore
	}
	itemService := items.NewService(itemRepo, itemImages)
	sharingService := sharing.NewService(sharingRepo, itemRepo)
	conciergeService := concierge.NewService(conciergeRepo, itemRepo)

	checkerCfg := &health.CheckerConfig{
		DB:      database.DB,
		Version: version,
	}
	if limiter != nil {
		checkerCfg.Redis = limiter.Client()
	}
	if imageStore != nil {
		checkerCfg.StorageCheck = imageStore.Check
	}
	checker := health.NewChecker(checkerCfg)

	router := api.NewRouter(&api.Config{
		AuthService:       authService,
		AuthHandlers:      auth.NewHandlers(authService),
		ItemHandlers:      items.NewHandlers(itemService),
		SharingHandlers:   sharing.NewHandlers(sharingService),
		ConciergeHandlers: concierge.NewHandlers(conciergeService),
		HealthHandlers:    health.NewHandler(checker),
	})

	handler := middleware.Chain(router,
		middleware.RequestID,
		middleware.Logging(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.CORSOrigins),
	)

	log.Info(ctx, "starting server", map[string]interface{}{
		"addr": cfg.ServerAddr,
		"env":  cfg.Env,
	})
	if err := http.ListenAndServe(cfg.ServerAddr, handler); err != nil {
		log.Error(ctx, "server failed", err)
		os.Exit(1)
	}
}
