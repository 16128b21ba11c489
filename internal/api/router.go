package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/cliptube/account-service/internal/api/handler"
	"github.com/cliptube/account-service/internal/api/middleware"
	"github.com/cliptube/account-service/internal/core/service"
	"github.com/cliptube/account-service/internal/infrastructure/config"
	mongodb "github.com/cliptube/account-service/internal/infrastructure/db/mongo"
	redisdb "github.com/cliptube/account-service/internal/infrastructure/db/redis"
	"github.com/cliptube/account-service/internal/infrastructure/media"
	"github.com/cliptube/account-service/internal/infrastructure/queue"
)

// NewRouter builds the Echo instance with all routes registered, plus the
// audit dispatcher the caller must Start before serving.
func NewRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, log zerolog.Logger) (*echo.Echo, *queue.Dispatcher, error) {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("accounts"))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowCredentials: true,
	}))

	// --- Dependencies ---
	tokens, err := service.NewTokenManager(service.TokenConfig{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
	})
	if err != nil {
		return nil, nil, err
	}

	userRepo := mongodb.NewUserRepository(db)
	auditRepo := mongodb.NewAuditRepository(db)
	throttle := redisdb.NewLoginThrottle(rdb)
	uploader := media.NewClient(media.Config{
		CloudName: cfg.Media.CloudName,
		APIKey:    cfg.Media.APIKey,
		APISecret: cfg.Media.APISecret,
	})

	auditWriter := service.NewAuditWriter(auditRepo, log)
	dispatcher := queue.NewDispatcher(cfg.AuditWorkers, auditWriter, log)

	userService := service.NewUserService(userRepo, tokens, uploader, throttle, dispatcher, auditRepo, log)
	userHandler := handler.NewUserHandler(userService, cfg.UploadTempDir)
	authGate := middleware.Auth(tokens, userRepo)

	// --- User routes ---
	users := e.Group("/api/v1/users")
	users.POST("/register", userHandler.Register)
	users.POST("/login", userHandler.Login)
	users.POST("/refresh-token", userHandler.Refresh)
	users.POST("/logout", userHandler.Logout, authGate)
	users.POST("/change-password", userHandler.ChangePassword, authGate)
	users.GET("/me", userHandler.Me, authGate)
	users.GET("/me/activity", userHandler.Activity, authGate)
	users.PATCH("/profile-image", userHandler.UpdateProfileImage, authGate)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?

	// --- Metrics ---
	e.GET("/metrics", echoprometheus.NewHandler())

	return e, dispatcher, nil
}
