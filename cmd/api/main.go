package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"matatu-commuter-api/config"
	"matatu-commuter-api/handlers"
	"matatu-commuter-api/logging"
	"matatu-commuter-api/middleware"
	"matatu-commuter-api/models"
	"matatu-commuter-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Logging.Level)

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(
		&models.User{},
		&models.Stage{},
		&models.Route{},
		&models.Sacco{},
		&models.Alert{},
		&models.Rating{},
		&models.LostItem{},
		&models.Post{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, running without cache and live updates", "error", err)
	}
	defer cache.Close()

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	authService := services.NewAuthService(cfg.JWT)
	alertService := services.NewAlertService(db)

	sweeper := services.NewSweeper(alertService, cfg.Sweep.Interval)
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))
	router.Static("/uploads", cfg.Upload.Dir)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "UP",
			"message": "Matatu Commuter API is running",
		})
	})

	auth := middleware.RequireAuth(authService)
	api := router.Group("/api")

	handlers.NewAuthHandler(db, authService).RegisterRoutes(api, auth)
	handlers.NewUsersHandler(db, authService).RegisterRoutes(api, auth)
	handlers.NewTransitHandler(db, cache).RegisterRoutes(api)
	handlers.NewAlertsHandler(alertService, cache, cfg.Upload.MaxSizeBytes).RegisterRoutes(api, auth)
	handlers.NewRatingsHandler(db).RegisterRoutes(api, auth)
	handlers.NewLostItemsHandler(db, cfg.Upload.Dir, cfg.Upload.MaxSizeBytes).RegisterRoutes(api, auth)
	handlers.NewPostsHandler(db).RegisterRoutes(api, auth)

	router.GET("/ws/alerts", handlers.AlertsWebSocket(cache, authService))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("starting server", "addr", addr)
	if err := router.Run(addr); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}
