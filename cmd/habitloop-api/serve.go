package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/habitloop/backend/internal/config"
	"github.com/habitloop/backend/internal/handlers"
	"github.com/habitloop/backend/internal/logger"
	"github.com/habitloop/backend/internal/middleware"
	"github.com/habitloop/backend/internal/repository"
	"github.com/habitloop/backend/internal/service"
	"github.com/habitloop/backend/pkg/supabase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the HTTP API server and listen for requests.`,
	RunE:  runServe,
}

var (
	port string
)

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if port != "" {
		cfg.Server.Port = port
	}

	log := logger.NewSlogLogger(logger.Config{
		Level:  logger.ParseLevel(os.Getenv("HABITLOOP_LOG_LEVEL")),
		Format: os.Getenv("HABITLOOP_LOG_FORMAT"),
	})
	logger.SetDefault(log)

	log.Info("starting habitloop API server",
		logger.String("env", cfg.Server.Env),
		logger.String("supabase_url", cfg.Supabase.URL),
	)

	supabaseClient := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)

	// Repositories
	stateRepo := repository.NewStateRepository(supabaseClient)
	habitStatsRepo := repository.NewHabitStatsRepository(supabaseClient)
	learningStatsRepo := repository.NewLearningStatsRepository(supabaseClient)
	gamificationStatsRepo := repository.NewGamificationStatsRepository(supabaseClient)
	preferencesRepo := repository.NewPreferencesRepository(supabaseClient)

	// Services
	insightService := service.NewInsightService()
	thresholdService := service.NewThresholdService(cfg.Analytics, stateRepo, log)
	crossTabService := service.NewCrossTabService(
		cfg.Analytics,
		habitStatsRepo,
		learningStatsRepo,
		gamificationStatsRepo,
		preferencesRepo,
		stateRepo,
		insightService,
		log,
	)

	// Handlers
	patternsHandler := handlers.NewPatternsHandler(thresholdService)
	crossTabHandler := handlers.NewCrossTabHandler(crossTabService)
	insightsHandler := handlers.NewInsightsHandler(crossTabService, insightService)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"env":    cfg.Server.Env,
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(supabaseClient))
	{
		v1.POST("/patterns", patternsHandler.RecordPattern)
		v1.DELETE("/patterns", patternsHandler.ClearUserData)

		v1.GET("/thresholds", patternsHandler.GetUserThresholds)
		v1.GET("/thresholds/recommendations", patternsHandler.GetRecommendations)
		v1.GET("/thresholds/:patternType/:metric", patternsHandler.GetThreshold)

		v1.POST("/crosstab/sync", middleware.RateLimitSync(), crossTabHandler.Sync)
		v1.GET("/crosstab/cache/stats", crossTabHandler.CacheStats)
		v1.DELETE("/crosstab/cache", crossTabHandler.ClearCache)

		v1.GET("/insights", insightsHandler.GetInsights)
		v1.GET("/insights/metrics", insightsHandler.GetMetrics)
		v1.GET("/insights/recommendations", insightsHandler.GetRecommendations)
		v1.GET("/insights/performance", insightsHandler.GetPerformance)
	}

	log.Info("server listening", logger.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
