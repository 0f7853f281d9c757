package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"walkforward-backtest/internal/api/handlers"
	"walkforward-backtest/internal/api/middleware"
	"walkforward-backtest/internal/config"
	"walkforward-backtest/internal/jobs"
	"walkforward-backtest/internal/service"
	"walkforward-backtest/internal/telemetry"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Config   *config.Config
	Service  *service.Service
	Runner   *jobs.Runner
	Recorder *telemetry.Recorder
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()

	// Apply middleware
	router.Use(middleware.ErrorHandler(d.Log))
	router.Use(middleware.CORS(d.Config.Server.CORSOrigins))
	router.Use(middleware.Logger(d.Log, d.Recorder))

	backtestHandler := handlers.NewBacktestHandler(d.Config, d.Service, d.Runner, d.Log)
	strategyHandler := handlers.NewStrategyHandler()
	catalogHandler := handlers.NewCatalogHandler(d.Service.CatalogPath, d.Service.ArtifactDir, d.Service.ModelDir)
	rankHandler := handlers.NewRankHandler(d.Service)
	limit := middleware.NewRateLimiter(d.Config.Server.RateLimit, d.Config.Server.RateBurst).Middleware()

	// Health check
	router.GET("/health", func(c *gin.Context) {
		health := gin.H{"status": "ok", "store": d.Config.Store.Backend}
		if b, ok := d.Runner.Store().(*jobs.BreakerStore); ok {
			health["store_breaker"] = b.State().String()
		}
		c.JSON(http.StatusOK, health)
	})
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// API routes
	api := router.Group("/api/v1")
	{
		api.POST("/backtest/run", limit, backtestHandler.RunBacktest)
		api.GET("/backtest/status", backtestHandler.GetBacktestStatus)
		api.POST("/backtest/:id/cancel", backtestHandler.CancelBacktest)

		api.POST("/train/start", limit, backtestHandler.StartTraining)
		api.GET("/train/status", backtestHandler.GetTrainStatus)

		api.GET("/jobs", backtestHandler.ListJobs)
		api.GET("/models", catalogHandler.ListModels)
		api.GET("/models/:name", catalogHandler.GetModel)
		api.GET("/artifacts", catalogHandler.ListArtifacts)
		api.GET("/artifacts/:id", catalogHandler.GetArtifact)
		api.GET("/datasets", catalogHandler.ListDatasets)
		api.GET("/strategies", strategyHandler.ListStrategies)
		api.GET("/rank", rankHandler.RankSymbols)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
