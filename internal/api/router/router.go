package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Panchu11/obscura/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the optional parts of the router
type Options struct {
	// MetricsPath serves Prometheus metrics when not empty
	MetricsPath string
	// RateLimiter throttles /api/v1 per caller when not nil
	RateLimiter *RateLimiter
	// HealthCheck reports backing store health on /health when not nil
	HealthCheck func(ctx context.Context) error
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if opts.HealthCheck != nil {
			if err := opts.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed", slog.Any("error", err))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "obscura-api-service",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "obscura-api-service",
		})
	})
	if opts.MetricsPath != "" {
		r.GET(opts.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	jobHandler := handler.NewJobHandler(deps)
	workerHandler := handler.NewWorkerHandler(deps)
	ledgerHandler := handler.NewLedgerHandler(deps)

	v1 := r.Group("/api/v1")
	v1.Use(CallerMiddleware())
	if opts.RateLimiter != nil {
		v1.Use(RateLimitMiddleware(opts.RateLimiter))
	}
	{
		v1.GET("/kinds", jobHandler.ListKinds)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.GET("/:job_id/events", jobHandler.JobEvents)
			jobs.POST("/:job_id/claim", jobHandler.ClaimJob)
			jobs.POST("/:job_id/result", jobHandler.SubmitResult)
			jobs.POST("/:job_id/verify", jobHandler.VerifyJob)
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
			jobs.POST("/:job_id/decrypted", jobHandler.MarkDecrypted)
		}

		workers := v1.Group("/workers")
		{
			workers.POST("", workerHandler.RegisterWorker)
			workers.POST("/deregister", workerHandler.DeregisterWorker)
			workers.GET("", workerHandler.ListWorkers)
			workers.GET("/:address", workerHandler.GetWorker)
			workers.GET("/:address/jobs", jobHandler.ListWorkerJobs)
		}

		v1.GET("/clients/:address/jobs", jobHandler.ListClientJobs)
		v1.GET("/accounts/:address/balance", ledgerHandler.AccountBalance)
		v1.GET("/events", ledgerHandler.ListEvents)

		platform := v1.Group("/platform")
		{
			platform.GET("", ledgerHandler.PlatformBalances)
			platform.POST("/withdraw", ledgerHandler.WithdrawPlatformFees)
		}
	}

	return r
}
