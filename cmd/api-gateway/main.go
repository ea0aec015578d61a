package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-risk-api/internal/handler"
	"github.com/noah-isme/sma-risk-api/internal/middleware"
	"github.com/noah-isme/sma-risk-api/internal/repository"
	"github.com/noah-isme/sma-risk-api/internal/service"
	"github.com/noah-isme/sma-risk-api/pkg/cache"
	"github.com/noah-isme/sma-risk-api/pkg/config"
	"github.com/noah-isme/sma-risk-api/pkg/database"
	"github.com/noah-isme/sma-risk-api/pkg/jobs"
	"github.com/noah-isme/sma-risk-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-risk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-risk-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Cache is an optimisation, not a dependency. Run without it.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Summary.CacheTTL, logr, true)
	}

	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	riskCaseRepo := repository.NewRiskCaseRepository(db)
	interventionRepo := repository.NewInterventionRepository(db)

	validate := validator.New()

	metricSvc := service.NewMetricService(attendanceRepo, assessmentRepo, invoiceRepo, metricsSvc, logr)
	classifier := service.NewClassifier(cfg.Risk)
	riskCaseSvc := service.NewRiskCaseService(riskCaseRepo, studentRepo, metricSvc, classifier, interventionRepo, cacheSvc, metricsSvc, validate, logr, service.RiskCaseServiceConfig{
		LookbackDays: cfg.Risk.LookbackDays,
		Workers:      cfg.Reconcile.Workers,
	})
	interventionSvc := service.NewInterventionService(interventionRepo, riskCaseRepo, validate, logr)
	summarySvc := service.NewSummaryService(riskCaseRepo, cacheSvc, metricsSvc, cfg.Summary.CacheTTL, logr)

	queue := jobs.NewQueue(func(ctx context.Context, job jobs.ReconcileJob) error {
		_, err := riskCaseSvc.Reconcile(ctx, job.SchoolID, job.AsOf)
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Reconcile.QueueWorkers,
		BufferSize: cfg.Reconcile.QueueBuffer,
		MaxRetries: cfg.Reconcile.QueueRetries,
		RetryDelay: cfg.Reconcile.RetryDelay,
		Logger:     logr,
	})
	queue.Start(context.Background())
	defer queue.Stop()

	riskCaseHandler := handler.NewRiskCaseHandler(riskCaseSvc, queue)
	interventionHandler := handler.NewInterventionHandler(interventionSvc)
	summaryHandler := handler.NewSummaryHandler(summarySvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	{
		risk := api.Group("/risk")
		{
			risk.POST("/reconcile", riskCaseHandler.Reconcile)
			risk.GET("/summary", summaryHandler.School)
			risk.GET("/system", summaryHandler.System)

			cases := risk.Group("/cases")
			{
				cases.GET("", riskCaseHandler.List)
				cases.POST("", riskCaseHandler.Open)
				cases.GET("/:id", riskCaseHandler.Get)
				cases.POST("/:id/resolve", riskCaseHandler.Resolve)
				cases.GET("/:id/interventions", interventionHandler.ListByCase)
				cases.POST("/:id/interventions", interventionHandler.Add)
			}
			risk.PATCH("/interventions/:interventionId/status", interventionHandler.UpdateStatus)
		}
		api.GET("/students/:id/risk-preview", riskCaseHandler.Preview)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
