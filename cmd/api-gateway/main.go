package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/student-management-api/api/swagger"
	"github.com/noah-isme/student-management-api/internal/handler"
	"github.com/noah-isme/student-management-api/internal/middleware"
	"github.com/noah-isme/student-management-api/internal/models"
	"github.com/noah-isme/student-management-api/internal/repository"
	"github.com/noah-isme/student-management-api/internal/service"
	"github.com/noah-isme/student-management-api/pkg/config"
	"github.com/noah-isme/student-management-api/pkg/database"
	"github.com/noah-isme/student-management-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-management-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-management-api/pkg/middleware/requestid"
)

const shutdownTimeout = 10 * time.Second

// @title Student Management API
// @version 1.0.0
// @description Students, their course enrollments and roster exports
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.EnsureSchema(context.Background(), db); err != nil {
			logr.Fatal("failed to apply schema", zap.Error(err))
		}
	}

	var metricsSvc *service.MetricsService
	if cfg.Features.Metrics {
		metricsSvc = service.NewMetricsService()
	}

	validate := validator.New()
	studentRepo := repository.NewStudentRepository(db, queryObserver(metricsSvc))
	studentSvc := service.NewStudentService(studentRepo, validate, logr, mutationRecorder(metricsSvc))
	exportSvc := service.NewExportService(studentSvc, logr, nil, nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.Expiration,
	})

	studentHandler := handler.NewStudentHandler(studentSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(nil, db)
	if metricsSvc != nil {
		metricsHandler = handler.NewMetricsHandler(metricsSvc, db)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.DefaultOptions(cfg.CORS.AllowedOrigins)))
	if metricsSvc != nil {
		r.Use(middleware.Metrics(metricsSvc))
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.DocsEnabled() {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Timeout(cfg.Database.QueryTimeout))

	guard := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if !cfg.Features.Auth {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleStaff), h}
	}
	if !cfg.Features.Auth {
		logr.Warn("write routes are not authenticated; set ENABLE_AUTH to protect them")
	}

	students := api.Group("/students")
	students.GET("", studentHandler.List)
	students.GET("/export", studentHandler.Export)
	students.GET("/:id", studentHandler.Get)
	students.GET("/:id/form", studentHandler.GetForm)
	students.POST("", guard(studentHandler.Create)...)
	students.PUT("/:id", guard(studentHandler.Update)...)
	students.DELETE("/:id", guard(studentHandler.Delete)...)

	api.GET("/courses", studentHandler.ListCourses)
	api.GET("/metrics/summary", metricsHandler.Summary)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// queryObserver avoids handing a typed nil *MetricsService to the repository.
func queryObserver(m *service.MetricsService) interface {
	ObserveDBQuery(label string, duration time.Duration)
} {
	if m == nil {
		return nil
	}
	return m
}

func mutationRecorder(m *service.MetricsService) interface {
	RecordStudentMutation(operation, outcome string)
} {
	if m == nil {
		return nil
	}
	return m
}
