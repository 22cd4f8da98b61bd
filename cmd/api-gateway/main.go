package main

import (
	"context"
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

	_ "github.com/medikita/clinic-booking-api/api/swagger"
	"github.com/medikita/clinic-booking-api/internal/handler"
	"github.com/medikita/clinic-booking-api/internal/middleware"
	"github.com/medikita/clinic-booking-api/internal/models"
	"github.com/medikita/clinic-booking-api/internal/repository"
	"github.com/medikita/clinic-booking-api/internal/service"
	"github.com/medikita/clinic-booking-api/pkg/cache"
	"github.com/medikita/clinic-booking-api/pkg/config"
	"github.com/medikita/clinic-booking-api/pkg/database"
	"github.com/medikita/clinic-booking-api/pkg/logger"
	corsmiddleware "github.com/medikita/clinic-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/medikita/clinic-booking-api/pkg/middleware/requestid"
	"github.com/medikita/clinic-booking-api/pkg/notify"
)

// @title Clinic Booking API
// @version 1.0.0
// @description Appointment scheduling backend for outpatient clinics
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API keeps serving from Postgres without Redis; only the
		// template cache is lost.
		logr.Warn("redis unavailable, template caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	doctorRepo := repository.NewDoctorRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	var notifiers []service.Notifier
	if cfg.Notifications.Enabled {
		notifiers = append(notifiers,
			notify.NewEmailSender(
				cfg.Notifications.SMTPHost,
				cfg.Notifications.SMTPPort,
				cfg.Notifications.SMTPUser,
				cfg.Notifications.SMTPPassword,
				cfg.Notifications.EmailFrom,
				logr,
			),
			notify.NewCalendarClient(cfg.Notifications.CalendarWebhookURL, cfg.Notifications.Timeout, logr),
		)
	}
	notifications := service.NewNotificationService(notifiers, metrics, service.NotificationConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		Timeout:    cfg.Notifications.Timeout,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	notifications.Start(ctx)
	defer notifications.Stop()

	availabilitySvc := service.NewAvailabilityService(doctorRepo, appointmentRepo, cacheRepo, metrics, cfg.Scheduling.TemplateCacheTTL, logr)
	doctorSvc := service.NewDoctorService(doctorRepo, availabilitySvc, validate, cfg.Scheduling.DefaultSlotDuration, logr)
	patientSvc := service.NewPatientService(patientRepo, validate, logr)
	bookingSvc := service.NewBookingService(appointmentRepo, doctorRepo, patientRepo, availabilitySvc, notifications, metrics, validate, logr)
	exportSvc := service.NewExportService(doctorRepo, appointmentRepo, patientRepo, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	doctorHandler := handler.NewDoctorHandler(doctorSvc, availabilitySvc, exportSvc)
	patientHandler := handler.NewPatientHandler(patientSvc)
	appointmentHandler := handler.NewAppointmentHandler(bookingSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	doctors := authed.Group("/doctors")
	{
		doctors.GET("", doctorHandler.List)
		doctors.GET("/:id", doctorHandler.Get)
		doctors.GET("/:id/slots", doctorHandler.Slots)
		doctors.GET("/:id/day-sheet", doctorHandler.DaySheet)
		doctors.POST("", middleware.RequireRoles(models.RoleAdmin), doctorHandler.Create)
		doctors.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), doctorHandler.Update)
		doctors.PUT("/:id/schedule", middleware.RequireRoles(models.RoleAdmin, models.RoleDoctor), doctorHandler.UpdateSchedule)
		doctors.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), doctorHandler.Deactivate)
	}

	patients := authed.Group("/patients")
	{
		patients.GET("", patientHandler.List)
		patients.GET("/:id", patientHandler.Get)
		patients.POST("", patientHandler.Create)
		patients.PUT("/:id", patientHandler.Update)
		patients.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), patientHandler.Deactivate)
	}

	appointments := authed.Group("/appointments")
	{
		appointments.GET("", appointmentHandler.List)
		appointments.GET("/:id", appointmentHandler.Get)
		appointments.POST("", appointmentHandler.Book)
		appointments.PUT("/:id/reschedule", appointmentHandler.Reschedule)
		appointments.POST("/:id/cancel", appointmentHandler.Cancel)
		appointments.POST("/:id/complete", appointmentHandler.Complete)
		appointments.PATCH("/:id", appointmentHandler.UpdateReason)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
