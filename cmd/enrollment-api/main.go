package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/dbtc-online/enrollment-api/api/swagger"
	"github.com/dbtc-online/enrollment-api/internal/handler"
	"github.com/dbtc-online/enrollment-api/internal/middleware"
	"github.com/dbtc-online/enrollment-api/internal/models"
	"github.com/dbtc-online/enrollment-api/internal/repository"
	"github.com/dbtc-online/enrollment-api/internal/service"
	"github.com/dbtc-online/enrollment-api/pkg/cache"
	"github.com/dbtc-online/enrollment-api/pkg/config"
	"github.com/dbtc-online/enrollment-api/pkg/database"
	"github.com/dbtc-online/enrollment-api/pkg/logger"
	corsmiddleware "github.com/dbtc-online/enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/dbtc-online/enrollment-api/pkg/middleware/requestid"
	"github.com/dbtc-online/enrollment-api/pkg/storage"
)

// @title DBTC Enrollment API
// @version 1.0.0
// @description Student enrollment lifecycle: admission, payment, subject assignment and archiving
// @BasePath /api
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	cacheEnabled := cfg.Dashboard.CacheEnabled
	var cacheRepo service.CacheRepository
	if cacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
			cacheEnabled = false
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cacheEnabled)

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir, cfg.Uploads.MaxFileSizeBytes, cfg.Uploads.AllowedExtensions)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}

	appRepo := repository.NewApplicationRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	linkRepo := repository.NewLinkRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)

	validate := validator.New()
	effects := service.NewEffectsDispatcher(notificationRepo, auditRepo, userRepo, logr)

	authSvc := service.NewAuthService(userRepo, appRepo, effects, db, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	admissionSvc := service.NewAdmissionService(appRepo, effects, db, validate, logr)
	paymentSvc := service.NewPaymentService(appRepo, effects, db, cfg.StudentNumber.Prefix, cfg.StudentNumber.MaxRetries, logr)
	assignmentSvc := service.NewAssignmentService(appRepo, subjectRepo, linkRepo, snapshotRepo, effects, db, validate, logr)
	archiveSvc := service.NewArchiveService(appRepo, linkRepo, snapshotRepo, effects, db, logr)
	studentSvc := service.NewStudentService(appRepo, linkRepo, archiveSvc, effects, db, validate, logr)
	applicationSvc := service.NewApplicationService(appRepo, userRepo, effects, db, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, linkRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, effects, db, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	auditSvc := service.NewAuditService(auditRepo, logr)
	calendarSvc := service.NewCalendarService(calendarRepo, effects, validate, logr)
	dashboardSvc := service.NewDashboardService(appRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)
	exportSvc := service.NewExportService(appRepo, linkRepo, cfg.Exports.StorageDir, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, uploads)
	registrarHandler := handler.NewRegistrarHandler(applicationSvc, paymentSvc, assignmentSvc, archiveSvc, subjectSvc, exportSvc, dashboardSvc)
	adminHandler := handler.NewAdminHandler(admissionSvc, applicationSvc, userSvc, dashboardSvc, auditSvc, calendarSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
		notifications.PUT("/read-all", notificationHandler.MarkAllRead)
	}

	student := api.Group("/student", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent))
	{
		student.GET("/profile", studentHandler.Profile)
		student.PUT("/profile", studentHandler.UpdateProfile)
		student.GET("/status", studentHandler.Status)
		student.GET("/subjects", studentHandler.EnrolledSubjects)
		student.GET("/history", studentHandler.History)
		student.POST("/receipt", studentHandler.UploadReceipt)
		student.POST("/documents", studentHandler.UploadDocuments)
	}

	registrar := api.Group("/registrar", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleRegistrar, models.RoleAdmin))
	{
		registrar.GET("/students", registrarHandler.ListStudents)
		registrar.GET("/students/export", registrarHandler.ExportStudents)
		registrar.GET("/students/:id", registrarHandler.GetStudent)
		registrar.PUT("/students/:id/verify-payment", registrarHandler.VerifyPayment)
		registrar.PUT("/students/:id/reject-payment", registrarHandler.RejectPayment)
		registrar.POST("/students/:id/subjects/bulk", registrarHandler.BulkAssignSubjects)
		registrar.POST("/students/:id/subjects/:subjectId", registrarHandler.AssignSubject)
		registrar.DELETE("/students/:id/subjects/:subjectId", registrarHandler.UnassignSubject)
		registrar.PUT("/students/:id/transferee-credits", registrarHandler.UpdateTransfereeCredits)
		registrar.POST("/students/:id/archive", registrarHandler.ArchiveCycle)
		registrar.GET("/students/:id/history", registrarHandler.EnrollmentHistory)
		registrar.GET("/subjects", registrarHandler.ListSubjects)
		registrar.POST("/subjects", registrarHandler.CreateSubject)
		registrar.PUT("/subjects/:id", registrarHandler.UpdateSubject)
		registrar.DELETE("/subjects/:id", registrarHandler.DeleteSubject)
		registrar.GET("/subjects/:id/students", registrarHandler.SubjectRoster)
		registrar.GET("/subjects/:id/export", registrarHandler.ExportSubjectRoster)
	}

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.PUT("/students/:id/approve", adminHandler.Approve)
		admin.PUT("/students/:id/deny", adminHandler.Deny)
		admin.DELETE("/students/:id", adminHandler.DeleteStudent)
		admin.GET("/dashboard", adminHandler.Dashboard)
		admin.GET("/accounts", adminHandler.ListAccounts)
		admin.POST("/accounts", adminHandler.CreateAccount)
		admin.PUT("/accounts/:id/reset-password", adminHandler.ResetPassword)
		admin.DELETE("/accounts/:id", adminHandler.DeleteAccount)
		admin.GET("/audit-logs", adminHandler.AuditLogs)
		admin.GET("/calendar", adminHandler.GetCalendar)
		admin.PUT("/calendar", adminHandler.UpdateCalendar)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
