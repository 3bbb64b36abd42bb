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

	_ "github.com/noah-isme/college-registrar-api/api/swagger"
	"github.com/noah-isme/college-registrar-api/internal/handler"
	"github.com/noah-isme/college-registrar-api/internal/middleware"
	"github.com/noah-isme/college-registrar-api/internal/models"
	"github.com/noah-isme/college-registrar-api/internal/repository"
	"github.com/noah-isme/college-registrar-api/internal/service"
	"github.com/noah-isme/college-registrar-api/pkg/cache"
	"github.com/noah-isme/college-registrar-api/pkg/config"
	"github.com/noah-isme/college-registrar-api/pkg/database"
	"github.com/noah-isme/college-registrar-api/pkg/export"
	"github.com/noah-isme/college-registrar-api/pkg/jobs"
	"github.com/noah-isme/college-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/college-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/college-registrar-api/pkg/middleware/requestid"
	"github.com/noah-isme/college-registrar-api/pkg/storage"
)

// @title College Registrar API
// @version 1.0.0
// @description Academic enrollment and grade lifecycle engine
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	cacheEnabled := cfg.Eligibility.CacheEnabled
	var cacheRepo service.CacheRepository
	if cacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, eligibility caching disabled", "error", err)
			cacheEnabled = false
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Eligibility.CacheTTL, logr, cacheEnabled)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	programRepo := repository.NewProgramRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	professorRepo := repository.NewProfessorRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	termRepo := repository.NewTermRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	incRepo := repository.NewIncResolutionRepository(db)
	reportRepo := repository.NewReportRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "college-registrar-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	programSvc := service.NewProgramService(programRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, programRepo, validate, logr)
	professorSvc := service.NewProfessorService(professorRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, programRepo, validate, logr)
	termSvc := service.NewTermService(termRepo, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, subjectRepo, professorRepo, termRepo, validate, logr)

	eligibilitySvc := service.NewEligibilityService(termRepo, studentRepo, subjectRepo, sectionRepo, gradeRepo, cacheSvc, cfg.Eligibility.CacheTTL, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sectionRepo, subjectRepo, termRepo, studentRepo, db, eligibilitySvc, cfg.Enrollment.MaxUnitsPerTerm, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, sectionRepo, subjectRepo, studentRepo, db, eligibilitySvc, cfg.Enrollment.MajorRepeatMonths, cfg.Enrollment.MinorRepeatMonths, validate, logr)
	repeatSvc := service.NewRepeatEligibilityService(gradeRepo, studentRepo, eligibilitySvc, logr)
	incSvc := service.NewIncResolutionService(incRepo, gradeRepo, gradeSvc, db, validate, logr)

	var reportHandler *handler.ReportHandler
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exporter := service.NewExportService(gradeRepo, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, export.NewCSVExporter(), export.NewPDFExporter())
		worker := service.NewReportWorker(reportRepo, exporter, cfg.Reports.WorkerRetries, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		reportSvc := service.NewReportService(reportRepo, sectionRepo, queue, exporter, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportSvc, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	programHandler := handler.NewProgramHandler(programSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	professorHandler := handler.NewProfessorHandler(professorSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	termHandler := handler.NewTermHandler(termSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	eligibilityHandler := handler.NewEligibilityHandler(eligibilitySvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	repeatHandler := handler.NewRepeatEligibilityHandler(repeatSvc)
	incHandler := handler.NewIncResolutionHandler(incSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registrar := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	academicStaff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleDean)
	frontOffice := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleDean, models.RoleAdmission)
	professorOnly := middleware.RequireRoles(models.RoleProfessor)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authSvc))

	users := protected.Group("/users", middleware.RBAC("ADMIN"))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", middleware.Audit(userRepo, models.AuditActionUserCreate, "users"), userHandler.Create)
		users.PUT("/:id", middleware.Audit(userRepo, models.AuditActionUserUpdate, "users"), userHandler.Update)
		users.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionUserDelete, "users"), userHandler.Delete)
	}

	programs := protected.Group("/programs")
	{
		programs.GET("", programHandler.List)
		programs.GET("/:id", programHandler.Get)
		programs.POST("", registrar, programHandler.Create)
	}

	students := protected.Group("/students")
	{
		students.GET("", frontOffice, studentHandler.List)
		students.GET("/:id", middleware.RBAC("ADMIN", "REGISTRAR", "DEAN", "ADMISSION", "PROFESSOR", "SELF"), studentHandler.Get)
		students.POST("", frontOffice, studentHandler.Create)
	}

	professors := protected.Group("/professors")
	{
		professors.GET("", professorHandler.List)
		professors.GET("/:id", professorHandler.Get)
		professors.POST("", registrar, professorHandler.Create)
	}

	subjects := protected.Group("/subjects")
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.POST("", academicStaff, subjectHandler.Create)
	}

	terms := protected.Group("/terms")
	{
		terms.GET("", termHandler.List)
		terms.GET("/active", termHandler.Active)
		terms.POST("", registrar, termHandler.Create)
		terms.PUT("/:id/activate", registrar, termHandler.Activate)
	}

	sections := protected.Group("/sections")
	{
		sections.GET("", sectionHandler.List)
		sections.GET("/:id", sectionHandler.Get)
		sections.POST("", academicStaff, sectionHandler.Create)
		sections.PUT("/:id/status", academicStaff, sectionHandler.SetStatus)
	}

	// Student-scoped lookups. Handlers force the student id to the caller's
	// own id for the STUDENT role.
	protected.GET("/students/:studentId/available-subjects", eligibilityHandler.Available)
	protected.GET("/students/:studentId/recommended-subjects", eligibilityHandler.Recommended)
	protected.GET("/students/:studentId/enrollments", enrollmentHandler.History)
	protected.GET("/students/:studentId/repeat-eligibility", repeatHandler.Check)
	protected.GET("/students/:studentId/inc-subjects", incHandler.StudentSubjects)

	enrollments := protected.Group("/enrollments")
	{
		enrollments.POST("", middleware.Audit(userRepo, models.AuditActionEnroll, "enrollments"), enrollmentHandler.Create)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionEnrollmentCancel, "enrollments"), enrollmentHandler.Cancel)
		enrollments.PUT("/:id/confirm", registrar, middleware.Audit(userRepo, models.AuditActionEnrollmentConfirm, "enrollments"), enrollmentHandler.Confirm)
	}

	grades := protected.Group("/grades")
	{
		grades.POST("", professorOnly, middleware.Audit(userRepo, models.AuditActionGradeSubmit, "grades"), gradeHandler.Submit)
		grades.GET("/pending", academicStaff, gradeHandler.Pending)
		grades.PUT("/:id/approve", academicStaff, middleware.Audit(userRepo, models.AuditActionGradeApprove, "grades"), gradeHandler.Approve)
		grades.PUT("/bulk-approve", academicStaff, middleware.Audit(userRepo, models.AuditActionGradeApprove, "grades"), gradeHandler.BulkApprove)
		grades.PUT("/:id/repeat-date", academicStaff, middleware.Audit(userRepo, models.AuditActionEligibilityUpdate, "grades"), repeatHandler.UpdateDate)
	}

	protected.GET("/repeat-eligibility", academicStaff, repeatHandler.AllStudents)

	resolutions := protected.Group("/inc-resolutions")
	{
		resolutions.POST("", professorOnly, middleware.Audit(userRepo, models.AuditActionIncResolutionNew, "inc_resolutions"), incHandler.Create)
		resolutions.GET("/mine", professorOnly, incHandler.Mine)
		resolutions.GET("/pending", academicStaff, incHandler.Pending)
		resolutions.PUT("/:id/approve", registrar, middleware.Audit(userRepo, models.AuditActionIncResolutionOK, "inc_resolutions"), incHandler.Approve)
		resolutions.PUT("/bulk-approve", registrar, middleware.Audit(userRepo, models.AuditActionIncResolutionOK, "inc_resolutions"), incHandler.BulkApprove)
	}

	protected.GET("/metrics/summary", middleware.RBAC("ADMIN"), metricsHandler.Summary)

	if reportHandler != nil {
		reports := protected.Group("/reports")
		reports.POST("/generate", reportHandler.GenerateReport)
		reports.GET("/status/:id", reportHandler.ReportStatus)
		// Download authenticates through the signed token instead of JWT.
		api.GET("/export/:token", reportHandler.DownloadReport)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
