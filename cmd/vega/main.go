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

	"github.com/bitfantasy/vega/internal/config"
	"github.com/bitfantasy/vega/internal/middleware"
	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/handler"
	"github.com/bitfantasy/vega/internal/pdm/repository"
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting vega-plm service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := migrate(db); err != nil {
		zapLogger.Fatal("Database migration failed", zap.Error(err))
	}
	zapLogger.Info("Database migration completed")

	// Seed: 初始管理员（仅空库）
	seedAdmin(db, zapLogger)

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(db, rdb, repos, cfg)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

// migrate 建表 + 非 AutoMigrate 能表达的约束
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entity.User{},
		&entity.Part{},
		&entity.Assembly{},
		&entity.PartVersion{},
		&entity.AssemblyVersion{},
		&entity.AssemblyPart{},
		&entity.PartPermission{},
		&entity.EditRequest{},
		&entity.ReleaseRequest{},
		&entity.ChangeOrder{},
		&entity.ChangeOrderItem{},
		&entity.Project{},
		&entity.Task{},
		&entity.ActivityLog{},
		&entity.Notification{},
		&entity.UploadedFile{},
	); err != nil {
		return err
	}

	// 版本状态与组成边目标的数据库侧兜底约束
	migrationSQL := []string{
		"ALTER TABLE part_versions DROP CONSTRAINT IF EXISTS ck_part_version_status",
		"ALTER TABLE part_versions ADD CONSTRAINT ck_part_version_status CHECK (status IN ('working', 'frozen'))",
		"ALTER TABLE assembly_versions DROP CONSTRAINT IF EXISTS ck_assembly_version_status",
		"ALTER TABLE assembly_versions ADD CONSTRAINT ck_assembly_version_status CHECK (status IN ('working', 'frozen'))",
		"ALTER TABLE change_orders DROP CONSTRAINT IF EXISTS ck_change_order_status",
		"ALTER TABLE change_orders ADD CONSTRAINT ck_change_order_status CHECK (status IN ('draft', 'submitted', 'in_review', 'approved', 'rejected', 'implemented'))",
		"CREATE INDEX IF NOT EXISTS idx_assembly_parts_part_version ON assembly_parts(part_version_id)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications(user_id, read_at)",
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}

// seedAdmin 空库时创建默认管理员 admin/admin12345
func seedAdmin(db *gorm.DB, zapLogger *zap.Logger) {
	var count int64
	if err := db.Model(&entity.User{}).Count(&count).Error; err != nil || count > 0 {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(config.GetEnvOrDefault("ADMIN_PASSWORD", "admin12345")), bcrypt.DefaultCost)
	if err != nil {
		zapLogger.Warn("Failed to hash admin password", zap.Error(err))
		return
	}
	now := time.Now()
	admin := &entity.User{
		ID:           uuid.New().String()[:32],
		Username:     "admin",
		Name:         "系统管理员",
		PasswordHash: string(hash),
		Role:         entity.RoleAdmin,
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.Create(admin).Error; err != nil {
		zapLogger.Warn("Failed to seed admin user", zap.Error(err))
		return
	}
	zapLogger.Info("Seeded default admin user", zap.String("username", admin.Username))
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 认证（无需登录）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
		}

		// 需要认证的接口
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			authorized.GET("/auth/profile", h.Auth.Profile)
			authorized.POST("/auth/logout", h.Auth.Logout)

			// 用户
			users := authorized.Group("/users")
			{
				users.GET("", h.Auth.ListUsers)
				users.POST("", middleware.RequireRole(entity.RoleAdmin), h.Auth.Register)
			}

			// 零件
			parts := authorized.Group("/parts")
			{
				parts.POST("", h.Part.Create)
				parts.GET("", h.Part.List)
				parts.GET("/export", h.Part.Export)
				parts.POST("/bulk-delete", h.Part.BulkDelete)
				parts.GET("/:id", h.Part.Get)
				parts.PUT("/:id", h.Part.Update)
				parts.DELETE("/:id", h.Part.Delete)
				parts.GET("/:id/impact", h.Part.Impact)

				parts.POST("/:id/versions", h.Part.CreateVersion)
				parts.GET("/:id/versions", h.Part.ListVersions)
				parts.GET("/:id/versions/compare", h.Part.CompareVersions)
				parts.POST("/:id/versions/bulk-freeze", h.Part.BulkFreezeVersions)
				parts.POST("/:id/versions/:versionId/freeze", h.Part.FreezeVersion)
				parts.POST("/:id/versions/:versionId/rollback", h.Part.RollbackVersion)
			}

			// 装配体
			assemblies := authorized.Group("/assemblies")
			{
				assemblies.POST("", h.Assembly.Create)
				assemblies.GET("", h.Assembly.List)
				assemblies.GET("/:id", h.Assembly.Get)
				assemblies.PUT("/:id", h.Assembly.Update)
				assemblies.DELETE("/:id", h.Assembly.Delete)

				assemblies.POST("/:id/versions", h.Assembly.CreateVersion)
				assemblies.GET("/:id/versions", h.Assembly.ListVersions)
				assemblies.POST("/:id/versions/:versionId/freeze", h.Assembly.FreezeVersion)
				assemblies.GET("/:id/versions/:versionId/bom", h.Assembly.GetBOM)
				assemblies.GET("/:id/versions/:versionId/bom/export", h.Assembly.ExportBOM)
			}

			// 审批流
			editRequests := authorized.Group("/edit-requests")
			{
				editRequests.POST("", h.Workflow.CreateEditRequest)
				editRequests.GET("", h.Workflow.ListEditRequests)
				editRequests.POST("/:id/decide", h.Workflow.DecideEditRequest)
			}
			releaseRequests := authorized.Group("/release-requests")
			{
				releaseRequests.POST("", h.Workflow.CreateReleaseRequest)
				releaseRequests.GET("", h.Workflow.ListReleaseRequests)
				releaseRequests.POST("/:id/decide", h.Workflow.DecideReleaseRequest)
			}

			// 工程变更单
			changeOrders := authorized.Group("/change-orders")
			{
				changeOrders.POST("", h.ChangeOrder.Create)
				changeOrders.GET("", h.ChangeOrder.List)
				changeOrders.GET("/:id", h.ChangeOrder.Get)
				changeOrders.PUT("/:id", h.ChangeOrder.Update)
				changeOrders.DELETE("/:id", h.ChangeOrder.Delete)
				changeOrders.POST("/:id/submit", h.ChangeOrder.Submit)
				changeOrders.POST("/:id/review", h.ChangeOrder.StartReview)
				changeOrders.POST("/:id/decide", h.ChangeOrder.Decide)
				changeOrders.POST("/:id/implement", h.ChangeOrder.Implement)
			}

			// 项目与任务
			projects := authorized.Group("/projects")
			{
				projects.POST("", h.Project.Create)
				projects.GET("", h.Project.List)
				projects.GET("/:id", h.Project.Get)
				projects.PUT("/:id", h.Project.Update)
				projects.DELETE("/:id", h.Project.Delete)
				projects.POST("/:id/tasks", h.Project.CreateTask)
				projects.PUT("/:id/tasks/:taskId", h.Project.UpdateTask)
				projects.DELETE("/:id/tasks/:taskId", h.Project.DeleteTask)
			}

			// 通知与日志
			authorized.GET("/notifications", h.Notification.List)
			authorized.POST("/notifications/:id/read", h.Notification.MarkRead)
			authorized.GET("/activity", h.Notification.ListActivity)

			// 全局搜索
			authorized.GET("/search", h.Search.Global)

			// 文件上传
			authorized.POST("/uploads", h.Upload.Upload)
			authorized.GET("/uploads/:id", h.Upload.Download)
		}
	}
}
