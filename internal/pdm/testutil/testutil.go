package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bitfantasy/vega/internal/config"
	"github.com/bitfantasy/vega/internal/middleware"
	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/handler"
	"github.com/bitfantasy/vega/internal/pdm/repository"
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_vega"
	JWTSecret  = "vega-plm-test-secret"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "vega")
	password := getEnv("DB_PASSWORD", "vega123")
	dbname := getEnv("DB_NAME", "vega_plm")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// Create a unique test schema for isolation
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	// First: create schema using a temporary connection
	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// Second: open connection with search_path in DSN so ALL pooled connections use test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Migrate test tables
	err = db.AutoMigrate(
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
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	// Cleanup on test completion
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		// Reconnect to drop the schema
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupEnv wires the full API stack against an isolated test schema
func SetupEnv(t *testing.T) *TestEnv {
	t.Helper()
	db := SetupTestDB(t)

	cfg := &config.Config{}
	cfg.JWT = config.JWTConfig{
		Secret:             JWTSecret,
		AccessTokenExpire:  time.Hour,
		RefreshTokenExpire: 24 * time.Hour,
		Issuer:             "vega-plm-test",
	}
	cfg.Upload = config.UploadConfig{
		Dir:       t.TempDir(),
		MaxSizeMB: 10,
	}

	// redis 客户端懒连接，不走 redis 的用例不需要真实实例
	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "127.0.0.1:6379"),
	})

	repos := repository.NewRepositories(db)
	services := service.NewServices(db, rdb, repos, cfg)
	handlers := handler.NewHandlers(services)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", handlers.Auth.Login)

	authorized := v1.Group("", middleware.JWTAuth(JWTSecret))
	{
		authorized.GET("/auth/profile", handlers.Auth.Profile)
		authorized.GET("/users", handlers.Auth.ListUsers)
		authorized.POST("/users", middleware.RequireRole(entity.RoleAdmin), handlers.Auth.Register)

		parts := authorized.Group("/parts")
		{
			parts.POST("", handlers.Part.Create)
			parts.GET("", handlers.Part.List)
			parts.GET("/export", handlers.Part.Export)
			parts.POST("/bulk-delete", handlers.Part.BulkDelete)
			parts.GET("/:id", handlers.Part.Get)
			parts.PUT("/:id", handlers.Part.Update)
			parts.DELETE("/:id", handlers.Part.Delete)
			parts.GET("/:id/impact", handlers.Part.Impact)
			parts.POST("/:id/versions", handlers.Part.CreateVersion)
			parts.GET("/:id/versions", handlers.Part.ListVersions)
			parts.GET("/:id/versions/compare", handlers.Part.CompareVersions)
			parts.POST("/:id/versions/bulk-freeze", handlers.Part.BulkFreezeVersions)
			parts.POST("/:id/versions/:versionId/freeze", handlers.Part.FreezeVersion)
			parts.POST("/:id/versions/:versionId/rollback", handlers.Part.RollbackVersion)
		}

		assemblies := authorized.Group("/assemblies")
		{
			assemblies.POST("", handlers.Assembly.Create)
			assemblies.GET("", handlers.Assembly.List)
			assemblies.GET("/:id", handlers.Assembly.Get)
			assemblies.PUT("/:id", handlers.Assembly.Update)
			assemblies.DELETE("/:id", handlers.Assembly.Delete)
			assemblies.POST("/:id/versions", handlers.Assembly.CreateVersion)
			assemblies.GET("/:id/versions", handlers.Assembly.ListVersions)
			assemblies.POST("/:id/versions/:versionId/freeze", handlers.Assembly.FreezeVersion)
			assemblies.GET("/:id/versions/:versionId/bom", handlers.Assembly.GetBOM)
			assemblies.GET("/:id/versions/:versionId/bom/export", handlers.Assembly.ExportBOM)
		}

		editRequests := authorized.Group("/edit-requests")
		{
			editRequests.POST("", handlers.Workflow.CreateEditRequest)
			editRequests.GET("", handlers.Workflow.ListEditRequests)
			editRequests.POST("/:id/decide", handlers.Workflow.DecideEditRequest)
		}
		releaseRequests := authorized.Group("/release-requests")
		{
			releaseRequests.POST("", handlers.Workflow.CreateReleaseRequest)
			releaseRequests.GET("", handlers.Workflow.ListReleaseRequests)
			releaseRequests.POST("/:id/decide", handlers.Workflow.DecideReleaseRequest)
		}

		changeOrders := authorized.Group("/change-orders")
		{
			changeOrders.POST("", handlers.ChangeOrder.Create)
			changeOrders.GET("", handlers.ChangeOrder.List)
			changeOrders.GET("/:id", handlers.ChangeOrder.Get)
			changeOrders.PUT("/:id", handlers.ChangeOrder.Update)
			changeOrders.DELETE("/:id", handlers.ChangeOrder.Delete)
			changeOrders.POST("/:id/submit", handlers.ChangeOrder.Submit)
			changeOrders.POST("/:id/review", handlers.ChangeOrder.StartReview)
			changeOrders.POST("/:id/decide", handlers.ChangeOrder.Decide)
			changeOrders.POST("/:id/implement", handlers.ChangeOrder.Implement)
		}

		projects := authorized.Group("/projects")
		{
			projects.POST("", handlers.Project.Create)
			projects.GET("", handlers.Project.List)
			projects.GET("/:id", handlers.Project.Get)
			projects.PUT("/:id", handlers.Project.Update)
			projects.DELETE("/:id", handlers.Project.Delete)
			projects.POST("/:id/tasks", handlers.Project.CreateTask)
			projects.PUT("/:id/tasks/:taskId", handlers.Project.UpdateTask)
			projects.DELETE("/:id/tasks/:taskId", handlers.Project.DeleteTask)
		}

		authorized.GET("/notifications", handlers.Notification.List)
		authorized.POST("/notifications/:id/read", handlers.Notification.MarkRead)
		authorized.GET("/activity", handlers.Notification.ListActivity)
		authorized.GET("/search", handlers.Search.Global)
	}

	return &TestEnv{DB: db, Router: r, T: t}
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, username, name, role string) string {
	now := time.Now()
	claims := middleware.JWTClaims{
		UserID:   userID,
		Username: username,
		Name:     name,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vega-plm-test",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// SeedTestUser creates a test user with the given role and returns the user and a token
func SeedTestUser(t *testing.T, db *gorm.DB, id, name, role string) (*entity.User, string) {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	user := &entity.User{
		ID:           id,
		Username:     "user_" + id,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Status:       "active",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed test user: %v", err)
	}
	return user, GenerateTestToken(user.ID, user.Username, user.Name, role)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
