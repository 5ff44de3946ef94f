package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/geopost/config"
	"github.com/cppla/geopost/controllers"
	"github.com/cppla/geopost/middleware"
	"github.com/cppla/geopost/realtime"
	"github.com/cppla/geopost/services"
	"github.com/cppla/geopost/utils"
)

// Deps are the constructed services the HTTP surface is built from.
type Deps struct {
	Config config.AppConfig
	DB     *gorm.DB
	Users  *services.UserDirectory
	Posts  *services.PostService
	Tokens middleware.TokenVerifier
	Hub    *realtime.Hub
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())

	// Access log goes to its own rolling file; fall back to the app logger.
	accessLog := utils.Logger
	if cfg.GinPath != "" {
		if gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg); err == nil {
			accessLog = gl
		} else {
			utils.Sugar.Warnw("access log unavailable, using app logger", "path", cfg.GinPath, "error", err)
		}
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	authController := controllers.NewAuthController(deps.Users)
	postController := controllers.NewPostController(deps.Posts)
	metaController := controllers.NewMetaController(deps.DB)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	requireAuth := middleware.AuthRequired(deps.Tokens)

	r.GET("/health", metaController.Health)
	r.GET("/ws", realtime.NewEndpoint(deps.Hub, cfg.AllowedOrigins).Serve)

	api := r.Group("/api")
	api.GET("/hello", metaController.Hello)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", limiter.Middleware(), authController.Register)
	authGroup.POST("/login", limiter.Middleware(), authController.Login)
	authGroup.GET("/me", requireAuth, authController.Me)
	authGroup.POST("/logout", authController.Logout)

	postsGroup := api.Group("/posts")
	postsGroup.GET("", postController.ListNearby)
	postsGroup.POST("", requireAuth, limiter.Middleware(), postController.CreatePost)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "not found")
	})

	return r
}
