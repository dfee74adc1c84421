package router

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/superhero-manager/backend/internal/broker"
	"github.com/superhero-manager/backend/internal/config"
	"github.com/superhero-manager/backend/internal/handler"
	"github.com/superhero-manager/backend/internal/metrics"
	"github.com/superhero-manager/backend/internal/middleware"
	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/service"
	"gorm.io/gorm"
)

const livePath = "/api/heroes/live"

// Deps are the collaborators the HTTP surface is built from. Redis is
// optional; without it the rate limiter and response cache are off.
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Broker      broker.HeroBroker
	AuthService *service.AuthService
	UserService *service.UserService
	HeroService *service.HeroService
}

// New wires middleware, API routes, static files and the SPA fallback
func New(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = d.HeroService.MaxImageSize()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger(d.Metrics))
	r.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{livePath, cfg.UploadURLPrefix}),
	))

	authHandler := handler.NewAuthHandler(d.AuthService, d.Metrics)
	userHandler := handler.NewUserHandler(d.UserService)
	heroHandler := handler.NewHeroHandler(d.HeroService)
	liveHandler := handler.NewLiveHandler(d.Broker, d.Metrics, cfg.CORSOrigins)

	r.GET("/healthz", handler.Health(d.DB))
	if d.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}
	r.Static(cfg.UploadURLPrefix, cfg.UploadDir)

	var (
		rateLimit  = passThrough
		cacheRead  = passThrough
		cacheWrite = passThrough
	)
	if d.Redis != nil {
		limiter := middleware.NewRateLimiter(d.Redis, middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BlockTime:   cfg.RateLimitBlockTime,
			KeyPrefix:   "ratelimit:auth",
		}, d.Metrics)
		rateLimit = limiter.Middleware()

		cache := middleware.NewResponseCache(d.Redis, "cache:heroes", cfg.CacheTTL, d.Metrics)
		cacheRead = cache.Middleware()
		cacheWrite = cache.InvalidateOnWrite()
	}

	requireAuth := middleware.RequireAuth(cfg.JWTSecret)
	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", rateLimit, authHandler.Register)
		auth.POST("/login", rateLimit, authHandler.Login)
		auth.GET("/verify", requireAuth, authHandler.Verify)
	}

	heroes := api.Group("/heroes")
	{
		// Registered before /:id
		heroes.GET("/live", liveHandler.Handle)
		heroes.GET("", cacheRead, heroHandler.List)
		heroes.GET("/:id", cacheRead, heroHandler.Get)

		writers := heroes.Group("", requireAuth, cacheWrite)
		writers.POST("", middleware.RequireRole(models.RoleAdmin, models.RoleEditor), heroHandler.Create)
		writers.PUT("/:id", middleware.RequireRole(models.RoleAdmin, models.RoleEditor), heroHandler.Update)
		writers.DELETE("/:id", middleware.RequireRole(models.RoleAdmin), heroHandler.Delete)
	}

	users := api.Group("/users", requireAuth, middleware.RequireRole(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.POST("", userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	r.NoRoute(spaFallback(cfg.WebDir))
	return r
}

func passThrough(c *gin.Context) { c.Next() }

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Cache", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			c.AllowCredentials = false
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}

// spaFallback serves files from webDir and index.html for client-side
// routes. API paths and a missing webDir get a JSON 404.
func spaFallback(webDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if webDir == "" || strings.HasPrefix(path, "/api/") || c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
			return
		}

		file := filepath.Join(webDir, filepath.Clean("/"+path))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			c.File(file)
			return
		}
		c.File(filepath.Join(webDir, "index.html"))
	}
}
