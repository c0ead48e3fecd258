package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/repairhub/notify/internal/handler/admin"
	"github.com/repairhub/notify/internal/handler/health"
	"github.com/repairhub/notify/internal/handler/notification"
	promhandler "github.com/repairhub/notify/internal/handler/prometheus"
	"github.com/repairhub/notify/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	CORSConfig     middleware.CORSConfig
}

type Router struct {
	engine        *gin.Engine
	notificationH *notification.Handler
	adminH        *admin.Handler
	healthH       *health.Handler
	promH         *promhandler.Handler
	config        Config
}

func NewRouter(
	notificationH *notification.Handler,
	adminH *admin.Handler,
	healthH *health.Handler,
	promH *promhandler.Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:        gin.New(),
		notificationH: notificationH,
		adminH:        adminH,
		healthH:       healthH,
		promH:         promH,
		config:        config,
	}
}

func (r *Router) Setup() *gin.Engine {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.ErrorHandler())
	r.engine.Use(middleware.CORS(r.config.CORSConfig))
	if r.config.RequestTimeout > 0 {
		r.engine.Use(middleware.Timeout(r.config.RequestTimeout))
	}
	r.engine.Use(r.promH.Middleware())

	if r.config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		r.engine.Use(limiter.RateLimit())
	}

	r.engine.GET("/metrics", r.promH.Handler())

	api := r.engine.Group("/api/v1")
	r.healthH.RegisterRoutes(api)
	r.notificationH.RegisterRoutes(api)
	r.adminH.RegisterRoutes(api)

	return r.engine
}
