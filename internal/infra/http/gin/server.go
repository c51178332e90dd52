package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"storagepricing/internal/infra/config"
	"storagepricing/internal/infra/obs"
)

type PricingHTTP interface {
	Calculate(c *gin.Context)
	Recommendations(c *gin.Context)
	Forecast(c *gin.Context)
	History(c *gin.Context)
}

type AvailabilityHTTP interface {
	Get(c *gin.Context)
	Update(c *gin.Context)
	Track(c *gin.Context)
	Retire(c *gin.Context)
	LowAvailability(c *gin.Context)
}

type RuleHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	Activate(c *gin.Context)
	Deactivate(c *gin.Context)
	Suspend(c *gin.Context)
}

type Handlers struct {
	Pricing      PricingHTTP
	Availability AvailabilityHTTP
	Rules        RuleHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Pricing != nil {
		api.POST("/pricing/calculate", h.Pricing.Calculate)
		api.GET("/pricing/recommendations/:facilityId", h.Pricing.Recommendations)
		api.GET("/pricing/forecast/:facilityId", h.Pricing.Forecast)
		api.GET("/pricing/history/:facilityId", h.Pricing.History)
	}
	if h.Availability != nil {
		api.GET("/availability/:facilityId", h.Availability.Get)
		api.POST("/availability/update", h.Availability.Update)
		api.POST("/availability/track", h.Availability.Track)
		api.POST("/availability/retire", h.Availability.Retire)
		api.GET("/availability/alerts/low", h.Availability.LowAvailability)
	}
	if h.Rules != nil {
		rules := api.Group("/rules")
		rules.POST("", h.Rules.Create)
		rules.GET("", h.Rules.List)
		rules.GET("/:id", h.Rules.Get)
		rules.POST("/:id/activate", h.Rules.Activate)
		rules.POST("/:id/deactivate", h.Rules.Deactivate)
		rules.POST("/:id/suspend", h.Rules.Suspend)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
