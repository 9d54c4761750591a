package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/metrics"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

const readinessTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Listings     *ListingHandler
	Reservations *ReservationHandler
	Metrics      *metrics.Metrics
	SwaggerDir   string
	Checks       map[string]HealthCheck
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", readiness(cfg.Checks))
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.SwaggerDir != "" {
		router.Static("/swagger", cfg.SwaggerDir)
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/cabinbooking.swagger.json"))))
	}

	apiGroup := router.Group("/api")
	if cfg.Listings != nil {
		cfg.Listings.Register(apiGroup.Group("/listings"))
	}
	if cfg.Reservations != nil {
		cfg.Reservations.Register(apiGroup.Group("/reservations"))
	}
	return router
}

func readiness(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, results)
	}
}
