package router

import (
	"github.com/ShepherdHQ/shepherd-backend/config"
	"github.com/ShepherdHQ/shepherd-backend/handlers"
	"github.com/ShepherdHQ/shepherd-backend/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies struct holds all dependencies required for setting up routes.
type Dependencies struct {
	Config           *config.Config
	HealthHandler    *handlers.HealthHandler
	PushTokenHandler *handlers.PushTokenHandler
	Logger           *zap.SugaredLogger
}

// SetupRouter configures and returns the main Gin engine with all routes defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.Default()

	// Global Middleware
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	// Pass pointer to ServerConfig for CORS middleware
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))

	// Health and Metrics Routes (typically don't require auth)
	r.GET("/health", deps.HealthHandler.DetailedHealth)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler())) // Prometheus metrics endpoint

	// Versioned API Group (v1)
	v1 := r.Group("/v1")
	{
		// Every v1 route runs behind the authenticating proxy; the identity
		// middleware only verifies the proxy's headers made it through.
		authRoutes := v1.Group("")
		authRoutes.Use(middleware.IdentityMiddleware())
		{
			// Device token routes
			userRoutes := authRoutes.Group("/users")
			{
				userRoutes.POST("/push-token", deps.PushTokenHandler.RegisterDeviceToken)
				userRoutes.DELETE("/push-token", deps.PushTokenHandler.RevokeDeviceToken)
				userRoutes.DELETE("/push-tokens", deps.PushTokenHandler.RevokeAllDeviceTokens)
			}
		}
	}

	return r
}
