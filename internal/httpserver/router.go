package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailroom/internal/api"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *api.AuthHandler,
	sendHandler *api.SendHandler,
	trackingHandler *api.TrackingHandler,
	reportHandler *api.ReportHandler,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(MetricsMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to the mailer system!")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Pixel fetches come from mail clients, never with credentials.
	r.GET("/track/:pixel", trackingHandler.TrackOpen)

	// Send API authenticates with a service-client token in the form
	// body, so no middleware here.
	r.POST("/api/send_email", sendHandler.SendEmail)

	// Operator accounts
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)

	// Protected reporting
	auth := r.Group("/api")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/logs", reportHandler.ListLogs)
		auth.GET("/status/:tracking_id", reportHandler.GetStatus)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
