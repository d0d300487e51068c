package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	webhookHandler *WebhookHandler,
	cronHandler *CronHandler,
	syncHandler *SyncHandler,
	accountHandler *AccountHandler,
	jwtSecret string,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))

	// Machine-facing: the webhook and cron carry their own auth.
	r.POST("/api/mail/webhook", webhookHandler.Handle)
	r.GET("/api/cron/sync", cronHandler.Handle)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// User-facing: bearer tokens from the identity provider.
	auth := r.Group("/api/mail")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/callback", accountHandler.Callback)
		auth.POST("/sync", syncHandler.Sync)
		auth.POST("/resync", syncHandler.Resync)
		auth.POST("/send", accountHandler.Send)
		auth.DELETE("/accounts/:id", accountHandler.Unlink)
		auth.PUT("/accounts/:id/index", accountHandler.SaveIndex)
		auth.GET("/accounts/:id/index", accountHandler.LoadIndex)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
