package api

import (
	"github.com/gin-gonic/gin"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/bot"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/deploy"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/logs"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/sandbox"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/supervisor"
)

// SetupRoutes configures the bot API routes.
// router should be the /api/v1 group.
func SetupRoutes(
	router *gin.RouterGroup,
	store *bot.Store,
	pipeline *deploy.Pipeline,
	sup *supervisor.Supervisor,
	sb *sandbox.Manager,
	agg *logs.Aggregator,
	log *logger.Logger,
) *Handler {
	handler := NewHandler(store, pipeline, sup, sb, agg, log)

	bots := router.Group("/bots")
	{
		bots.GET("", handler.ListBots)
		bots.POST("/deploy", handler.DeployBot)

		bots.GET("/:id", handler.GetBot)
		bots.DELETE("/:id", handler.DeleteBot)

		// Lifecycle
		bots.POST("/:id/start", handler.StartBot)
		bots.POST("/:id/stop", handler.StopBot)
		bots.POST("/:id/force-stop", handler.ForceStopBot)
		bots.POST("/:id/restart", handler.RestartBot)
		bots.GET("/:id/health", handler.BotHealth)

		// Logs
		bots.GET("/:id/logs", handler.GetBotLogs)
		bots.GET("/:id/logs/stream", handler.StreamBotLogs)

		// Files
		bots.GET("/:id/files", handler.ListBotFiles)
		bots.GET("/:id/files/content", handler.ReadBotFile)
		bots.PUT("/:id/files/content", handler.WriteBotFile)
	}

	router.GET("/system/stats", handler.SystemStats)

	return handler
}
