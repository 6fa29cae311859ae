package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Wikid82/jailkeeper/internal/api/handlers"
	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/services"
)

// Register wires up the versioned API routes and the metrics endpoint.
func Register(router *gin.Engine, cfg config.Config, svcs *services.Services, client engine.Client, ctl handlers.ServiceController) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/v1/health", handlers.NewHealthHandler(client, svcs.History).Check)

	api := router.Group("/api/v1")

	historyHandler := handlers.NewHistoryHandler(svcs.History, cfg.SecurityLogPath)
	history := api.Group("/history")
	{
		history.GET("", historyHandler.List)
		history.DELETE("", historyHandler.Purge)
		history.POST("/import", historyHandler.Import)
		history.GET("/export", historyHandler.Export)
	}

	analyticsHandler := handlers.NewAnalyticsHandler(svcs.Analytics, svcs.Notifications)
	analytics := api.Group("/analytics")
	{
		analytics.GET("/summary", analyticsHandler.Summary)
		analytics.GET("/offenders", analyticsHandler.TopOffenders)
		analytics.GET("/repeat-offenders", analyticsHandler.RepeatOffenders)
		analytics.GET("/trends", analyticsHandler.Trends)
		analytics.GET("/alerts", analyticsHandler.Alerts)
		analytics.POST("/alerts/notify", analyticsHandler.NotifyAlerts)
	}
	api.POST("/notifications/test", analyticsHandler.TestNotification)

	whitelistHandler := handlers.NewWhitelistHandler(svcs.Whitelist)
	whitelist := api.Group("/whitelist")
	{
		whitelist.GET("", whitelistHandler.Get)
		whitelist.GET("/check", whitelistHandler.Check)
		whitelist.POST("/global", whitelistHandler.AddGlobal)
		whitelist.DELETE("/global", whitelistHandler.RemoveGlobal)
		whitelist.POST("/jails/:jail", whitelistHandler.AddJailEntry)
		whitelist.DELETE("/jails/:jail", whitelistHandler.RemoveJailEntry)
		whitelist.POST("/groups", whitelistHandler.CreateGroup)
		whitelist.DELETE("/groups/:name", whitelistHandler.DeleteGroup)
		whitelist.POST("/groups/:name/entries", whitelistHandler.AddGroupEntry)
		whitelist.DELETE("/groups/:name/entries", whitelistHandler.RemoveGroupEntry)
		whitelist.POST("/groups/:name/attach", whitelistHandler.AttachGroup)
		whitelist.POST("/groups/:name/detach", whitelistHandler.DetachGroup)
		whitelist.GET("/trusted-sources", whitelistHandler.TrustedSources)
		whitelist.PUT("/trusted-sources/:key", whitelistHandler.SetTrustedSource)
		whitelist.POST("/trusted-sources/:key/refresh", whitelistHandler.RefreshTrustedSource)
	}

	ignoreHandler := handlers.NewIgnoreDirectiveHandler(svcs.Ignore)
	ignore := api.Group("/ignore-directive")
	{
		ignore.GET("", ignoreHandler.Preview)
		ignore.POST("/regenerate", ignoreHandler.Regenerate)
		ignore.POST("/jails/:jail", ignoreHandler.RegenerateForJail)
	}

	permanentHandler := handlers.NewPermanentBanHandler(svcs.PermanentBans)
	permanent := api.Group("/permanent-bans")
	{
		permanent.GET("", permanentHandler.List)
		permanent.POST("", permanentHandler.Create)
		permanent.POST("/apply", permanentHandler.Apply)
		permanent.DELETE("/:id", permanentHandler.Delete)
	}

	jailHandler := handlers.NewJailHandler(svcs.Jails)
	jails := api.Group("/jails")
	{
		jails.GET("", jailHandler.List)
		jails.POST("", jailHandler.CreateCustom)
		jails.GET("/templates", jailHandler.Templates)
		jails.POST("/templates/:id", jailHandler.CreateFromTemplate)
		jails.GET("/:name", jailHandler.Get)
		jails.PATCH("/:name", jailHandler.EditParameters)
		jails.PUT("/:name/enabled", jailHandler.SetEnabled)
		jails.DELETE("/:name", jailHandler.Delete)
	}

	engineHandler := handlers.NewEngineHandler(svcs.Bans, client, ctl)
	eng := api.Group("/engine")
	{
		eng.GET("/status", engineHandler.Status)
		eng.GET("/banned/:ip", engineHandler.BannedIn)
		eng.POST("/ban", engineHandler.Ban)
		eng.POST("/unban", engineHandler.Unban)
		eng.POST("/unban-all", engineHandler.UnbanEverywhere)
		eng.POST("/reload", engineHandler.Reload)
		eng.POST("/service/:action", engineHandler.Service)
	}

	backupHandler := handlers.NewBackupHandler(svcs.Backups)
	backups := api.Group("/backups")
	{
		backups.GET("", backupHandler.List)
		backups.DELETE("/:filename", backupHandler.Delete)
		backups.GET("/:filename/download", backupHandler.Download)
		backups.POST("/:filename/restore", backupHandler.Restore)
	}
}
