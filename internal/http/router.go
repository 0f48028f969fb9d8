package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc service, runs lastRuns) *gin.Engine {
	if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Next()
		log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
	})

	h := NewHandlers(cfg, log, svc, runs)

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/burndown", h.Burndown)
		api.GET("/health", h.Health)
		api.GET("/at-risk", h.AtRisk)
		api.GET("/scope-changes", h.ScopeChanges)
		api.GET("/versions", h.Versions)
		api.GET("/boards", h.Boards)
		api.GET("/boards/:id/sprint", h.BoardSprint)
		api.POST("/baseline/reset", h.ResetBaseline)
		api.GET("/config", h.GetConfig)
		api.PUT("/config", h.PutConfig)
	}

	r.POST("/admin/digest", h.RunDigest)
	r.GET("/admin/last-run", h.LastRun)

	return r
}
