package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/repo"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/services"
)

type service interface {
	Burndown(ctx context.Context, opts services.Options) (domain.BurndownReport, error)
	Health(ctx context.Context, opts services.Options) (domain.HealthReport, error)
	AtRisk(ctx context.Context, opts services.Options) (domain.AtRiskReport, error)
	ScopeChanges(ctx context.Context, opts services.Options) (domain.ScopeChangesReport, error)
	Versions(ctx context.Context, opts services.Options) (domain.VersionReport, error)
	Boards(ctx context.Context) ([]domain.Board, error)
	ActiveSprintInfo(ctx context.Context, opts services.Options) (domain.Sprint, error)
	ResetBaseline(ctx context.Context, opts services.Options) (*domain.Baseline, error)
	DashboardConfig(ctx context.Context) (domain.DashboardConfig, error)
	SetDashboardConfig(ctx context.Context, dc domain.DashboardConfig) error
	Digest(ctx context.Context) (string, error)
}

type lastRuns interface {
	GetLastRun(ctx context.Context) (*repo.LastRun, error)
}

type Handlers struct {
	cfg  config.Config
	log  zerolog.Logger
	svc  service
	runs lastRuns
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service, runs lastRuns) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc, runs: runs}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNoBoard), errors.Is(err, services.ErrNoActiveSprint):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"ok": false, "error": err.Error()})
}

func opts(c *gin.Context) services.Options {
	var o services.Options
	if v := c.Query("boardId"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil { o.BoardID = id }
	}
	o.Assignee = c.Query("assignee")
	return o
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Burndown(c *gin.Context) {
	rep, err := h.svc.Burndown(c.Request.Context(), opts(c))
	if err != nil { fail(c, err); return }
	ok(c, rep)
}

func (h *Handlers) Health(c *gin.Context) {
	rep, err := h.svc.Health(c.Request.Context(), opts(c))
	if err != nil { fail(c, err); return }
	ok(c, rep)
}

func (h *Handlers) AtRisk(c *gin.Context) {
	rep, err := h.svc.AtRisk(c.Request.Context(), opts(c))
	if err != nil { fail(c, err); return }
	ok(c, rep)
}

func (h *Handlers) ScopeChanges(c *gin.Context) {
	rep, err := h.svc.ScopeChanges(c.Request.Context(), opts(c))
	if err != nil { fail(c, err); return }
	ok(c, rep)
}

func (h *Handlers) Versions(c *gin.Context) {
	rep, err := h.svc.Versions(c.Request.Context(), opts(c))
	if err != nil { fail(c, err); return }
	ok(c, rep)
}

func (h *Handlers) Boards(c *gin.Context) {
	boards, err := h.svc.Boards(c.Request.Context())
	if err != nil { fail(c, err); return }
	ok(c, boards)
}

func (h *Handlers) BoardSprint(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid board id"})
		return
	}
	sp, err := h.svc.ActiveSprintInfo(c.Request.Context(), services.Options{BoardID: id})
	if err != nil { fail(c, err); return }
	ok(c, sp)
}

func (h *Handlers) ResetBaseline(c *gin.Context) {
	b, err := h.svc.ResetBaseline(c.Request.Context(), opts(c))
	if err != nil { fail(c, err); return }
	ok(c, gin.H{"sprintId": b.SprintID, "entries": len(b.Entries), "capturedAt": b.CapturedAt})
}

func (h *Handlers) GetConfig(c *gin.Context) {
	dc, err := h.svc.DashboardConfig(c.Request.Context())
	if err != nil { fail(c, err); return }
	ok(c, dc)
}

func (h *Handlers) PutConfig(c *gin.Context) {
	var dc domain.DashboardConfig
	if err := c.ShouldBindJSON(&dc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err := h.svc.SetDashboardConfig(c.Request.Context(), dc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	ok(c, dc)
}

func (h *Handlers) RunDigest(c *gin.Context) {
	// Detach from the request so a slow digest is not cut off mid-send.
	go func() {
		if _, err := h.svc.Digest(context.Background()); err != nil {
			h.log.Error().Err(err).Msg("on-demand digest failed")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "data": gin.H{"status": "queued"}})
}

func (h *Handlers) LastRun(c *gin.Context) {
	lr, err := h.runs.GetLastRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no runs yet"})
			return
		}
		fail(c, err)
		return
	}
	ok(c, lr)
}
