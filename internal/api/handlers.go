// Package api exposes the bot hosting core over HTTP: deployment,
// lifecycle, files, logs, and health.
package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/bot"
	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/deploy"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/logs"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/sandbox"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/supervisor"
	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

// Handler contains the HTTP handlers for the bot API.
type Handler struct {
	store      *bot.Store
	pipeline   *deploy.Pipeline
	supervisor *supervisor.Supervisor
	sandbox    *sandbox.Manager
	logs       *logs.Aggregator
	logger     *logger.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	store *bot.Store,
	pipeline *deploy.Pipeline,
	sup *supervisor.Supervisor,
	sb *sandbox.Manager,
	agg *logs.Aggregator,
	log *logger.Logger,
) *Handler {
	return &Handler{
		store:      store,
		pipeline:   pipeline,
		supervisor: sup,
		sandbox:    sb,
		logs:       agg,
		logger:     log.WithFields(zap.String("component", "api")),
	}
}

// respondError maps application errors onto HTTP responses.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if e, ok := err.(*apperrors.AppError); ok {
		appErr = e
	} else {
		appErr = apperrors.InternalError("internal error", err)
	}
	c.JSON(appErr.HTTPStatus, gin.H{"error": appErr})
}

// DeployBot deploys a bot from one of the three sources.
// POST /api/v1/bots/deploy
func (h *Handler) DeployBot(c *gin.Context) {
	req, cleanup, err := h.parseDeployRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cleanup()

	rec, err := h.pipeline.Deploy(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("deployment failed", zap.String("bot", req.Name), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec.ToAPI())
}

// parseDeployRequest accepts either a JSON body or a multipart form with
// an uploaded archive. The returned cleanup removes any temp file.
func (h *Handler) parseDeployRequest(c *gin.Context) (*deploy.Request, func(), error) {
	noop := func() {}

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		file, err := c.FormFile("archive")
		if err != nil {
			return nil, noop, apperrors.BadRequest("archive file part is required")
		}

		archivePath, cleanup, err := saveUpload(file)
		if err != nil {
			return nil, noop, apperrors.InternalError("failed to save uploaded archive", err)
		}

		var env map[string]string
		if raw := c.PostForm("env"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &env); err != nil {
				cleanup()
				return nil, noop, apperrors.BadRequest("env must be a JSON object of strings")
			}
		}

		req := &deploy.Request{
			Name:         c.PostForm("name"),
			Language:     v1.Language(c.PostForm("language")),
			RunCommand:   c.PostForm("run_command"),
			BuildCommand: c.PostForm("build_command"),
			Source:       v1.SourceArchive,
			ArchivePath:  archivePath,
			EnvOverrides: env,
		}
		if raw := c.PostForm("auto_restart"); raw != "" {
			ar := raw == "true" || raw == "1"
			req.AutoRestart = &ar
		}
		return req, cleanup, nil
	}

	var body DeployBotRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, noop, apperrors.BadRequest("invalid request body: " + err.Error())
	}
	return &deploy.Request{
		Name:          body.Name,
		Language:      v1.Language(body.Language),
		RunCommand:    body.RunCommand,
		BuildCommand:  body.BuildCommand,
		Source:        v1.DeploymentSource(body.Source),
		RepositoryURL: body.RepositoryURL,
		EnvOverrides:  body.Env,
		AutoRestart:   body.AutoRestart,
	}, noop, nil
}

func saveUpload(file *multipart.FileHeader) (string, func(), error) {
	src, err := file.Open()
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "hostelite-upload-*")
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

// ListBots returns all bot records.
// GET /api/v1/bots
func (h *Handler) ListBots(c *gin.Context) {
	records := h.store.List()
	out := make([]*v1.Bot, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ToAPI())
	}
	c.JSON(http.StatusOK, gin.H{"bots": out, "count": len(out)})
}

// GetBot returns one bot record.
// GET /api/v1/bots/:id
func (h *Handler) GetBot(c *gin.Context) {
	rec, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToAPI())
}

// StartBot starts a bot's process.
// POST /api/v1/bots/:id/start
func (h *Handler) StartBot(c *gin.Context) {
	rec, err := h.supervisor.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToAPI())
}

// StopBot stops a bot's process, gracefully by default.
// POST /api/v1/bots/:id/stop
func (h *Handler) StopBot(c *gin.Context) {
	var req StopBotRequest
	_ = c.ShouldBindJSON(&req) // body optional

	rec, err := h.supervisor.Stop(c.Request.Context(), c.Param("id"), req.Immediate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToAPI())
}

// ForceStopBot kills a bot's process with no grace window.
// POST /api/v1/bots/:id/force-stop
func (h *Handler) ForceStopBot(c *gin.Context) {
	rec, err := h.supervisor.Stop(c.Request.Context(), c.Param("id"), true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToAPI())
}

// RestartBot force-stops then starts a bot.
// POST /api/v1/bots/:id/restart
func (h *Handler) RestartBot(c *gin.Context) {
	rec, err := h.supervisor.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec.ToAPI())
}

// DeleteBot tears a bot down completely.
// DELETE /api/v1/bots/:id
func (h *Handler) DeleteBot(c *gin.Context) {
	if err := h.supervisor.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "bot deleted"})
}

// GetBotLogs returns the retained log lines for a bot.
// GET /api/v1/bots/:id/logs
func (h *Handler) GetBotLogs(c *gin.Context) {
	rec, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	lines := h.logs.GetAll(rec.ID)
	c.JSON(http.StatusOK, gin.H{"logs": lines, "count": len(lines)})
}

// ListBotFiles returns the bot directory tree.
// GET /api/v1/bots/:id/files
func (h *Handler) ListBotFiles(c *gin.Context) {
	rec, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	tree, err := h.sandbox.ListFiles(rec.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

// ReadBotFile returns one file's content.
// GET /api/v1/bots/:id/files/content?path=...
func (h *Handler) ReadBotFile(c *gin.Context) {
	rec, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	path := c.Query("path")
	if path == "" {
		respondError(c, apperrors.BadRequest("path query parameter is required"))
		return
	}
	content, err := h.sandbox.ReadFile(rec.Name, path)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

// WriteBotFile writes a file into the bot's directory.
// PUT /api/v1/bots/:id/files/content
func (h *Handler) WriteBotFile(c *gin.Context) {
	rec, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req WriteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest("invalid request body: "+err.Error()))
		return
	}
	if err := h.sandbox.WriteFile(rec.Name, req.Path, req.Content); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file written", "path": req.Path})
}

// BotHealth reports the bot's process health.
// GET /api/v1/bots/:id/health
func (h *Handler) BotHealth(c *gin.Context) {
	state, err := h.supervisor.HealthCheck(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"health": state})
}

// SystemStats returns process-wide statistics.
// GET /api/v1/system/stats
func (h *Handler) SystemStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.supervisor.SystemStats())
}

// HealthCheck is the service liveness endpoint.
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "hostelite"})
}
