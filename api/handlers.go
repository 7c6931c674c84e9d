package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-sync/attachments"
	"kanban-sync/domain"
	"kanban-sync/internal/consts"
)

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) {
	if deps.Logger == nil {
		panic("logger is required")
	}
	if deps.Config.QueueSize <= 0 {
		deps.Config.QueueSize = defaultQueueSize
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = defaultWriteTimeout
	}
	g := newGateway(deps)
	h := &handlers{deps: deps}

	e.GET("/ws", g.serveWS)
	e.GET("/stream", g.streamBoard)
	e.GET("/healthz", h.healthz)

	api := e.Group("/api", GzipRequestMiddleware())
	api.GET("/board", h.getBoard)
	api.POST("/tasks", h.createTask)
	api.PATCH("/tasks/:id", h.updateTask)
	api.POST("/tasks/:id/move", h.moveTask)
	api.DELETE("/tasks/:id", h.deleteTask)
	api.GET("/outbox/stats", h.outboxStats)
	if deps.Attachments != nil {
		api.POST("/tasks/:id/attachments", h.uploadAttachment)
	}
}

type handlers struct {
	deps Deps
}

func (h *handlers) healthz(c echo.Context) error {
	if h.deps.Hub == nil {
		return c.NoContent(http.StatusOK)
	}
	return c.JSON(http.StatusOK, h.deps.Hub.Stats())
}

func (h *handlers) getBoard(c echo.Context) error {
	return c.JSON(http.StatusOK, h.deps.Board.FetchBoard(c.Request().Context()))
}

func (h *handlers) createTask(c echo.Context) error {
	var req domain.CreateTask
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	ev, err := h.deps.Processor.Create(c.Request().Context(), requestID(c), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, taskResponse{Task: ev.Task, Column: ev.Column, Seq: ev.Seq})
}

func (h *handlers) updateTask(c echo.Context) error {
	var req domain.UpdateTask
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	req.ID = c.Param("id")
	ev, err := h.deps.Processor.Update(c.Request().Context(), requestID(c), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, taskResponse{Task: ev.Task, Column: ev.Column, Seq: ev.Seq})
}

func (h *handlers) moveTask(c echo.Context) error {
	var req domain.MoveTask
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	req.TaskID = c.Param("id")
	ev, err := h.deps.Processor.Move(c.Request().Context(), requestID(c), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, moveResponse{Task: ev.Task, FromColumn: ev.FromColumn, ToColumn: ev.ToColumn, Seq: ev.Seq})
}

func (h *handlers) deleteTask(c echo.Context) error {
	req := domain.DeleteTask{TaskID: c.Param("id"), Column: c.QueryParam("column")}
	ev, err := h.deps.Processor.Delete(c.Request().Context(), requestID(c), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, deleteResponse{Message: "task deleted", TaskID: ev.TaskID, Column: ev.Column, Seq: ev.Seq})
}

func (h *handlers) uploadAttachment(c echo.Context) error {
	ctx := c.Request().Context()
	column := c.QueryParam("column")
	if column == "" {
		return h.fail(c, domain.Validationf("column is required"))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, domain.Validationf("file is required"))
	}
	src, err := fh.Open()
	if err != nil {
		return h.fail(c, err)
	}
	defer src.Close()

	att, err := h.deps.Attachments.Save(ctx, fh.Filename, fh.Header.Get(echo.HeaderContentType), src)
	if err != nil {
		return h.fail(c, err)
	}
	ev, err := h.deps.Processor.Attach(ctx, requestID(c), domain.AttachFile{TaskID: c.Param("id"), Column: column, Attachment: att})
	if err != nil {
		if rerr := h.deps.Attachments.Remove(ctx, att); rerr != nil {
			h.deps.Logger.WithError(rerr).WithField("attachment", att.ID).Error("remove orphaned upload")
		}
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, attachmentResponse{Attachment: att, Task: ev.Task, Seq: ev.Seq})
}

func (h *handlers) outboxStats(c echo.Context) error {
	if h.deps.Outbox == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "event outbox unavailable", Code: domain.CodeInternal})
	}
	return c.JSON(http.StatusOK, h.deps.Outbox.Stats())
}

func (h *handlers) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.deps.Logger.WithError(err).WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
	}
	return c.JSON(status, errorResponse{Error: err.Error(), Code: domain.Code(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attachments.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidColumn):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// requestID reads the idempotency key supplied by the caller, if any.
func requestID(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(consts.IdempotencyKeyHeader))
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxMessageSize)
	if err := sonic.ConfigStd.NewDecoder(lr).Decode(v); err != nil {
		return domain.Validationf("invalid body: %v", err)
	}
	return nil
}
