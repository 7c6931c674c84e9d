package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-sync/broadcast"
	"kanban-sync/internal/consts"
)

// sseWriter frames messages as server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s sseWriter) WriteFrame(msgType string, payload []byte) error {
	if _, err := s.w.Write([]byte(consts.SSEEventPrefix + msgType + "\n" + consts.SSEDataPrefix)); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s sseWriter) Ping() error {
	if _, err := s.w.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// streamBoard serves read-only observers: the snapshot followed by every
// change event, as server-sent events.
func (g *gateway) streamBoard(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	c.Response().WriteHeader(http.StatusOK)

	client := broadcast.NewClient(c.RealIP(), g.cfg.QueueSize)
	entry := g.logger.WithFields(log.Fields{"client": client.ID, "remote": client.RemoteAddr, "transport": "sse"})
	g.registry.Add(client)
	defer func() {
		g.registry.Remove(client)
		client.Close()
		entry.Info("stream closed")
	}()
	entry.Info("stream opened")

	w := sseWriter{w: c.Response(), flusher: flusher}
	if err := pump(c.Request().Context().Done(), client, g.store, w, nil, g.cfg.PingInterval, entry); err != nil {
		entry.WithError(err).Debug("stream write failed")
	}
	return nil
}
