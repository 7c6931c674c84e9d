package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-sync/broadcast"
	"kanban-sync/domain"
)

type gateway struct {
	store     Snapshotter
	processor Mutator
	registry  *broadcast.Registry
	logger    *log.Logger
	cfg       Config
	upgrader  websocket.Upgrader
}

func newGateway(deps Deps) *gateway {
	g := &gateway{
		store:     deps.Store,
		processor: deps.Processor,
		registry:  deps.Registry,
		logger:    deps.Logger,
		cfg:       deps.Config,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get(echo.HeaderOrigin)
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// wsWriter frames messages for a websocket connection. Only the pump
// goroutine writes to the connection.
type wsWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (w wsWriter) WriteFrame(_ string, payload []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (w wsWriter) Ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.timeout))
}

// serveWS upgrades the request and runs the connection until either side
// goes away.
func (g *gateway) serveWS(c echo.Context) error {
	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		g.logger.WithError(err).WithField("remote", c.RealIP()).Warn("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	client := broadcast.NewClient(c.RealIP(), g.cfg.QueueSize)
	entry := g.logger.WithFields(log.Fields{"client": client.ID, "remote": client.RemoteAddr, "transport": "websocket"})
	g.registry.Add(client)
	entry.Info("client connected")

	replies := make(chan []byte, replyBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w := wsWriter{conn: conn, timeout: g.cfg.WriteTimeout}
		if err := pump(nil, client, g.store, w, replies, g.cfg.PingInterval, entry); err != nil {
			entry.WithError(err).Debug("websocket write failed")
		}
		client.Close()
		// Unblock the reader if the writer stopped first.
		_ = conn.Close()
	}()

	g.readLoop(c.Request().Context(), conn, client, replies, entry)

	g.registry.Remove(client)
	client.Close()
	<-writerDone
	entry.Info("client disconnected")
	return nil
}

func (g *gateway) readLoop(ctx context.Context, conn *websocket.Conn, client *broadcast.Client, replies chan<- []byte, entry *log.Entry) {
	conn.SetReadLimit(maxMessageSize)
	if g.cfg.PingInterval > 0 {
		pongWait := 2 * g.cfg.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				entry.WithError(err).Warn("websocket closed unexpectedly")
			}
			return
		}
		if g.cfg.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * g.cfg.PingInterval))
		}

		var cmd domain.Command
		if err := sonic.Unmarshal(data, &cmd); err != nil {
			g.reply(replies, domain.NewErrorMessage("", domain.Validationf("malformed message: %v", err)), entry)
			continue
		}

		switch cmd.Type {
		case domain.SyncBoardCommand, domain.SyncTasksCommand:
			client.RequestResync()
			continue
		}

		if _, err := g.processor.Execute(ctx, cmd); err != nil {
			entry.WithError(err).WithFields(log.Fields{"type": cmd.Type, "request_id": cmd.RequestID}).Debug("command rejected")
			g.reply(replies, domain.NewErrorMessage(cmd.RequestID, err), entry)
		}
	}
}

// reply queues a message for the originating connection only.
func (g *gateway) reply(replies chan<- []byte, msg domain.ErrorMessage, entry *log.Entry) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		entry.WithError(err).Error("encode error reply")
		return
	}
	select {
	case replies <- payload:
	default:
		entry.WithError(domain.ErrDeliveryFailure).WithField("request_id", msg.RequestID).Warn("reply queue full, dropping error reply")
	}
}
