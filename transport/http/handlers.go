package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/service"
)

// Handlers contains the HTTP and websocket handlers of the broker
type Handlers struct {
	broker   *service.Broker
	logger   watermill.LoggerAdapter
	upgrader websocket.Upgrader
}

// NewHandlers creates new broker handlers
func NewHandlers(broker *service.Broker, logger watermill.LoggerAdapter) *Handlers {
	return &Handlers{
		broker: broker,
		logger: logger.With(watermill.LogFields{"component": "transport"}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Every web page is a potential client; authorization happens
			// per origin inside the broker.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Health reports liveness and the number of open sessions
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.broker.Sessions().Len(),
	})
}

// Page serves a connection from a web page. The page origin is taken from
// the Origin header of the upgrade request.
func (h *Handlers) Page(c *gin.Context) {
	origin := c.GetHeader("Origin")
	if _, err := core.StripURL(origin); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid origin"})
		return
	}

	h.serve(c, false, origin)
}

// Extension serves a connection from one of the extension's own pages. The
// route is guarded by ExtensionMiddleware.
func (h *Handlers) Extension(c *gin.Context) {
	h.serve(c, true, "")
}

func (h *Handlers) serve(c *gin.Context, privileged bool, origin string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Debug("Websocket upgrade failed", watermill.LogFields{"err": err.Error()})
		return
	}
	defer conn.Close()

	sessionID := uuid.New().String()
	out := newOutbox(conn, h.logger)
	out.start()
	defer out.stop()

	if err := h.broker.OpenSession(sessionID, privileged, out); err != nil {
		h.logger.Error("Failed to open session", err, watermill.LogFields{"session": sessionID})
		return
	}

	// Requests still waiting for a decision are released when the
	// connection goes away; the requests themselves stay queued.
	ctx, cancel := context.WithCancel(context.Background())
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
		h.broker.CloseSession(sessionID)
	}()

	for {
		var env core.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Connection closed", watermill.LogFields{
					"session": sessionID,
					"err":     err.Error(),
				})
			}
			return
		}

		env.SessionID = sessionID
		if !privileged {
			env.Origin = origin
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()

			resp := h.broker.Dispatch(ctx, env)
			h.broker.Sessions().Reply(sessionID, resp)
		}()
	}
}
