// Package ws exposes the location hub over websockets.
package ws

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/jwt"
	"dispatch-engine/internal/middleware"
	"dispatch-engine/internal/pkg/apperrors"
	"dispatch-engine/internal/tracking"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*jwt.Claims, error)
}

type Handler struct {
	hub      *tracking.Hub
	tokens   TokenValidator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler accepts upgrades from allowedOrigins, or from any origin when the list is empty.
func NewHandler(hub *tracking.Hub, tokens TokenValidator, allowedOrigins []string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger.With(slog.String("component", "ws")),
	}
}

// Serve authenticates the query token, upgrades, and binds the socket to the
// hub: managers observe, drivers report.
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		apperrors.ToHTTPError(c, domainerrors.NewUnauthorized("missing token"))
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewUnauthorized("invalid or expired token"))
		return
	}
	actor := claims.Actor()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	connID := uuid.NewString()
	var hubConn *tracking.Conn
	if actor.IsManager() {
		hubConn, err = h.hub.RegisterObserver(connID)
	} else {
		hubConn, err = h.hub.RegisterDriver(connID, actor.ID)
	}
	if err != nil {
		h.logger.Error("hub registration failed", slog.String("error", err.Error()))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "registration failed"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	cl := &client{
		conn:    conn,
		hub:     h.hub,
		hubConn: hubConn,
		replies: make(chan tracking.Event, replyBuffer),
		logger: h.logger.With(
			slog.String("conn_id", connID),
			slog.String("sub", actor.ID),
			slog.String("role", string(actor.Role)),
		),
		now: time.Now,
	}
	go cl.writePump()
	cl.readPump()
}

// UpdateLocation is the HTTP fallback for drivers without a live socket.
func (h *Handler) UpdateLocation(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	if !actor.IsDriver() {
		apperrors.ToHTTPError(c, domainerrors.NewForbidden("only drivers report locations"))
		return
	}

	var req tracking.LocationUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToHTTPError(c, domainerrors.NewValidation(err.Error()))
		return
	}
	if err := h.hub.UpdateLocation(actor.ID, req); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}

	rec, _ := h.hub.Location(actor.ID)
	c.JSON(http.StatusOK, gin.H{"location": rec})
}
