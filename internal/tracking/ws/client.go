package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/tracking"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048

	replyBuffer = 16
)

const (
	MsgLocationUpdate = "location_update"
	MsgStatusUpdate   = "status_update"
	MsgPing           = "ping"

	EventError tracking.EventType = "error"
)

// Inbound is a message sent by a driver client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type statusData struct {
	Status tracking.DriverStatus `json:"status"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// client pumps one websocket. Hub events and direct replies share the single writer.
type client struct {
	conn    *websocket.Conn
	hub     *tracking.Hub
	hubConn *tracking.Conn
	replies chan tracking.Event
	logger  *slog.Logger
	now     func() time.Time
}

func (c *client) readPump() {
	defer func() {
		c.hub.Disconnect(c.hubConn.ID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if c.hubConn.Role != tracking.RoleDriver {
			continue
		}

		var msg Inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("malformed websocket message", slog.String("error", err.Error()))
			c.reject(domainerrors.NewValidation("message is not valid JSON"))
			continue
		}
		if err := c.dispatch(msg); err != nil {
			c.reject(err)
		}
	}
}

func (c *client) dispatch(msg Inbound) error {
	driverID := c.hubConn.DriverID

	switch msg.Type {
	case MsgLocationUpdate:
		var u tracking.LocationUpdate
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			return domainerrors.NewValidation("invalid location_update payload")
		}
		return c.hub.UpdateLocation(driverID, u)

	case MsgStatusUpdate:
		var s statusData
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			return domainerrors.NewValidation("invalid status_update payload")
		}
		return c.hub.UpdateStatus(driverID, s.Status)

	case MsgPing:
		var hb tracking.Heartbeat
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &hb); err != nil {
				return domainerrors.NewValidation("invalid ping payload")
			}
		}
		pong, err := c.hub.Ping(driverID, hb)
		if err != nil {
			return err
		}
		c.reply(tracking.Event{Type: tracking.EventPong, DriverID: driverID, Payload: pong, Timestamp: c.now()})
		return nil
	}

	return domainerrors.NewValidation("unknown message type " + msg.Type)
}

func (c *client) reject(err error) {
	payload := errorPayload{Code: domainerrors.ErrInternal, Message: err.Error()}
	var de *domainerrors.DomainError
	if errors.As(err, &de) {
		payload = errorPayload{Code: de.Code, Message: de.Message}
	}
	c.reply(tracking.Event{Type: EventError, DriverID: c.hubConn.DriverID, Payload: payload, Timestamp: c.now()})
}

// reply never blocks the reader; a client that stops reading loses replies.
func (c *client) reply(e tracking.Event) {
	select {
	case c.replies <- e:
	default:
		c.logger.Warn("reply queue full, reply dropped", slog.String("event", string(e.Type)))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	events := c.hubConn.Events()
	for {
		select {
		case e, ok := <-events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the connection
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}

		case e := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
