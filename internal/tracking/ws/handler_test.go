package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dispatch-engine/internal/common"
	"dispatch-engine/internal/jwt"
	"dispatch-engine/internal/tracking"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type wireEvent struct {
	Type     string          `json:"type"`
	DriverID string          `json:"driverId"`
	Payload  json.RawMessage `json:"payload"`
}

type fixture struct {
	hub    *tracking.Hub
	tokens *jwt.Service
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := tracking.NewHub(tracking.WithLogger(logger))
	tokens := jwt.NewService("secret", time.Hour)

	r := gin.New()
	r.GET("/ws", NewHandler(hub, tokens, nil, logger).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{hub: hub, tokens: tokens, srv: srv}
}

func (f *fixture) dial(t *testing.T, sub string, role common.Role) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.GenerateToken(sub, role)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expect reads until an event of type want arrives, skipping others.
func expect(t *testing.T, conn *websocket.Conn, want string) wireEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var e wireEvent
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if e.Type == want {
			return e
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServe_RejectsMissingOrBadToken(t *testing.T) {
	f := newFixture(t)
	base := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"

	for _, url := range []string{base, base + "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err != websocket.ErrBadHandshake {
			t.Fatalf("%s: expected bad handshake, got %v", url, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", url, resp.StatusCode)
		}
	}
}

func TestServe_ObserverSeesDriverLifecycle(t *testing.T) {
	f := newFixture(t)

	observer := f.dial(t, "mgr-1", common.RoleManager)
	expect(t, observer, string(tracking.EventSnapshot))

	driver := f.dial(t, "drv-1", common.RoleDriver)
	connected := expect(t, observer, string(tracking.EventDriverConnected))
	if connected.DriverID != "drv-1" {
		t.Fatalf("expected drv-1, got %q", connected.DriverID)
	}

	send(t, driver, `{"type":"location_update","data":{"latitude":-26.2041,"longitude":28.0473,"status":"ONLINE"}}`)
	update := expect(t, observer, string(tracking.EventLocationUpdate))
	var rec tracking.LocationRecord
	if err := json.Unmarshal(update.Payload, &rec); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !rec.Positioned || rec.Latitude != -26.2041 || rec.Longitude != 28.0473 {
		t.Fatalf("unexpected record %+v", rec)
	}

	send(t, driver, `{"type":"status_update","data":{"status":"BREAK"}}`)
	status := expect(t, observer, string(tracking.EventStatusChange))
	if err := json.Unmarshal(status.Payload, &rec); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if rec.Status != tracking.StatusBreak {
		t.Fatalf("expected BREAK, got %s", rec.Status)
	}

	driver.Close()
	gone := expect(t, observer, string(tracking.EventDriverDisconnected))
	if gone.DriverID != "drv-1" {
		t.Fatalf("expected drv-1, got %q", gone.DriverID)
	}

	rec, ok := f.hub.Location("drv-1")
	if !ok || rec.Status != tracking.StatusOffline {
		t.Fatalf("expected OFFLINE record, got %+v ok=%v", rec, ok)
	}
}

func TestServe_PingAnsweredOnSameSocket(t *testing.T) {
	f := newFixture(t)
	driver := f.dial(t, "drv-1", common.RoleDriver)

	send(t, driver, `{"type":"ping","data":{"clientTime":42,"latitude":1.5,"longitude":2.5}}`)
	pong := expect(t, driver, string(tracking.EventPong))

	var p tracking.Pong
	if err := json.Unmarshal(pong.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.ClientTime == nil || *p.ClientTime != 42 || p.ServerTime == 0 {
		t.Fatalf("unexpected pong %+v", p)
	}

	rec, ok := f.hub.Location("drv-1")
	if !ok || rec.LastPing == nil || !rec.Positioned {
		t.Fatalf("expected pinged, positioned record, got %+v", rec)
	}
}

func TestServe_BadMessagesAnsweredWithErrors(t *testing.T) {
	f := newFixture(t)
	driver := f.dial(t, "drv-1", common.RoleDriver)

	cases := []struct {
		name string
		msg  string
	}{
		{"not json", `{{`},
		{"out of range", `{"type":"location_update","data":{"latitude":200,"longitude":0}}`},
		{"unknown status", `{"type":"status_update","data":{"status":"NAPPING"}}`},
		{"unknown type", `{"type":"teleport","data":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			send(t, driver, tc.msg)
			e := expect(t, driver, string(EventError))

			var body errorPayload
			if err := json.Unmarshal(e.Payload, &body); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if body.Code != "VALIDATION" {
				t.Fatalf("expected VALIDATION, got %+v", body)
			}
		})
	}

	// the socket survives rejected messages
	send(t, driver, `{"type":"ping"}`)
	expect(t, driver, string(tracking.EventPong))

	if _, ok := f.hub.Location("drv-1"); !ok {
		t.Fatal("ping should have created a record")
	}
}

func TestUpdateLocation_HTTPFallback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := tracking.NewHub(tracking.WithLogger(logger))
	h := NewHandler(hub, jwt.NewService("secret", time.Hour), nil, logger)

	as := func(sub string, role common.Role) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set("sub", sub)
			c.Set("role", string(role))
		}
	}
	r := gin.New()
	r.POST("/driver/location", as("drv-1", common.RoleDriver), h.UpdateLocation)
	r.POST("/manager/location", as("mgr-1", common.RoleManager), h.UpdateLocation)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"driver", "/driver/location", `{"latitude":-26.1,"longitude":28.1}`, http.StatusOK},
		{"out of range", "/driver/location", `{"latitude":-96,"longitude":28.1}`, http.StatusBadRequest},
		{"malformed", "/driver/location", `{"latitude":`, http.StatusBadRequest},
		{"manager", "/manager/location", `{"latitude":-26.1,"longitude":28.1}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
		})
	}

	rec, ok := hub.Location("drv-1")
	if !ok || rec.Latitude != -26.1 || !rec.Positioned {
		t.Fatalf("expected stored position, got %+v", rec)
	}
}
