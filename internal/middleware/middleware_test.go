package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch-engine/internal/common"
	"dispatch-engine/internal/jwt"
	"dispatch-engine/internal/redis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAndRoleGuard(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	managerToken, _ := svc.GenerateToken("mgr-1", common.RoleManager)
	driverToken, _ := svc.GenerateToken("drv-1", common.RoleDriver)

	r := gin.New()
	r.Use(Auth(svc))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/manager/x", RoleGuard(common.RoleManager), func(c *gin.Context) {
		actor := ActorFrom(c)
		c.String(http.StatusOK, string(actor.Role)+":"+actor.ID)
	})

	cases := []struct {
		name   string
		path   string
		header map[string]string
		status int
	}{
		{"skipped path", "/health", nil, http.StatusOK},
		{"missing header", "/manager/x", nil, http.StatusUnauthorized},
		{"bad format", "/manager/x", map[string]string{"Authorization": managerToken}, http.StatusUnauthorized},
		{"wrong role", "/manager/x", map[string]string{"Authorization": "Bearer " + driverToken}, http.StatusForbidden},
		{"manager", "/manager/x", map[string]string{"Authorization": "Bearer " + managerToken}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(r, http.MethodGet, tc.path, tc.header)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
		})
	}

	w := perform(r, http.MethodGet, "/manager/x", map[string]string{"Authorization": "Bearer " + managerToken})
	if w.Body.String() != "manager:mgr-1" {
		t.Fatalf("unexpected actor %q", w.Body.String())
	}
}

func TestBulkhead_RejectsOverCapacity(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	r := gin.New()
	r.Use(Bulkhead(1))
	r.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.Status(http.StatusOK)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		perform(r, http.MethodGet, "/slow", nil)
	}()
	<-entered

	w := perform(r, http.MethodGet, "/slow", nil)
	close(release)
	wg.Wait()

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	failing := true

	r := gin.New()
	r.Use(circuitBreakerWithClock(2, time.Minute, clock))
	r.GET("/x", func(c *gin.Context) {
		if failing {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	perform(r, http.MethodGet, "/x", nil)
	perform(r, http.MethodGet, "/x", nil)

	w := perform(r, http.MethodGet, "/x", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "UNAVAILABLE") {
		t.Fatalf("expected open circuit, got %d %s", w.Code, w.Body.String())
	}

	now = now.Add(2 * time.Minute)
	failing = false
	if w := perform(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("expected half-open probe to pass, got %d", w.Code)
	}
	if w := perform(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("expected closed circuit, got %d", w.Code)
	}
}

type fakeLimiter struct {
	keys  []string
	allow bool
	err   error
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func TestRateLimit(t *testing.T) {
	cases := []struct {
		name    string
		limiter *fakeLimiter
		status  int
	}{
		{"allowed", &fakeLimiter{allow: true}, http.StatusOK},
		{"denied", &fakeLimiter{allow: false}, http.StatusTooManyRequests},
		{"fails open", &fakeLimiter{err: errors.New("redis down")}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(func(c *gin.Context) { c.Set("sub", "drv-9"); c.Next() })
			r.Use(RateLimit(tc.limiter))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			if w := perform(r, http.MethodGet, "/x", nil); w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			if len(tc.limiter.keys) != 1 || tc.limiter.keys[0] != "sub:drv-9" {
				t.Fatalf("expected subject key, got %v", tc.limiter.keys)
			}
		})
	}
}

type memoryIdempotency struct {
	data map[string]redis.CachedResponse
}

func (m *memoryIdempotency) Check(_ context.Context, userID, scope, key string) (*redis.CachedResponse, error) {
	resp, ok := m.data[userID+"/"+scope+"/"+key]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (m *memoryIdempotency) Set(_ context.Context, userID, scope, key string, resp redis.CachedResponse) error {
	k := userID + "/" + scope + "/" + key
	if _, ok := m.data[k]; !ok {
		resp.Body = append([]byte(nil), resp.Body...)
		m.data[k] = resp
	}
	return nil
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := &memoryIdempotency{data: map[string]redis.CachedResponse{}}
	calls := 0

	r := gin.New()
	r.Use(Idempotency(store))
	r.POST("/x", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"n": calls})
	})

	header := map[string]string{"Idempotency-Key": "abc"}
	first := perform(r, http.MethodPost, "/x", header)
	second := perform(r, http.MethodPost, "/x", header)

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed body %q, got %q", first.Body.String(), second.Body.String())
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", second.Code)
	}
	if ct := second.Header().Get("Content-Type"); ct != first.Header().Get("Content-Type") {
		t.Fatalf("expected content type %q, got %q", first.Header().Get("Content-Type"), ct)
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("expected replay header")
	}
}

func TestIdempotency_KeyScopedToRouteAndParams(t *testing.T) {
	store := &memoryIdempotency{data: map[string]redis.CachedResponse{}}
	var ran []string

	r := gin.New()
	r.Use(Idempotency(store))
	r.POST("/orders/:id/transition", func(c *gin.Context) {
		ran = append(ran, c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"order": c.Param("id")})
	})
	r.POST("/orders/:id/rating", func(c *gin.Context) {
		ran = append(ran, "rate-"+c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"rated": c.Param("id")})
	})

	header := map[string]string{"Idempotency-Key": "k1"}
	a := perform(r, http.MethodPost, "/orders/A/transition", header)
	b := perform(r, http.MethodPost, "/orders/B/transition", header)
	rated := perform(r, http.MethodPost, "/orders/A/rating", header)
	again := perform(r, http.MethodPost, "/orders/B/transition", header)

	if strings.Join(ran, ",") != "A,B,rate-A" {
		t.Fatalf("unexpected handler runs %v", ran)
	}
	if !strings.Contains(b.Body.String(), `"B"`) || strings.Contains(b.Body.String(), `"A"`) {
		t.Fatalf("order B got %s", b.Body.String())
	}
	if a.Header().Get("Idempotent-Replay") != "" || rated.Header().Get("Idempotent-Replay") != "" {
		t.Fatal("distinct routes must not replay")
	}
	if again.Header().Get("Idempotent-Replay") != "true" || again.Body.String() != b.Body.String() {
		t.Fatalf("expected replay of B, got %s", again.Body.String())
	}
}

func TestIdempotency_FailuresAreNotCached(t *testing.T) {
	store := &memoryIdempotency{data: map[string]redis.CachedResponse{}}
	calls := 0

	r := gin.New()
	r.Use(Idempotency(store))
	r.POST("/x", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusConflict, gin.H{"n": calls})
	})

	header := map[string]string{"Idempotency-Key": "abc"}
	perform(r, http.MethodPost, "/x", header)
	perform(r, http.MethodPost, "/x", header)
	if calls != 2 {
		t.Fatalf("expected a failed request to run again, ran %d times", calls)
	}
}

func TestRequireIdempotencyKey(t *testing.T) {
	r := gin.New()
	r.Use(RequireIdempotencyKey())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := perform(r, http.MethodPost, "/x", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := perform(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("expected GET to pass, got %d", w.Code)
	}
}
