package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainerrors "dispatch-engine/internal/errors"
)

func TestToHTTPError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		err      error
		status   int
		code     string
		hasExtra bool
	}{
		{"invalid transition", domainerrors.OrderInvalidTransition("PENDING", "DELIVERED"), http.StatusConflict, domainerrors.ErrInvalidTransition, true},
		{"forbidden", domainerrors.OrderNotAssignedToDriver(), http.StatusForbidden, domainerrors.ErrForbidden, false},
		{"location required", domainerrors.LocationRequired("pickup"), http.StatusUnprocessableEntity, domainerrors.ErrLocationRequired, false},
		{"too far", domainerrors.TooFarFromTarget("pickup", 212.4, 150), http.StatusUnprocessableEntity, domainerrors.ErrTooFarFromTarget, true},
		{"no drivers", domainerrors.NoDriversAvailable(), http.StatusNotFound, domainerrors.ErrNoDriversAvailable, false},
		{"unavailable", domainerrors.NewUnavailable("db down", errors.New("dial tcp")), http.StatusServiceUnavailable, domainerrors.ErrUnavailable, false},
		{"wrapped", fmt.Errorf("outer: %w", domainerrors.OrderNotFound("x")), http.StatusNotFound, domainerrors.ErrNotFound, false},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, domainerrors.ErrInternal, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			ToHTTPError(c, tc.err)

			if w.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, w.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error.Code)
			}
			if tc.hasExtra && len(body.Error.Details) == 0 {
				t.Fatal("expected details in body")
			}
		})
	}
}

func TestToHTTPError_TooFarCarriesDistance(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ToHTTPError(c, domainerrors.TooFarFromTarget("delivery", 300, 150))

	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Details["distance_m"] != float64(300) {
		t.Fatalf("expected distance_m 300, got %v", body.Error.Details["distance_m"])
	}
	if body.Error.Details["radius_m"] != float64(150) {
		t.Fatalf("expected radius_m 150, got %v", body.Error.Details["radius_m"])
	}
}
