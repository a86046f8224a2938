package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/pkg/apperrors"
)

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

type circuitBreaker struct {
	mu              sync.Mutex
	state           circuitState
	failures        int
	threshold       int
	cooldown        time.Duration
	lastFailureTime time.Time
	now             func() time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration, now func() time.Time) *circuitBreaker {
	return &circuitBreaker{
		state:     stateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.cooldown {
			cb.state = stateHalfOpen
			return true
		}
		return false
	case stateHalfOpen:
		// one probe at a time
		return false
	}
	return true
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = stateClosed
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()
	if cb.state == stateHalfOpen || cb.failures >= cb.threshold {
		cb.state = stateOpen
	}
}

// CircuitBreaker tracks failures per route and opens the circuit after
// threshold consecutive 5xx responses. A 503 produced by a domain
// UNAVAILABLE error counts as a failure too, so a dead database trips it.
func CircuitBreaker(threshold int, cooldownSeconds int) gin.HandlerFunc {
	return circuitBreakerWithClock(threshold, time.Duration(cooldownSeconds)*time.Second, time.Now)
}

func circuitBreakerWithClock(threshold int, cooldown time.Duration, now func() time.Time) gin.HandlerFunc {
	breakers := &sync.Map{}

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		val, _ := breakers.LoadOrStore(path, newCircuitBreaker(threshold, cooldown, now))
		cb := val.(*circuitBreaker)

		if !cb.allow() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, apperrors.ErrorResponse{
				Error: apperrors.ErrorBody{
					Code:    domainerrors.ErrUnavailable,
					Message: "service temporarily unavailable",
				},
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= 500 {
			cb.recordFailure()
		} else {
			cb.recordSuccess()
		}
	}
}
