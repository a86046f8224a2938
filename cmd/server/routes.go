package main

import (
	"dispatch-engine/internal/common"
	"dispatch-engine/internal/middleware"
)

func (a *AppContext) setupRoutes() {
	r := a.Router

	// ── Global Middleware (outermost → innermost) ──
	r.Use(middleware.Logger())                 // 1. Request logging
	r.Use(middleware.Recovery())               // 2. Panic recovery
	r.Use(middleware.Auth(a.JWTService))       // 3. JWT auth (skips /auth/token, /health, /ws)
	r.Use(middleware.RateLimit(a.RateLimiter)) // 4. Per-subject rate limiting, per-IP when anonymous

	// ── Health (no auth) ──
	r.GET("/health", a.healthCheck)

	// ── Auth (no role guard, no idempotency) ──
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/token", a.AuthHandler.GenerateToken)
	}

	// ── Websocket (query token) ──
	r.GET("/ws", a.WSHandler.Serve)

	breaker := middleware.CircuitBreaker(a.Config.CircuitBreaker.FailureThreshold, a.Config.CircuitBreaker.CooldownSeconds)

	// ── Shared Order Routes (any role; the order service authorizes) ──
	orders := r.Group("/orders")
	orders.Use(middleware.RoleGuard(common.RoleManager, common.RoleDriver))
	orders.Use(middleware.Bulkhead(a.Config.Bulkhead.MutationPool))
	orders.Use(breaker)
	{
		orders.GET("/:id", a.OrderHandler.Details)
		// transitions are retried over flaky mobile links, so the key is mandatory here
		orders.POST("/:id/transition",
			middleware.RequireIdempotencyKey(),
			middleware.Idempotency(a.IdempotencyStore),
			a.OrderHandler.Transition,
		)
	}

	// ── Driver Routes (role: driver) ──
	driverGroup := r.Group("/driver")
	driverGroup.Use(middleware.RoleGuard(common.RoleDriver))
	{
		// location reports get their own bulkhead pool (high concurrency)
		location := driverGroup.Group("")
		location.Use(middleware.Bulkhead(a.Config.Bulkhead.LocationPool))
		{
			location.POST("/location", a.WSHandler.UpdateLocation)
		}

		driverGroup.GET("/me", a.DriverHandler.Me)
		driverGroup.GET("/orders", a.OrderHandler.ListMine)
		driverGroup.GET("/earnings", a.EarningHandler.Mine)
	}

	// ── Manager Routes (role: manager) ──
	managerGroup := r.Group("/manager")
	managerGroup.Use(middleware.RoleGuard(common.RoleManager))
	managerGroup.Use(middleware.Bulkhead(a.Config.Bulkhead.ManagerPool))
	managerGroup.Use(breaker)
	{
		managerGroup.GET("/orders", a.OrderHandler.List)
		managerGroup.GET("/orders/:id/candidates", a.AssignmentHandler.Candidates)
		managerGroup.GET("/drivers", a.DriverHandler.List)
		managerGroup.GET("/drivers/:id/location", a.ManagerHandler.DriverLocation)
		managerGroup.GET("/locations", a.ManagerHandler.Locations)
		managerGroup.GET("/overview", a.ManagerHandler.Overview)
		managerGroup.GET("/issues", a.ManagerHandler.OpenIssues)

		mutations := managerGroup.Group("")
		mutations.Use(middleware.Idempotency(a.IdempotencyStore))
		{
			mutations.POST("/orders", a.OrderHandler.Create)
			mutations.POST("/orders/:id/rating", a.OrderHandler.Rate)
			mutations.POST("/orders/:id/auto-assign", a.AssignmentHandler.AutoAssign)
			mutations.POST("/drivers", a.DriverHandler.Register)
		}
	}
}
