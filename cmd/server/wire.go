package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"dispatch-engine/config"
	"dispatch-engine/internal/assignment"
	"dispatch-engine/internal/auth"
	"dispatch-engine/internal/common"
	"dispatch-engine/internal/delivery"
	"dispatch-engine/internal/driver"
	"dispatch-engine/internal/earning"
	"dispatch-engine/internal/issue"
	"dispatch-engine/internal/jwt"
	"dispatch-engine/internal/manager"
	"dispatch-engine/internal/order"
	"dispatch-engine/internal/redis"
	"dispatch-engine/internal/repo/postgres"
	"dispatch-engine/internal/rmq"
	"dispatch-engine/internal/tracking"
	"dispatch-engine/internal/tracking/ws"
)

type AppContext struct {
	DB     *sqlx.DB
	Config *config.Config
	Redis  *goredis.Client
	Router *gin.Engine
	Logger *slog.Logger

	// Infrastructure
	JWTService       *jwt.Service
	LocationCache    *redis.DriverLocationCache
	IdempotencyStore *redis.IdempotencyStore
	RateLimiter      *redis.RateLimiter
	RabbitMQ         *rmq.RabbitMQ
	Hub              *tracking.Hub
	AutoAssignJob    *assignment.AutoAssignJob

	AuthHandler       *auth.Handler
	OrderHandler      *order.Handler
	DriverHandler     *driver.Handler
	EarningHandler    *earning.Handler
	AssignmentHandler *assignment.Handler
	ManagerHandler    *manager.Handler
	WSHandler         *ws.Handler

	OrderService      order.Service
	DriverService     driver.Service
	AssignmentService assignment.Service

	stopHub context.CancelFunc
}

func wireApp(cfg *config.Config, logger *slog.Logger) (*AppContext, error) {
	// ── Postgres ──
	db, err := postgres.Connect(cfg.Postgres.DSN(), postgres.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrationsUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// ── Redis ──
	rdb, err := redis.Connect(context.Background(), redis.Options{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	// ── Infrastructure ──
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	locationCache := redis.NewDriverLocationCache(rdb, cfg.Tracking.LocationCacheTTLSec)
	idempotencyStore := redis.NewIdempotencyStore(rdb, cfg.Tracking.IdempotencyTTLSec)
	rateLimiter := redis.NewRateLimiter(rdb, cfg.RateLimiter.MaxRequests, cfg.RateLimiter.WindowSeconds)
	txManager := postgres.NewTxManager(db)

	var routes order.RouteEstimator
	if cfg.Mapbox.AccessToken != "" {
		routes = common.NewMapboxClient(cfg.Mapbox.BaseURL, cfg.Mapbox.AccessToken)
	}

	// ── Repositories ──
	orderRepo := order.NewOrderRepository()
	driverRepo := driver.NewDriverRepository()
	earningRepo := earning.NewEarningRepository()
	issueRepo := issue.NewIssueRepository()

	// ── Location hub ──
	sinks := []tracking.Sink{locationCache, driver.NewPresenceSink(driverRepo, db)}
	var broker *rmq.RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		broker, err = rmq.Connect(cfg.RabbitMQ.URL, logger)
		if err != nil {
			rdb.Close()
			db.Close()
			return nil, err
		}
		exporter, err := rmq.NewEventExporter(broker.Chan, cfg.RabbitMQ.Exchange)
		if err != nil {
			broker.Close()
			rdb.Close()
			db.Close()
			return nil, err
		}
		sinks = append(sinks, exporter)
	}
	hub := tracking.NewHub(
		tracking.WithConnBuffer(cfg.Tracking.ConnBuffer),
		tracking.WithSinks(cfg.Tracking.SinkBuffer, sinks...),
		tracking.WithLogger(logger),
	)
	locator := tracking.NewLocator(hub, locationCache)

	// ── Services ──
	tracker := issue.NewTracker(issueRepo, db)
	orderService := order.NewOrderService(order.Deps{
		Repo:     orderRepo,
		DB:       db,
		Tx:       txManager,
		Ledger:   delivery.NewLedger(driverRepo, earningRepo),
		Issues:   tracker,
		Locator:  locator,
		Notifier: hub,
	}, order.Config{GeofenceRadiusM: cfg.Dispatch.GeofenceRadiusM})

	driverService := driver.NewDriverService(driverRepo, db)
	earningService := earning.NewEarningService(earningRepo, db)
	assignmentService := assignment.NewAssignmentService(assignment.Deps{
		Orders:   orderRepo,
		Drivers:  driverRepo,
		Tx:       txManager,
		Dispatch: orderService,
		Locator:  locator,
	}, assignment.Config{NotifyCount: cfg.Dispatch.NotifyCount})
	managerService := manager.NewService(hub, orderService, tracker)
	authService := auth.NewAuthService(jwtService)

	var autoAssign *assignment.AutoAssignJob
	if cfg.Dispatch.AutoAssign {
		autoAssign = assignment.NewAutoAssignJob(assignmentService, orderService, cfg.Dispatch.AutoAssignSchedule, logger)
	}

	// ── Handlers ──
	router := gin.New()

	return &AppContext{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Router: router,
		Logger: logger,

		JWTService:       jwtService,
		LocationCache:    locationCache,
		IdempotencyStore: idempotencyStore,
		RateLimiter:      rateLimiter,
		RabbitMQ:         broker,
		Hub:              hub,
		AutoAssignJob:    autoAssign,

		OrderService:      orderService,
		DriverService:     driverService,
		AssignmentService: assignmentService,

		AuthHandler:       auth.NewHandler(authService),
		OrderHandler:      order.NewHandler(orderService, locator, routes),
		DriverHandler:     driver.NewHandler(driverService),
		EarningHandler:    earning.NewHandler(earningService),
		AssignmentHandler: assignment.NewHandler(assignmentService),
		ManagerHandler:    manager.NewHandler(managerService),
		WSHandler:         ws.NewHandler(hub, jwtService, cfg.CORS.AllowedOrigins, logger),
	}, nil
}

// Start launches the hub's sink loop and the auto-assign job.
func (a *AppContext) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopHub = cancel
	go a.Hub.Run(ctx)

	if a.AutoAssignJob != nil {
		if err := a.AutoAssignJob.Start(); err != nil {
			return fmt.Errorf("auto-assign job: %w", err)
		}
	}
	return nil
}

func (a *AppContext) Close() {
	if a.AutoAssignJob != nil {
		a.AutoAssignJob.Stop()
	}
	if a.stopHub != nil {
		a.stopHub()
	}
	if a.RabbitMQ != nil {
		a.RabbitMQ.Close()
	}
	a.DB.Close()
	a.Redis.Close()
}

func (a *AppContext) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	healthy := true

	if err := postgres.Ping(ctx, a.DB); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": checks,
		"pool":   postgres.GetPoolMetrics(a.DB),
		"hub":    a.Hub.Stats(),
	})
}
