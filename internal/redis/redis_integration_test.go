package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"dispatch-engine/internal/redis"
	"dispatch-engine/internal/tracking"
)

type RedisIntegrationTestSuite struct {
	suite.Suite
	container testcontainers.Container
	client    *goredis.Client
}

func TestRedisIntegration(t *testing.T) {
	if testing.Short() || os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("skipping integration test; set INTEGRATION_TEST=1 with a reachable Docker daemon")
	}
	suite.Run(t, new(RedisIntegrationTestSuite))
}

func (s *RedisIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	endpoint, err := container.Endpoint(ctx, "")
	s.Require().NoError(err)

	client, err := redis.Connect(ctx, redis.Options{Addr: endpoint})
	s.Require().NoError(err)
	s.client = client
}

func (s *RedisIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *RedisIntegrationTestSuite) SetupTest() {
	s.Require().NoError(s.client.FlushDB(context.Background()).Err())
}

func (s *RedisIntegrationTestSuite) TestLocationCache_StoresPositionedRecords() {
	ctx := context.Background()
	cache := redis.NewDriverLocationCache(s.client, 60)
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	err := cache.Handle(ctx, tracking.Event{
		Type:     tracking.EventLocationUpdate,
		DriverID: "drv-1",
		Payload: tracking.LocationRecord{
			DriverID:   "drv-1",
			Latitude:   -26.2,
			Longitude:  28.04,
			Positioned: true,
			Status:     tracking.StatusOnline,
			Timestamp:  at,
		},
	})
	s.Require().NoError(err)

	loc, ok, err := cache.LastLocation(ctx, "drv-1")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.InDelta(-26.2, loc.Lat, 1e-9)
	s.InDelta(28.04, loc.Lng, 1e-9)

	cached, err := cache.Get(ctx, "drv-1")
	s.Require().NoError(err)
	s.Equal("ONLINE", cached.Status)
	s.True(cached.Timestamp.Equal(at))

	ttl, err := s.client.TTL(ctx, "driver:location:drv-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisIntegrationTestSuite) TestLocationCache_KeepsPositionOnDisconnect() {
	ctx := context.Background()
	cache := redis.NewDriverLocationCache(s.client, 60)
	seen := time.Date(2026, 4, 2, 10, 5, 0, 0, time.UTC)

	err := cache.Handle(ctx, tracking.Event{
		Type:     tracking.EventDriverDisconnected,
		DriverID: "drv-1",
		Payload: tracking.ConnectionPayload{
			ConnectionID: "conn-1",
			LastSeen:     &seen,
			Record: &tracking.LocationRecord{
				DriverID: "drv-1", Latitude: 1, Longitude: 2, Positioned: true,
				Status: tracking.StatusOffline, Timestamp: seen,
			},
		},
	})
	s.Require().NoError(err)

	cached, err := cache.Get(ctx, "drv-1")
	s.Require().NoError(err)
	s.Require().NotNil(cached)
	s.Equal("OFFLINE", cached.Status)
}

func (s *RedisIntegrationTestSuite) TestLocationCache_IgnoresUnpositioned() {
	ctx := context.Background()
	cache := redis.NewDriverLocationCache(s.client, 60)

	err := cache.Handle(ctx, tracking.Event{
		Type:     tracking.EventStatusChange,
		DriverID: "drv-2",
		Payload:  tracking.LocationRecord{DriverID: "drv-2", Status: tracking.StatusBreak},
	})
	s.Require().NoError(err)

	_, ok, err := cache.LastLocation(ctx, "drv-2")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisIntegrationTestSuite) TestIdempotencyStore() {
	ctx := context.Background()
	store := redis.NewIdempotencyStore(s.client, 60)
	scope := "POST /orders/:id/transition|id=A"

	got, err := store.Check(ctx, "mgr-1", scope, "key-1")
	s.Require().NoError(err)
	s.Nil(got)

	first := redis.CachedResponse{Status: 201, ContentType: "application/json", Body: []byte(`{"ok":true}`)}
	s.Require().NoError(store.Set(ctx, "mgr-1", scope, "key-1", first))
	s.Require().NoError(store.Set(ctx, "mgr-1", scope, "key-1", redis.CachedResponse{Status: 200, Body: []byte(`{"ok":false}`)}))

	got, err = store.Check(ctx, "mgr-1", scope, "key-1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(201, got.Status)
	s.Equal("application/json", got.ContentType)
	s.JSONEq(`{"ok":true}`, string(got.Body), "first response wins")

	other, err := store.Check(ctx, "mgr-1", "POST /orders/:id/transition|id=B", "key-1")
	s.Require().NoError(err)
	s.Nil(other, "keys are scoped per route and params")
}

func (s *RedisIntegrationTestSuite) TestRateLimiter() {
	ctx := context.Background()
	limiter := redis.NewRateLimiter(s.client, 3, 60)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "sub:drv-1")
		s.Require().NoError(err)
		s.True(ok, "request %d", i+1)
	}
	ok, err := limiter.Allow(ctx, "sub:drv-1")
	s.Require().NoError(err)
	s.False(ok)

	ok, err = limiter.Allow(ctx, "sub:drv-2")
	s.Require().NoError(err)
	s.True(ok, "limits are per key")
}
