//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tradecoach-platform/tradecoach/internal/api"
	"github.com/tradecoach-platform/tradecoach/internal/auth"
	"github.com/tradecoach-platform/tradecoach/internal/cache"
	"github.com/tradecoach-platform/tradecoach/internal/coach"
	"github.com/tradecoach-platform/tradecoach/internal/config"
	"github.com/tradecoach-platform/tradecoach/internal/provider"
	"github.com/tradecoach-platform/tradecoach/internal/ratelimit"
	"github.com/tradecoach-platform/tradecoach/internal/usage"
	"github.com/tradecoach-platform/tradecoach/internal/worker"
)

// stubProvider stands in for the upstream model: it echoes a canned reply
// and counts calls so tests can assert how often upstream was reached.
type stubProvider struct {
	reply string
	calls atomic.Int64
}

func (p *stubProvider) Complete(ctx context.Context, systemPrompt string, history []provider.Message) (string, error) {
	p.calls.Add(1)
	return p.reply, nil
}

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	JWTManager  *auth.JWTManager
	Provider    *stubProvider
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "tradecoach_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/tradecoach_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Gateway stack on real Redis, stub upstream, no NATS.
	coachCfg := config.CoachConfig{
		BurstLimit:      10,
		BurstWindow:     time.Minute,
		DispatchTimeout: 5 * time.Second,
		CacheTTL:        time.Hour,
		Workers:         2,
		QueueSize:       16,
	}

	prov := &stubProvider{reply: "RSI is a momentum oscillator ranging from 0 to 100."}
	limiter := ratelimit.NewLimiter(redisClient)
	store := cache.NewResponseStore(redisClient, coachCfg.CacheTTL)
	workerPool := worker.NewPool(prov, store, coachCfg.Workers, coachCfg.QueueSize)
	t.Cleanup(workerPool.Stop)

	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", 24*time.Hour)

	coachSvc := coach.NewService(limiter, store, workerPool, prov, nil, coachCfg)
	coachHandler := coach.NewHandler(coachSvc)

	usageRepo := usage.NewRepository(pool)
	usageHandler := usage.NewHandler(usageRepo)

	router := api.NewRouter(pool, redisClient, nil, api.RouterConfig{}, api.HandlerSet{
		Chat:       coachHandler.Chat,
		QueryCount: coachHandler.QueryCount,
		ResetQuota: coachHandler.ResetQuota,

		ListUsage: usageHandler.List,

		AuthMiddleware: auth.Middleware(jwtManager),

		WorkerPoolHealthy: workerPool.Healthy,
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		JWTManager:  jwtManager,
		Provider:    prov,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// AccessToken issues a signed token for the given user and plan.
func AccessToken(t *testing.T, env *TestEnv, userID int64, plan string) string {
	t.Helper()
	token, err := env.JWTManager.GenerateAccessToken(userID, plan)
	if err != nil {
		t.Fatalf("generating access token: %v", err)
	}
	return token
}
