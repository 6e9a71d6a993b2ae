//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sessionguard/platform/internal/app"
	"github.com/sessionguard/platform/internal/auth"
	"github.com/sessionguard/platform/internal/guard"
	"github.com/sessionguard/platform/internal/infra"
	"github.com/sessionguard/platform/internal/metrics"
	"github.com/sessionguard/platform/internal/policy"
	"github.com/sessionguard/platform/internal/provider"
	"github.com/sessionguard/platform/internal/repository"
)

const TestJWTSecret = "integration-test-secret"

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server *httptest.Server
	Pool   *pgxpool.Pool
	Store  *repository.PgStore
	JWTMgr *auth.JWTManager
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func getSharedPool(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		if err := infra.RunMigrations(dsn, "", logger); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 30
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by
// the real router and TEST_DATABASE_URL. TEST_REDIS_URL switches the
// per-user lock to Redis.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool := getSharedPool(t, dsn)
	store := repository.NewPgStore(pool)
	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	var locker guard.Locker = guard.NewKeyedMutex()
	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		client, err := infra.NewRedisClient(context.Background(), url)
		if err != nil {
			t.Fatalf("connect redis: %v", err)
		}
		t.Cleanup(func() { client.Close() })
		locker = guard.NewRedisLocker(client, guard.RedisLockerOptions{Prefix: "it:lock:"})
	}

	local := provider.NewLocalIdentity(store.AuthUsers())
	router := app.NewRouter(app.RouterDeps{
		Store:       store,
		Identity:    local,
		Credentials: local,
		Locker:      locker,
		Policy:      policy.DefaultConfig(),
		Metrics:     metrics.New(),
		JWTMgr:      jwtMgr,
		Logger:      logger,
		CORSOrigins: []string{"*"},
	})

	server := httptest.NewServer(router)
	env := &TestEnv{
		Server: server,
		Pool:   pool,
		Store:  store,
		JWTMgr: jwtMgr,
		t:      t,
	}

	t.Cleanup(func() {
		server.Close()
		env.CleanAll()
	})

	env.CleanAll()
	return env
}

// CleanAll truncates all tables.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := env.Pool.Exec(ctx,
		`TRUNCATE event_outbox, account_anomaly_logs, user_sessions, user_profiles, auth_users`)
	if err != nil {
		env.t.Fatalf("CleanAll: %v", err)
	}
}
