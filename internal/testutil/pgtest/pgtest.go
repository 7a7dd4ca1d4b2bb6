// Package pgtest starts a throwaway PostgreSQL container for repository tests.
package pgtest

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/scentbox/internal/platform/db"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// DockerHost is where published container ports are reachable.
func DockerHost() string {
	return getEnv("DOCKERTEST_HOST", "localhost")
}

// StartupPostgreSQL runs postgres in docker, migrates every model and returns a connection.
// The test is skipped in -short mode or when no docker daemon is reachable.
func StartupPostgreSQL(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres-backed test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = 90 * time.Second

	resource, err := pool.Run("postgres", "16-alpine", []string{
		"POSTGRES_PASSWORD=postgres",
		"POSTGRES_DB=scentbox",
	})
	require.NoError(t, err, "start postgres")
	t.Cleanup(func() {
		require.NoError(t, pool.Purge(resource), "purge resource %s", resource.Container.Name)
	})

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/scentbox?sslmode=disable",
		DockerHost(), resource.GetPort("5432/tcp"))

	var orm *gorm.DB
	// the container accepts connections a few seconds after it starts
	err = pool.Retry(func() error {
		orm, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard, TranslateError: true})
		if err != nil {
			return err
		}
		d, err := orm.DB()
		if err != nil {
			return err
		}
		return d.Ping()
	})
	require.NoError(t, err, "wait for postgres connection")

	require.NoError(t, db.AutoMigrate(zap.NewNop().Sugar(), orm), "migrate")
	return orm
}
