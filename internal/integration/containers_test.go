//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"filmetl/internal/config"
)

const (
	dbName     = "imdb"
	dbUser     = "films"
	dbPassword = "secret"

	mysqlImage    = "mysql:8.0.36"
	mongoImage    = "mongo:7"
	postgresImage = "postgres:17-alpine"
)

func baseConfig() *config.Config {
	return &config.Config{
		Database: dbName,
		Tables: config.Tables{
			Basics:  "title_basics",
			Ratings: "title_ratings",
			Dates:   "title_dates",
		},
		InsertBatchSize: 2,
	}
}

func startMySQL(t *testing.T, ctx context.Context, cfg *config.Config) {
	t.Helper()

	c, err := tcmysql.Run(ctx, mysqlImage,
		tcmysql.WithDatabase(dbName),
		tcmysql.WithUsername(dbUser),
		tcmysql.WithPassword(dbPassword),
	)
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start mysql container")

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	cfg.MySQLUser = dbUser
	cfg.MySQLPassword = dbPassword
	cfg.MySQLAddress = fmt.Sprintf("%s:%s", host, port.Port())
}

func startMongo(t *testing.T, ctx context.Context, cfg *config.Config) {
	t.Helper()

	c, err := tcmongo.Run(ctx, mongoImage,
		tcmongo.WithUsername(dbUser),
		tcmongo.WithPassword(dbPassword),
	)
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start mongodb container")

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg.MongoAddress = host
	cfg.MongoPort = p
	cfg.MongoUser = dbUser
	cfg.MongoPassword = dbPassword
}

func startPostgres(t *testing.T, ctx context.Context, cfg *config.Config) {
	t.Helper()

	c, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername(dbUser),
		tcpostgres.WithPassword(dbPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start postgres container")

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	cfg.PostgresDSN = dsn
}

// writeDatasets writes the six dataset files into a temp dir and returns it.
func writeDatasets(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}
