package postgres

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guarzo/olxbuddy/internal/testutil"
)

// testDSN is shared by every test in the package. skipReason explains why
// it is empty.
var (
	testDSN    string
	skipReason string
)

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(runWithDatabase(m))
}

// runWithDatabase points the tests at TEST_DATABASE_URL when set, otherwise
// at a disposable postgres container that lives for the whole package run.
func runWithDatabase(m *testing.M) int {
	if testing.Short() {
		skipReason = "skipping postgres tests in short mode"
		return m.Run()
	}
	if dsn := testutil.GetTestDatabaseURL(); dsn != "" {
		testDSN = dsn
		return m.Run()
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("olxbuddy"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		skipReason = fmt.Sprintf("postgres container unavailable: %v", err)
		return m.Run()
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("Store: failed to terminate container: %v", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		skipReason = fmt.Sprintf("postgres connection string: %v", err)
		return m.Run()
	}
	testDSN = dsn
	return m.Run()
}
