//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

var testPool *pgxpool.Pool

// ledgerTables are the tables created by deploy/postgres/init.sql, children
// first so TRUNCATE order never matters.
var ledgerTables = []string{"transactions", "subscriptions", "users"}

// schemaPath resolves init.sql relative to this file rather than the working
// directory.
func schemaPath() string {
	_, here, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(here), "..", "..", "..", "..", "deploy", "postgres", "init.sql")
}

// startPostgres runs a throwaway postgres:14 container and returns its DSN and
// a stop func. LEDGER_TEST_DATABASE_URL skips docker and uses that database.
func startPostgres() (string, func(), error) {
	if dsn := os.Getenv("LEDGER_TEST_DATABASE_URL"); dsn != "" {
		return dsn, func() {}, nil
	}
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_DB=ledger",
		"-e", "POSTGRES_USER=ledger",
		"-e", "POSTGRES_PASSWORD=ledger",
		"postgres:14",
	).Output()
	if err != nil {
		return "", nil, fmt.Errorf("docker run postgres:14: %w", err)
	}
	id := strings.TrimSpace(string(out))
	stop := func() { _ = exec.Command("docker", "stop", id).Run() }

	port, err := exec.Command("docker", "port", id, "5432/tcp").Output()
	if err != nil {
		stop()
		return "", nil, fmt.Errorf("docker port: %w", err)
	}
	// "127.0.0.1:49154"
	addr := strings.TrimSpace(strings.SplitN(string(port), "\n", 2)[0])
	return "postgres://ledger:ledger@" + addr + "/ledger?sslmode=disable", stop, nil
}

func TestMain(m *testing.M) {
	ctx := context.Background()
	dsn, stop, err := startPostgres()
	if err != nil {
		log.Fatalf("postgres: %v (is docker running?)", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		testPool, err = pgxpool.Connect(ctx, dsn)
		if err == nil {
			if err = testPool.Ping(ctx); err == nil {
				break
			}
			testPool.Close()
		}
		if time.Now().After(deadline) {
			stop()
			log.Fatalf("postgres never became ready: %v", err)
		}
		time.Sleep(time.Second)
	}

	schema, err := os.ReadFile(schemaPath())
	if err != nil {
		stop()
		log.Fatalf("read schema: %v", err)
	}
	if _, err := testPool.Exec(ctx, string(schema)); err != nil {
		stop()
		log.Fatalf("apply schema: %v", err)
	}

	code := m.Run()
	testPool.Close()
	stop()
	os.Exit(code)
}

func cleanup(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		"TRUNCATE "+strings.Join(ledgerTables, ", ")+" RESTART IDENTITY CASCADE")
	if err != nil {
		t.Fatalf("truncate ledger tables: %v", err)
	}
}
