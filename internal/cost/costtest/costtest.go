// Package costtest wires the cost service against an in-memory SQLite
// database for tests.
package costtest

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/azurecost/internal/clock"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"github.com/smallbiznis/azurecost/internal/cost/repository"
	"github.com/smallbiznis/azurecost/internal/cost/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory database with the cost schema. The pool
// is pinned to one connection so the memory database outlives idle churn.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	return open(t, dsn, 1)
}

// NewFileDB opens a database file under t.TempDir() with a pool of conns
// connections. Transactions take the write lock up front and wait on it.
func NewFileDB(t testing.TB, conns int) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cost.db")
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	return open(t, dsn, conns)
}

func open(t testing.TB, dsn string, conns int) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(
		&costdomain.BillingPeriod{},
		&costdomain.AzureService{},
		&costdomain.ServiceCost{},
		&costdomain.DailyCost{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_billing_period_current ON billing_period (is_current) WHERE is_current`,
	).Error; err != nil {
		t.Fatalf("current period index: %v", err)
	}
	return conn
}

func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// NewService builds the cost service over conn. A nil repo uses the SQL
// repository.
func NewService(t testing.TB, conn *gorm.DB, c clock.Clock, repo costdomain.Repository) costdomain.Service {
	t.Helper()
	if repo == nil {
		repo = repository.Provide()
	}
	return service.New(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: NewNode(t),
		Repo:  repo,
		Clock: c,
	})
}

// Count returns the row count of table.
func Count(t testing.TB, conn *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := conn.Table(table).Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
