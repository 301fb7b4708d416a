package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm", gorm.ErrDuplicatedKey, true},
		{"pgconn", &pgconn.PgError{Code: "23505"}, true},
		{"pg other code", &pgconn.PgError{Code: "40001"}, false},
		{"sqlite", errors.New("UNIQUE constraint failed: azure_services.name"), true},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestIsSerializationErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg duplicate", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSerializationErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWaitForDBReachable(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := WaitForDB(context.Background(), conn, 3, time.Millisecond, zap.NewNop()); err != nil {
		t.Fatalf("expected reachable db, got %v", err)
	}
}

func TestWaitForDBGivesUp(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	_ = sqlDB.Close()

	err = WaitForDB(context.Background(), conn, 2, time.Millisecond, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for closed pool")
	}
}

func TestDialectUnsupported(t *testing.T) {
	for _, typ := range []string{"oracle", "mysql", ""} {
		if _, err := Dialect(Config{Type: typ}); err == nil {
			t.Fatalf("expected unsupported dialect error for %q", typ)
		}
	}
}

func TestDialectSupported(t *testing.T) {
	cases := map[string]string{"postgres": "postgres", "sqlite": "sqlite"}
	for typ, want := range cases {
		d, err := Dialect(Config{Type: typ, Host: "localhost", Port: "5432", Name: "azurecost"})
		if err != nil {
			t.Fatalf("dialect %s: %v", typ, err)
		}
		if d.Name() != want {
			t.Fatalf("dialect %s: expected name %s, got %s", typ, want, d.Name())
		}
	}
}
