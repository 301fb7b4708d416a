package migration

import (
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqliteDialect rewrites the Postgres-only constructs of the embedded
// schema. Everything else, constraints included, runs unchanged.
var sqliteDialect = strings.NewReplacer(
	"DEFAULT NOW()", "DEFAULT CURRENT_TIMESTAMP",
	" USING btree", "",
)

func applySchema(t *testing.T) *sql.DB {
	t.Helper()

	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_cost_schema.up.sql")
	require.NoError(t, err)

	dsn := "file:" + filepath.Join(t.TempDir(), "schema.db") + "?_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range strings.Split(sqliteDialect.Replace(string(raw)), ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func seedParents(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO azure_service (id, name) VALUES (1, 'Storage')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO billing_period (id, start_date, end_date, is_current)
		VALUES (10, '2024-03-01T00:00:00Z', '2024-03-31T23:59:59Z', TRUE)`)
	require.NoError(t, err)
}

func TestSchemaRejectsInvalidCosts(t *testing.T) {
	db := applySchema(t)
	seedParents(t, db)

	cases := []struct {
		name string
		stmt string
	}{
		{"negative service cost", `INSERT INTO service_cost (id, service_id, billing_period_id, currency_code, cost_amount, fetched_at)
			VALUES (100, 1, 10, 'USD', -0.01, '2024-03-15T10:00:00Z')`},
		{"short service currency", `INSERT INTO service_cost (id, service_id, billing_period_id, currency_code, cost_amount, fetched_at)
			VALUES (101, 1, 10, 'US', 1, '2024-03-15T10:00:00Z')`},
		{"negative daily cost", `INSERT INTO daily_cost (id, billing_period_id, usage_date, currency_code, cost_amount, fetched_at)
			VALUES (200, 10, '2024-03-14', 'USD', -5, '2024-03-15T10:00:00Z')`},
		{"long daily currency", `INSERT INTO daily_cost (id, billing_period_id, usage_date, currency_code, cost_amount, fetched_at)
			VALUES (201, 10, '2024-03-14', 'USDX', 5, '2024-03-15T10:00:00Z')`},
		{"unknown service", `INSERT INTO service_cost (id, service_id, billing_period_id, currency_code, cost_amount, fetched_at)
			VALUES (102, 99, 10, 'USD', 1, '2024-03-15T10:00:00Z')`},
		{"inverted period", `INSERT INTO billing_period (id, start_date, end_date)
			VALUES (11, '2024-04-30T00:00:00Z', '2024-04-01T00:00:00Z')`},
		{"second current period", `INSERT INTO billing_period (id, start_date, end_date, is_current)
			VALUES (12, '2024-04-01T00:00:00Z', '2024-04-30T23:59:59Z', TRUE)`},
		{"duplicate service name", `INSERT INTO azure_service (id, name) VALUES (2, 'Storage')`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.Exec(tc.stmt)
			assert.Error(t, err)
		})
	}

	_, err := db.Exec(`INSERT INTO service_cost (id, service_id, billing_period_id, currency_code, cost_amount, fetched_at)
		VALUES (103, 1, 10, 'USD', 0, '2024-03-15T10:00:00Z')`)
	assert.NoError(t, err, "zero cost is valid")
}

func TestSchemaCascadesPeriodDelete(t *testing.T) {
	db := applySchema(t)
	seedParents(t, db)

	_, err := db.Exec(`INSERT INTO service_cost (id, service_id, billing_period_id, currency_code, cost_amount, fetched_at)
		VALUES (100, 1, 10, 'USD', 12.50, '2024-03-15T10:00:00Z')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO daily_cost (id, billing_period_id, usage_date, currency_code, cost_amount, fetched_at)
		VALUES (200, 10, '2024-03-14', 'USD', 3.25, '2024-03-15T10:00:00Z')`)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM billing_period WHERE id = 10`)
	require.NoError(t, err)

	for _, table := range []string{"service_cost", "daily_cost"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
		assert.Zero(t, n, table)
	}

	var services int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM azure_service`).Scan(&services))
	assert.Equal(t, 1, services)
}
