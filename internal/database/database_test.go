package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			stmts, err := Statements(driver)
			require.NoError(t, err)
			require.NotEmpty(t, stmts)
			joined := strings.Join(stmts, "\n")
			for _, table := range []string{"users", "refresh_tokens", "resources", "events", "bookings"} {
				assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" ")
			}
			assert.Contains(t, joined, "ix_bookings_event_status")
			for _, s := range stmts {
				assert.True(t, strings.HasPrefix(s, "CREATE"), s)
				assert.NotContains(t, s, "--")
			}
		})
	}

	_, err := Statements("sqlite")
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLConfig{User: "app", Password: "secret", Host: "db", Port: "3306", Name: "booking"}.DSN()
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db:3306)/booking?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
