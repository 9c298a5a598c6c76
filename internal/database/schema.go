package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Statements returns the idempotent bootstrap DDL for driver ("mysql" or
// "postgres"), one statement per element.
func Statements(driver string) ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + driver + ".sql")
	if err != nil {
		return nil, fmt.Errorf("no schema for driver %q: %w", driver, err)
	}

	var b strings.Builder
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out, nil
}

// MigrateMySQL applies the bootstrap schema to db.
func MigrateMySQL(ctx context.Context, db *sql.DB) error {
	stmts, err := Statements("mysql")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply mysql schema: %w", err)
		}
	}
	return nil
}

// MigratePostgres applies the bootstrap schema through the pool.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	stmts, err := Statements("postgres")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}
