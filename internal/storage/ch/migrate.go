package ch

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/pressly/goose/v3"
)

// DSN builds the database/sql connection string for the clickhouse driver
func DSN(host string, port int, database, user, password string, useTLS bool) string {
	dsn := fmt.Sprintf("clickhouse://%s@%s:%d/%s?dial_timeout=10s&max_execution_time=60",
		url.UserPassword(user, password).String(), host, port, database)
	if useTLS {
		dsn += "&secure=true"
	}
	return dsn
}

// OpenSQL opens and pings a database/sql handle for goose
func OpenSQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return db, nil
}

// Migrate applies every pending migration found in dir
func Migrate(db *sql.DB, dir string) error {
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
