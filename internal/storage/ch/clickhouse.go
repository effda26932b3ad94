package ch

import (
	"context"
	"crypto/tls"
	"fmt"

	"catalogbot/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseDB is the audit journal of catalog mutations
type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	if useTLS {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - the catalog_events table is managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	return nil
}

// Record appends a catalog event
func (db *ClickHouseDB) Record(ctx context.Context, event models.CatalogEvent) error {
	err := db.conn.Exec(ctx,
		`INSERT INTO catalog_events (at, action, product_id, title, actor) VALUES (?, ?, ?, ?, ?)`,
		event.At, event.Action, event.ProductID, event.Title, event.Actor)
	if err != nil {
		return fmt.Errorf("failed to record catalog event: %w", err)
	}
	return nil
}

// LastEvents returns the last N events, newest first
func (db *ClickHouseDB) LastEvents(ctx context.Context, limit int) ([]models.CatalogEvent, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT at, action, product_id, title, actor FROM catalog_events ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get last events: %w", err)
	}
	defer rows.Close()

	var events []models.CatalogEvent
	for rows.Next() {
		var event models.CatalogEvent
		if err := rows.Scan(&event.At, &event.Action, &event.ProductID, &event.Title, &event.Actor); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Ping checks that the server responds
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
