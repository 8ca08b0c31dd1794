// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/tidewatch/internal/logging"
)

// defaultQueryTimeout bounds queries issued without a deadline.
const defaultQueryTimeout = 30 * time.Second

// DB is the DuckDB analytics archive. It holds a derived copy of the
// observation log for aggregate queries and exports.
type DB struct {
	conn     *sql.DB
	path     string
	location *time.Location
}

// Open opens or creates the archive at path. ":memory:" opens a private
// in-memory database. loc is the zone used for CSV date and time columns.
func Open(path string, loc *time.Location) (*DB, error) {
	if loc == nil {
		loc = time.UTC
	}

	dbDir := filepath.Dir(path)
	if path != ":memory:" && dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create archive directory %s: %w", dbDir, err)
		}
	}

	// Extensions are never needed; disabling autoload avoids network
	// lookups in restricted environments.
	connStr := path + "?access_mode=read_write&threads=2&max_memory=256MB&autoinstall_known_extensions=false&autoload_known_extensions=false"

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// A single connection keeps in-memory databases shared and serialises
	// CGO calls.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: path, location: loc}
	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}

	logging.Info().Str("component", "archive").Str("path", path).Msg("Analytics archive opened")
	return db, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// ensureContext applies the default timeout when ctx has no deadline.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// Path returns the archive location.
func (db *DB) Path() string {
	return db.path
}
