// Copyright (c) 2025-2026, the ikuyo-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package database provides a single-writer SQLite layer: reads use a
// pooled connection, writes are serialized through one dedicated connection
// and a channel-fed writer goroutine. This avoids SQLITE_BUSY under
// concurrent writers without needing a mutex around every statement, and
// keeps WAL checkpointing deterministic at shutdown.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type writeReq struct {
	ctx   context.Context
	query string
	args  []any
	resCh chan writeRes
}

type writeRes struct {
	result sql.Result
	err    error
}

// DB wraps a SQLite connection pool plus a dedicated write connection.
type DB struct {
	conn      *sql.DB
	writeConn *sql.Conn
	writeCh   chan writeReq

	stop      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup
	closing   atomic.Bool
	closeErr  error
}

const (
	defaultBusyTimeout     = 5 * time.Second
	connectionSetupTimeout = 5 * time.Second
	writeChannelBuffer     = 256
)

func applyConnectionPragmas(ctx context.Context, conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout/time.Millisecond)),
		"PRAGMA analysis_limit = 400",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return nil
}

// New opens (creating if necessary) the SQLite database at path, applies
// pragmas, runs migrations, and starts the write-serialization goroutine.
func New(path string) (*DB, error) {
	log.Info().Str("path", path).Msg("opening database")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}

	// Single connection during migration to avoid stale-schema races.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel()
	if err := applyConnectionPragmas(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{
		conn:    conn,
		writeCh: make(chan writeReq, writeChannelBuffer),
		stop:    make(chan struct{}),
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	conn.SetMaxOpenConns(0)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(0)

	ctx2, cancel2 := context.WithTimeout(context.Background(), connectionSetupTimeout)
	defer cancel2()
	writeConn, err := conn.Conn(ctx2)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire write connection: %w", err)
	}
	db.writeConn = writeConn

	db.writerWG.Add(1)
	go db.writerLoop()

	return db, nil
}

func isWriteQuery(query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	upper := strings.ToUpper(q)
	for _, prefix := range []string{"INSERT", "UPDATE", "DELETE", "REPLACE"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// ExecContext routes write statements through the single writer goroutine;
// reads go straight to the pooled connection. Do not use this for
// statements with a RETURNING clause — use QueryRowContext instead.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !isWriteQuery(query) {
		return db.conn.ExecContext(ctx, query, args...)
	}
	if db.closing.Load() {
		return nil, fmt.Errorf("database is closing")
	}

	resCh := make(chan writeRes, 1)
	req := writeReq{ctx: ctx, query: query, args: args, resCh: resCh}
	select {
	case db.writeCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-db.stop:
		return nil, fmt.Errorf("database is closing")
	}

	res := <-resCh
	return res.result, res.err
}

// QueryContext always reads via the pooled connection.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext always reads via the pooled connection. Statements with a
// RETURNING clause should go through the write connection instead when they
// mutate state — see WriteQueryRowContext.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// WriteQueryRowContext executes a single mutating statement with a
// RETURNING clause on the dedicated write connection, serialized the same
// way as ExecContext, but without going through the writer goroutine since
// the caller needs the *sql.Row synchronously. Safe to call concurrently:
// the underlying driver connection still executes one statement at a time.
func (db *DB) WriteQueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.writeConn.QueryRowContext(ctx, query, args...)
}

func (db *DB) writerLoop() {
	defer db.writerWG.Done()
	for {
		select {
		case req, ok := <-db.writeCh:
			if !ok {
				return
			}
			res, err := db.writeConn.ExecContext(req.ctx, req.query, req.args...)
			req.resCh <- writeRes{result: res, err: err}
		case <-db.stop:
			// Drain remaining queued writes before exiting so commits already
			// accepted from callers are not silently dropped.
			for {
				select {
				case req := <-db.writeCh:
					res, err := db.writeConn.ExecContext(req.ctx, req.query, req.args...)
					req.resCh <- writeRes{result: res, err: err}
				default:
					return
				}
			}
		}
	}
}

// BeginTx starts a transaction on the write connection. All repository
// batched-upsert paths use this so the three bulk inserts in a crawl flush
// share one transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.writeConn.BeginTx(ctx, opts)
}

// Conn exposes the pooled read connection for callers that need it directly
// (e.g. offline tooling).
func (db *DB) Conn() *sql.DB { return db.conn }

// Checkpoint runs a full WAL checkpoint, ensuring durability of all
// committed writes before the process exits.
func (db *DB) Checkpoint(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	return err
}

// Close stops accepting new writes, drains in-flight ones, checkpoints the
// WAL, and closes both connections.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		db.closing.Store(true)
		close(db.stop)
		db.writerWG.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), connectionSetupTimeout)
		defer cancel()
		if err := db.Checkpoint(ctx); err != nil {
			log.Warn().Err(err).Msg("wal checkpoint at close failed")
		}

		if err := db.writeConn.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close write connection")
		}
		db.closeErr = db.conn.Close()
	})
	return db.closeErr
}

func (db *DB) migrate() error {
	ctx := context.Background()
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var exists int
		row := db.conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM migrations WHERE filename = ?", name)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (filename) VALUES (?)", name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("applied migration")
	}

	return nil
}
