// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sink mirrors realtime change events into a Postgres table so they
// can be inspected with plain SQL after `rowbase watch --sink` exits.
package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pterm/pterm"

	"rowbase/cli/internal/dsn"
	"rowbase/cli/pkg/realtime"
)

var tablePart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type Options struct {
	DSN string
	// Table may be schema-qualified ("audit.changes").
	Table    string
	MaxConns int32
	// ConnectTimeout bounds the initial ping. Defaults to 5s.
	ConnectTimeout time.Duration
	Logger         *pterm.Logger
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Sink writes change events into one table.
type Sink struct {
	db        execer
	pool      *pgxpool.Pool
	table     pgx.Identifier
	insertSQL string
	log       *pterm.Logger
}

// TableIdentifier splits and checks a possibly schema-qualified table name.
func TableIdentifier(name string) (pgx.Identifier, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("table %q: at most one schema qualifier allowed", name)
	}
	for _, p := range parts {
		if !tablePart.MatchString(p) {
			return nil, fmt.Errorf("table %q: %q is not a valid identifier", name, p)
		}
	}
	return pgx.Identifier(parts), nil
}

func createSQL(table pgx.Identifier) string {
	t := table.Sanitize()
	return `CREATE TABLE IF NOT EXISTS ` + t + ` (
	id          bigserial PRIMARY KEY,
	source      text        NOT NULL,
	event       text        NOT NULL,
	seq         bigint,
	record      jsonb,
	received_at timestamptz NOT NULL DEFAULT now()
)`
}

func insertSQL(table pgx.Identifier) string {
	return `INSERT INTO ` + table.Sanitize() + ` (source, event, seq, record, received_at) VALUES ($1, $2, $3, $4, $5)`
}

// poolConfig turns options into a pool config without connecting.
func poolConfig(opts Options) (*pgxpool.Config, error) {
	normalized, err := dsn.Normalize(opts.DSN)
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse sink DSN: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	} else {
		cfg.MaxConns = 2
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = "rowbase-watch"
	}
	return cfg, nil
}

// Open connects, pings and makes sure the table exists.
func Open(ctx context.Context, opts Options) (*Sink, error) {
	table, err := TableIdentifier(opts.Table)
	if err != nil {
		return nil, err
	}
	cfg, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctxPing, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctxPing, cfg)
	if err != nil {
		return nil, fmt.Errorf("open sink pool: %w", err)
	}
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to sink database: %w", err)
	}
	if _, err := pool.Exec(ctxPing, createSQL(table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create sink table %s: %w", table.Sanitize(), err)
	}

	s := newSink(pool, table, opts.Logger)
	s.pool = pool
	s.log.Debug("sink ready", s.log.Args("table", table.Sanitize(), "max_conns", cfg.MaxConns))
	return s, nil
}

func newSink(db execer, table pgx.Identifier, log *pterm.Logger) *Sink {
	if log == nil {
		log = pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
	}
	return &Sink{db: db, table: table, insertSQL: insertSQL(table), log: log}
}

// Write stores one event.
func (s *Sink) Write(ctx context.Context, ev realtime.ChangeEvent) error {
	var seq any
	if ev.Sequenced {
		seq = int64(ev.Sequence)
	}
	var record any
	if len(ev.Record) > 0 {
		record = []byte(ev.Record)
	}
	_, err := s.db.Exec(ctx, s.insertSQL, ev.Table, string(ev.Type), seq, record, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mirror %s event on %s: %w", ev.Type, ev.Table, err)
	}
	return nil
}

// Consume writes events from ch until it is closed or ctx ends. Failed
// writes are reported to onErr and do not stop the loop. It returns the
// number of events stored.
func (s *Sink) Consume(ctx context.Context, ch <-chan realtime.ChangeEvent, onErr func(error)) int {
	stored := 0
	for {
		select {
		case <-ctx.Done():
			return stored
		case ev, ok := <-ch:
			if !ok {
				return stored
			}
			if err := s.Write(ctx, ev); err != nil {
				s.log.Warn("sink write failed", s.log.Args("table", ev.Table, "error", err))
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			stored++
		}
	}
}

// Table returns the quoted target table.
func (s *Sink) Table() string { return s.table.Sanitize() }

func (s *Sink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
