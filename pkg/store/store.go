// Package store persists sequences, executions and step records in SQL.
// Queries are built with ent's dialect builders so the same code runs on
// Postgres in production and sqlite in tests.
package store

import (
	"context"
	"database/sql"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/invoicefollowup/pkg/database"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/metrics"
)

var _ followup.Store = (*Store)(nil)

// Store implements followup.Store over database/sql
type Store struct {
	db      *sql.DB
	dialect string
	logger  logger.Logger
	metrics *metrics.Metrics
}

// New creates a store on an open database client
func New(client *database.Client, log logger.Logger, m *metrics.Metrics) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		db:      client.DB,
		dialect: client.Dialect(),
		logger:  log,
		metrics: m,
	}
}

func (s *Store) sb() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func (s *Store) postgres() bool {
	return s.dialect == dialect.Postgres
}

// observe records how long an operation took
func (s *Store) observe(op string) func() {
	start := time.Now()
	return func() { s.metrics.RecordDBQuery(op, time.Since(start)) }
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// insert runs an INSERT ... RETURNING id
func insert(ctx context.Context, q querier, b *entsql.InsertBuilder) (int64, error) {
	query, args := b.Returning("id").Query()
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
