// Package queries is the hand-maintained equivalent of a sqlc-generated
// query layer: one Go type per table row, one method per hand-written SQL
// statement, all driven through the database/sql DBTX interface so the
// same Queries can run against a *sql.DB or a *sql.Tx.
package queries

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries wraps a DBTX with the core's hand-written statements.
type Queries struct {
	db DBTX
}

// New builds a Queries bound to db (a *sql.DB for normal operation, or a
// *sql.Tx when a repository call participates in a transaction).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx, for callers that started a
// transaction via Repositories.BeginTx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
