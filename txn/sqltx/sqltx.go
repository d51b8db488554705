// Package sqltx adapts database/sql to the txn.Manager capability, one
// manager per data source.
package sqltx

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ARTM2000/oak/v2/txn"
)

// Manager begins transactions on a single *sql.DB.
type Manager struct {
	name string
	db   *sql.DB
	opts *sql.TxOptions
}

// New returns a manager for db. opts may be nil.
func New(name string, db *sql.DB, opts *sql.TxOptions) *Manager {
	return &Manager{name: name, db: db, opts: opts}
}

// Open opens and pings a database handle.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Begin starts a transaction. The returned txn.Tx is the *sql.Tx itself.
func (m *Manager) Begin(ctx context.Context) (txn.Tx, error) {
	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return nil, fmt.Errorf("data source %q: %w", m.name, err)
	}
	return tx, nil
}

// DB returns the underlying handle.
func (m *Manager) DB() *sql.DB { return m.db }

func (m *Manager) String() string { return "sqltx(" + m.name + ")" }
