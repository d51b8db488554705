// Package txn defines the transaction-manager capability shared by
// per-data-source managers and the chained manager that fronts several of
// them.
package txn

import (
	"context"
	"errors"
)

// ErrHeuristicCompletion is returned when a chained commit fails after at
// least one underlying transaction already committed. The outcome across
// managers is mixed and must be reconciled by the caller.
var ErrHeuristicCompletion = errors.New("heuristic completion: transaction partially committed")

// Manager begins transactions against a single resource.
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open transaction.
type Tx interface {
	Commit() error
	Rollback() error
}

// DistributedManager is a Manager that already coordinates transactions
// across several resources. A chained manager is never put in front of one.
type DistributedManager interface {
	Manager
	Distributed()
}
