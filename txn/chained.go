package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ChainedManager starts one transaction per underlying manager and completes
// them in reverse order (best-effort one-phase commit). The managed list can
// grow after construction with Add.
type ChainedManager struct {
	mu       sync.RWMutex
	managers []Manager
}

// NewChainedManager returns a manager fronting managers, in order.
func NewChainedManager(managers []Manager) *ChainedManager {
	return &ChainedManager{managers: append([]Manager(nil), managers...)}
}

// Add appends managers to the managed list.
func (m *ChainedManager) Add(managers ...Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.managers = append(m.managers, managers...)
}

// Managers returns a copy of the managed list.
func (m *ChainedManager) Managers() []Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Manager(nil), m.managers...)
}

// Begin starts a transaction on every managed manager in list order. If one
// fails, the transactions already started are rolled back.
func (m *ChainedManager) Begin(ctx context.Context) (Tx, error) {
	managers := m.Managers()
	if len(managers) == 0 {
		return nil, errors.New("chained manager has no managers")
	}

	parts := make([]Tx, 0, len(managers))
	for i, mgr := range managers {
		tx, err := mgr.Begin(ctx)
		if err != nil {
			rbErr := rollbackAll(parts)
			return nil, errors.Join(fmt.Errorf("begin on manager %d: %w", i, err), rbErr)
		}
		parts = append(parts, tx)
	}

	return &ChainedTx{parts: parts}, nil
}

// ChainedTx is the transaction returned by [ChainedManager.Begin].
type ChainedTx struct {
	parts []Tx
}

// Parts returns the underlying transactions in manager order.
func (t *ChainedTx) Parts() []Tx {
	return append([]Tx(nil), t.parts...)
}

// Commit commits the parts last to first. When a commit fails the remaining
// parts are rolled back; if any part had already committed the error wraps
// [ErrHeuristicCompletion].
func (t *ChainedTx) Commit() error {
	for i := len(t.parts) - 1; i >= 0; i-- {
		if err := t.parts[i].Commit(); err != nil {
			rbErr := rollbackAll(t.parts[:i])
			if i < len(t.parts)-1 {
				err = fmt.Errorf("%w: commit of part %d: %w", ErrHeuristicCompletion, i, err)
			} else {
				err = fmt.Errorf("commit of part %d: %w", i, err)
			}
			return errors.Join(err, rbErr)
		}
	}
	return nil
}

// Rollback rolls back every part, last to first, joining the errors.
func (t *ChainedTx) Rollback() error {
	return rollbackAll(t.parts)
}

func rollbackAll(parts []Tx) error {
	var errs []error
	for i := len(parts) - 1; i >= 0; i-- {
		if err := parts[i].Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("rollback of part %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
