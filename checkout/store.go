package checkout

import (
	"context"
	"time"
)

// Store persists sessions and the orders they produce.
//
// Update is the only write path for an existing session. It hands fn a private
// copy of the record; when fn returns an error nothing is written. At most one
// Update per id runs at a time, and a caller that cannot obtain the record
// before its context is done receives ErrSessionBusy. When the updated session
// carries an order that the stored one did not, the order and its index are
// written in the same unit of work.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// Purge deletes sessions for which Session.Purgeable(now, cutoff) holds
	// and reports how many were removed.
	Purge(ctx context.Context, now, cutoff time.Time) (int, error)
}

// CheckOrderWrite validates the order transition between a stored session and
// its update. Store implementations call it before committing.
func CheckOrderWrite(before, after *Session) (created bool, err error) {
	switch {
	case before.Order == nil && after.Order == nil:
		return false, nil
	case before.Order == nil:
		if after.OrderID != after.Order.ID || after.Status != StatusCompleted {
			return false, ErrOrderImmutable
		}
		return true, nil
	case after.Order == nil || *after.Order != *before.Order:
		return false, ErrOrderImmutable
	}
	return false, nil
}
