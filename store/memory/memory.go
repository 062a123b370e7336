// Package memory is an in-process checkout.Store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sumup/ucp/checkout"
)

type record struct {
	// guard holds one token while the record is free.
	guard   chan struct{}
	session *checkout.Session
}

// Store keeps sessions in memory. Updates to one session are serialised;
// updates to different sessions run in parallel.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
	orders   map[string]*checkout.Order
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*record),
		orders:   make(map[string]*checkout.Order),
	}
}

var _ checkout.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, session *checkout.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("%w: %s", checkout.ErrSessionExists, session.ID)
	}
	rec := &record{guard: make(chan struct{}, 1), session: session.Clone()}
	rec.session.Version = 1
	rec.guard <- struct{}{}
	s.sessions[session.ID] = rec
	session.Version = 1
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*checkout.Session, error) {
	rec, err := s.record(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec.session == nil {
		return nil, checkout.ErrSessionNotFound
	}
	return rec.session.Clone(), nil
}

func (s *Store) Update(ctx context.Context, id string, fn func(*checkout.Session) error) (*checkout.Session, error) {
	rec, err := s.record(ctx, id)
	if err != nil {
		return nil, err
	}

	select {
	case <-rec.guard:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", checkout.ErrSessionBusy, id, ctx.Err())
	}
	defer func() { rec.guard <- struct{}{} }()

	s.mu.RLock()
	before := rec.session
	s.mu.RUnlock()
	if before == nil {
		return nil, checkout.ErrSessionNotFound
	}

	next := before.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	created, err := checkout.CheckOrderWrite(before, next)
	if err != nil {
		return nil, err
	}
	next.ID = before.ID
	next.Version = before.Version + 1

	s.mu.Lock()
	rec.session = next
	if created {
		order := *next.Order
		s.orders[order.ID] = &order
	}
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*checkout.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, checkout.ErrOrderNotFound
	}
	out := *order
	return &out, nil
}

// Purge removes purgeable sessions that no update currently holds.
func (s *Store) Purge(ctx context.Context, now, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.sessions {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		select {
		case <-rec.guard:
		default:
			continue
		}
		if rec.session.Purgeable(now, cutoff) {
			delete(s.sessions, id)
			rec.session = nil
			removed++
		}
		rec.guard <- struct{}{}
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) record(ctx context.Context, id string) (*record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, checkout.ErrSessionNotFound
	}
	return rec, nil
}
