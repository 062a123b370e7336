package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Transfer is the payload the in-memory rail accepts as a "signed" transfer.
type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// Memory is an in-process rail for tests and local development.
type Memory struct {
	mu        sync.Mutex
	transfers map[string]TransferStatus
	balances  map[string]int64
	err       error
	pending   bool
	seq       int64
	clock     func() time.Time
}

// NewMemory returns an empty rail where submitted transfers finalize
// immediately.
func NewMemory() *Memory {
	return &Memory{
		transfers: make(map[string]TransferStatus),
		balances:  make(map[string]int64),
		clock:     time.Now,
	}
}

// Fund credits account with amount.
func (m *Memory) Fund(account string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

// Record stores status as if it had been observed on the rail.
func (m *Memory) Record(status TransferStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[status.Reference] = status
}

// HoldPending makes later submissions stay pending until Finalize is called.
func (m *Memory) HoldPending(hold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = hold
}

// Finalize settles a pending transfer.
func (m *Memory) Finalize(reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.transfers[reference]
	if !ok || status.State != StatePending {
		return fmt.Errorf("ledger: no pending transfer %q", reference)
	}
	m.settle(&status)
	m.transfers[reference] = status
	return nil
}

// FailWith makes every call return err until it is reset with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Submit decodes signed as a JSON [Transfer] and records it.
func (m *Memory) Submit(ctx context.Context, signed []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var t Transfer
	if err := json.Unmarshal(signed, &t); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if t.From == "" || t.To == "" || t.Amount <= 0 {
		return "", fmt.Errorf("%w: from, to and a positive amount are required", ErrRejected)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.seq++
	now := m.clock()
	ref := fmt.Sprintf("%s@%d.%09d", t.From, now.Unix(), m.seq)
	status := TransferStatus{
		Reference: ref,
		State:     StatePending,
		Credits: []Credit{
			{Account: t.From, Amount: -t.Amount},
			{Account: t.To, Amount: t.Amount},
		},
	}
	if !m.pending {
		m.settle(&status)
	}
	m.transfers[ref] = status
	return ref, nil
}

func (m *Memory) settle(status *TransferStatus) {
	status.State = StateFinalized
	status.Result = "SUCCESS"
	status.ConsensusAt = m.clock().UTC()
	for _, c := range status.Credits {
		m.balances[c.Account] += c.Amount
	}
}

// Status implements [Gateway].
func (m *Memory) Status(ctx context.Context, reference string) (TransferStatus, error) {
	if err := ctx.Err(); err != nil {
		return TransferStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return TransferStatus{}, m.err
	}
	status, ok := m.transfers[reference]
	if !ok {
		return TransferStatus{Reference: reference, State: StateNotFound}, nil
	}
	status.Credits = append([]Credit(nil), status.Credits...)
	return status, nil
}

// Balance implements [Gateway].
func (m *Memory) Balance(ctx context.Context, account string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if account == "" {
		return 0, errors.New("ledger: account is required")
	}
	return m.balances[account], nil
}
