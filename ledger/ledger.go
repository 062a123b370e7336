// Package ledger describes the payment rail a checkout settles on.
//
// The checkout core never builds or signs transfers. It submits bytes the buyer
// signed and later asks the rail what actually happened, treating every answer
// from the client as a pointer to look up rather than proof of payment.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle of a transfer as observed on the rail.
type State string

const (
	StatePending   State = "pending"
	StateFinalized State = "finalized"
	// StateFailed is a transfer that reached consensus with a non-success
	// result. It moved no funds and never will.
	StateFailed   State = "failed"
	StateNotFound State = "not_found"
)

var (
	// ErrUnavailable marks transient failures talking to the rail.
	ErrUnavailable = errors.New("ledger: unavailable")
	// ErrRejected marks signed transfers the rail refused to accept.
	ErrRejected = errors.New("ledger: transfer rejected")
	// ErrInvalidReference marks references that cannot name a transfer on the
	// rail. Looking them up again will never succeed.
	ErrInvalidReference = errors.New("ledger: malformed transaction id")
)

// Credit is a positive or negative balance change for one account.
type Credit struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// TransferStatus is what the rail reports for a transfer reference.
type TransferStatus struct {
	Reference   string    `json:"reference"`
	State       State     `json:"state"`
	Result      string    `json:"result,omitempty"`
	Credits     []Credit  `json:"credits,omitempty"`
	ConsensusAt time.Time `json:"consensus_at,omitempty"`
}

// AmountTo sums the positive credits to account.
func (s TransferStatus) AmountTo(account string) int64 {
	var total int64
	for _, c := range s.Credits {
		if c.Account == account && c.Amount > 0 {
			total += c.Amount
		}
	}
	return total
}

// Gateway is the narrow interface the checkout core needs from a rail.
type Gateway interface {
	// Submit broadcasts a transfer signed by the payer and returns its reference.
	Submit(ctx context.Context, signed []byte) (string, error)
	// Status reports the transfer identified by reference. Unknown references
	// yield StateNotFound, not an error.
	Status(ctx context.Context, reference string) (TransferStatus, error)
	// Balance returns the account balance in native units.
	Balance(ctx context.Context, account string) (int64, error)
}

// Networks with a public explorer.
const (
	Mainnet    = "mainnet"
	Testnet    = "testnet"
	Previewnet = "previewnet"
)

// ExplorerURL links a transfer reference on HashScan. Unknown networks fall
// back to testnet.
func ExplorerURL(network, reference string) string {
	switch network {
	case Mainnet, Testnet, Previewnet:
	default:
		network = Testnet
	}
	return fmt.Sprintf("https://hashscan.io/%s/transaction/%s", network, reference)
}

// MirrorTransactionID converts a transaction id from SDK form
// (0.0.1234@1700000000.123456789) to mirror node form
// (0.0.1234-1700000000-123456789). Ids already in mirror form pass through.
func MirrorTransactionID(reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	payer, validStart, ok := strings.Cut(reference, "@")
	if !ok {
		if parts := strings.Split(reference, "-"); len(parts) == 3 && isAccountID(parts[0]) && isDigits(parts[1]) && isDigits(parts[2]) {
			return reference, nil
		}
		return "", fmt.Errorf("%w %q", ErrInvalidReference, reference)
	}
	seconds, nanos, ok := strings.Cut(validStart, ".")
	if !ok || !isAccountID(payer) || !isDigits(seconds) || !isDigits(nanos) {
		return "", fmt.Errorf("%w %q", ErrInvalidReference, reference)
	}
	return payer + "-" + seconds + "-" + nanos, nil
}

// ValidateReference reports ErrInvalidReference unless reference is a
// transaction id in SDK or mirror node form.
func ValidateReference(reference string) error {
	_, err := MirrorTransactionID(reference)
	return err
}

func isAccountID(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if !isDigits(p) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
