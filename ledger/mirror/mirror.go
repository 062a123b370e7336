// Package mirror implements [ledger.Gateway] on top of the Hedera mirror node
// REST API, with an optional relay for broadcasting payer-signed transfers.
package mirror

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/sumup/ucp/ledger"
)

// Public mirror node endpoints.
const (
	MainnetURL    = "https://mainnet.mirrornode.hedera.com"
	TestnetURL    = "https://testnet.mirrornode.hedera.com"
	PreviewnetURL = "https://previewnet.mirrornode.hedera.com"
)

// lookupTimeout bounds a transaction lookup shared by concurrent callers.
const lookupTimeout = 10 * time.Second

// ErrSubmitUnsupported is returned by Submit when no relay is configured.
var ErrSubmitUnsupported = errors.New("mirror: transfer submission requires a relay endpoint")

// Client queries a mirror node. It is safe for concurrent use.
type Client struct {
	baseURL  string
	relayURL string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*response]
	lookups  singleflight.Group
}

type response struct {
	status int
	body   []byte
}

// Option customizes a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithSubmitRelay sets the endpoint that broadcasts signed transfers. The relay
// receives {"signed_transaction": "<base64>"} and answers
// {"transaction_id": "..."}.
func WithSubmitRelay(endpoint string) Option {
	return func(cl *Client) {
		cl.relayURL = endpoint
	}
}

// WithBreakerSettings overrides the circuit breaker configuration.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(cl *Client) {
		cl.breaker = gobreaker.NewCircuitBreaker[*response](st)
	}
}

// New builds a client for the mirror node at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
			Name:    "hedera-mirror",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

type transactionsPayload struct {
	Transactions []struct {
		ConsensusTimestamp string `json:"consensus_timestamp"`
		Result             string `json:"result"`
		TransactionID      string `json:"transaction_id"`
		Transfers          []struct {
			Account string `json:"account"`
			Amount  int64  `json:"amount"`
		} `json:"transfers"`
	} `json:"transactions"`
}

// Status implements [ledger.Gateway]. Concurrent lookups for the same reference
// share one request.
func (c *Client) Status(ctx context.Context, reference string) (ledger.TransferStatus, error) {
	id, err := ledger.MirrorTransactionID(reference)
	if err != nil {
		return ledger.TransferStatus{}, err
	}
	// The shared lookup outlives any single caller; each caller stops waiting
	// when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.lookups.DoChan("tx:"+id, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(shared, lookupTimeout)
		defer cancel()
		return c.get(lookupCtx, "/api/v1/transactions/"+url.PathEscape(id))
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ledger.TransferStatus{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return ledger.TransferStatus{}, res.Err
	}
	resp := res.Val.(*response)
	status := ledger.TransferStatus{Reference: reference, State: ledger.StateNotFound}
	if resp.status == http.StatusNotFound {
		return status, nil
	}

	var payload transactionsPayload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return ledger.TransferStatus{}, fmt.Errorf("%w: decode transaction %s: %v", ledger.ErrUnavailable, id, err)
	}
	if len(payload.Transactions) == 0 {
		return status, nil
	}
	tx := payload.Transactions[0]
	for _, candidate := range payload.Transactions {
		if candidate.Result == "SUCCESS" {
			tx = candidate
			break
		}
	}
	status.Result = tx.Result
	status.ConsensusAt = parseConsensusTimestamp(tx.ConsensusTimestamp)
	for _, t := range tx.Transfers {
		status.Credits = append(status.Credits, ledger.Credit{Account: t.Account, Amount: t.Amount})
	}
	if tx.Result == "SUCCESS" {
		status.State = ledger.StateFinalized
	} else {
		status.State = ledger.StateFailed
	}
	return status, nil
}

// Balance implements [ledger.Gateway].
func (c *Client) Balance(ctx context.Context, account string) (int64, error) {
	resp, err := c.get(ctx, "/api/v1/balances?account.id="+url.QueryEscape(account))
	if err != nil {
		return 0, err
	}
	if resp.status == http.StatusNotFound {
		return 0, fmt.Errorf("mirror: account %s not found", account)
	}
	var payload struct {
		Balances []struct {
			Account string `json:"account"`
			Balance int64  `json:"balance"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return 0, fmt.Errorf("%w: decode balance: %v", ledger.ErrUnavailable, err)
	}
	for _, b := range payload.Balances {
		if b.Account == account {
			return b.Balance, nil
		}
	}
	return 0, fmt.Errorf("mirror: account %s not found", account)
}

// Submit implements [ledger.Gateway] by forwarding signed bytes to the relay.
func (c *Client) Submit(ctx context.Context, signed []byte) (string, error) {
	if c.relayURL == "" {
		return "", ErrSubmitUnsupported
	}
	body, err := json.Marshal(map[string]string{
		"signed_transaction": base64.StdEncoding.EncodeToString(signed),
	})
	if err != nil {
		return "", fmt.Errorf("mirror: marshal submission: %w", err)
	}
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.do(ctx, http.MethodPost, c.relayURL, body)
	})
	if err != nil {
		return "", unavailable(err)
	}
	if resp.status >= 400 {
		return "", fmt.Errorf("%w: relay returned %d: %s", ledger.ErrRejected, resp.status, snippet(resp.body))
	}
	var out struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil || out.TransactionID == "" {
		return "", fmt.Errorf("%w: relay response without transaction_id", ledger.ErrUnavailable)
	}
	return out.TransactionID, nil
}

// get issues a GET through the breaker. 404 is a valid answer, not a failure.
func (c *Client) get(ctx context.Context, path string) (*response, error) {
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.do(ctx, http.MethodGet, c.baseURL+path, nil)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if resp.status != http.StatusOK && resp.status != http.StatusNotFound {
		return nil, fmt.Errorf("%w: mirror node returned %d: %s", ledger.ErrUnavailable, resp.status, snippet(resp.body))
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	payload, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 500 {
		return nil, fmt.Errorf("%s %s: status %d", method, endpoint, res.StatusCode)
	}
	return &response{status: res.StatusCode, body: payload}, nil
}

func unavailable(err error) error {
	if errors.Is(err, ledger.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
}

func parseConsensusTimestamp(ts string) time.Time {
	seconds, nanos, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return time.Time{}
	}
	n, _ := strconv.ParseInt(nanos, 10, 64)
	return time.Unix(s, n).UTC()
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
