// Package solana provides the JSON-RPC client used for on-chain checks:
// holder concentration, mint/freeze authority presence and wallet balance.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/dataaccess"
)

// ErrUnsupported is returned when the RPC endpoint does not expose a method.
// Callers use it to disable the corresponding check globally.
var ErrUnsupported = errors.New("rpc method unsupported")

const (
	lamportsPerSOL = 1e9

	// RPC reads are cheap to cache briefly; authority data is immutable in
	// practice and cached longer.
	balanceTTL   = 10 * time.Second
	supplyTTL    = 60 * time.Second
	authorityTTL = 10 * time.Minute
	holdersTTL   = 60 * time.Second
)

// Client is a Solana JSON-RPC client. All calls are routed through the
// shared data-access executor for pacing, caching and retry.
type Client struct {
	endpoint  string
	http      *http.Client
	exec      *dataaccess.Executor
	requestID atomic.Uint64
	logger    zerolog.Logger
}

// NewClient creates a client for the given RPC endpoint.
func NewClient(endpoint string, exec *dataaccess.Executor, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		exec:     exec,
		logger:   log.With().Str("component", "solana_rpc").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC call through the executor.
func (c *Client) call(ctx context.Context, method string, params []any, ttl time.Duration, result any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	key := method + ":" + string(paramsJSON)

	raw, err := c.exec.Do(ctx, key, ttl, func(ctx context.Context) (json.RawMessage, error) {
		return c.post(ctx, method, params)
	})
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &dataaccess.RateLimitError{RetryAfter: retryAfter(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		// -32601: method not found; some public endpoints also disable
		// heavy methods with -32010.
		if rpcResp.Error.Code == -32601 || rpcResp.Error.Code == -32010 {
			return nil, fmt.Errorf("%s: %w", rpcResp.Error.Message, ErrUnsupported)
		}
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// GetBalance returns the SOL balance of a wallet.
func (c *Client) GetBalance(ctx context.Context, pubkey string) (float64, error) {
	var result struct {
		Value int64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{pubkey}, balanceTTL, &result); err != nil {
		return 0, err
	}
	return float64(result.Value) / lamportsPerSOL, nil
}

type tokenAmount struct {
	Amount   string  `json:"amount"`
	Decimals int     `json:"decimals"`
	UIAmount float64 `json:"uiAmount"`
}

// GetTokenSupply returns the UI-adjusted total supply of a mint.
func (c *Client) GetTokenSupply(ctx context.Context, mint string) (float64, int, error) {
	var result struct {
		Value tokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []any{mint}, supplyTTL, &result); err != nil {
		return 0, 0, err
	}
	return result.Value.UIAmount, result.Value.Decimals, nil
}

// TopHoldersPct returns the share of supply held by the largest accounts,
// in percent. Returns ErrUnsupported when the endpoint disables the method.
func (c *Client) TopHoldersPct(ctx context.Context, mint string) (float64, error) {
	supply, _, err := c.GetTokenSupply(ctx, mint)
	if err != nil {
		return 0, err
	}
	if supply <= 0 {
		return 0, fmt.Errorf("zero supply for mint %s", mint)
	}

	var result struct {
		Value []tokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenLargestAccounts", []any{mint}, holdersTTL, &result); err != nil {
		return 0, err
	}

	top := result.Value
	if len(top) > 10 {
		top = top[:10]
	}
	var held float64
	for _, acc := range top {
		held += acc.UIAmount
	}
	return held / supply * 100, nil
}

// ConfirmTransaction waits until a signature reaches finalized commitment.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var result struct {
			Value []*struct {
				ConfirmationStatus string `json:"confirmationStatus"`
				Err                any    `json:"err"`
				Slot               int64  `json:"slot"`
				Confirmations      *int64 `json:"confirmations"`
			} `json:"value"`
		}
		params := []any{[]string{signature}, map[string]bool{"searchTransactionHistory": true}}
		if err := c.call(ctx, "getSignatureStatuses", params, 0, &result); err != nil {
			return err
		}
		if len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", signature, status.Err)
			}
			if status.ConfirmationStatus == "finalized" || status.ConfirmationStatus == "confirmed" {
				return nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// MintAuthorities reports whether the mint retains mint and freeze authority.
func (c *Client) MintAuthorities(ctx context.Context, mint string) (mintAuth, freezeAuth bool, err error) {
	params := []any{mint, map[string]string{"encoding": "jsonParsed"}}
	var result struct {
		Value *struct {
			Data struct {
				Parsed struct {
					Info struct {
						MintAuthority   *string `json:"mintAuthority"`
						FreezeAuthority *string `json:"freezeAuthority"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", params, authorityTTL, &result); err != nil {
		return false, false, err
	}
	if result.Value == nil {
		return false, false, fmt.Errorf("mint account %s not found", mint)
	}
	info := result.Value.Data.Parsed.Info
	return info.MintAuthority != nil, info.FreezeAuthority != nil, nil
}
