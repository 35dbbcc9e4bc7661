package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/dataaccess"
)

// Jupiter prices routes against the Jupiter aggregator. Quotes ride through
// the data-access executor with a short TTL so repeated impact probes within
// one scan reuse the same response.
type Jupiter struct {
	baseURL  string
	http     *http.Client
	exec     *dataaccess.Executor
	quoteTTL time.Duration
	logger   zerolog.Logger
}

// NewJupiter creates a Jupiter quoter.
func NewJupiter(baseURL string, exec *dataaccess.Executor, timeout time.Duration) *Jupiter {
	return &Jupiter{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		exec:     exec,
		quoteTTL: 10 * time.Second,
		logger:   log.With().Str("component", "jupiter").Logger(),
	}
}

// Quote implements Quoter.
func (j *Jupiter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		j.baseURL, inputMint, outputMint, amount, slippageBps)

	raw, err := j.exec.Do(ctx, url, j.quoteTTL, func(ctx context.Context) (json.RawMessage, error) {
		return j.get(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}

	var resp struct {
		OutAmount      string `json:"outAmount"`
		PriceImpactPct string `json:"priceImpactPct"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("jupiter quote: parse: %w", err)
	}

	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: outAmount %q: %w", resp.OutAmount, err)
	}
	impact, err := strconv.ParseFloat(resp.PriceImpactPct, 64)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: priceImpactPct %q: %w", resp.PriceImpactPct, err)
	}

	return &Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       amount,
		OutAmount:      outAmount,
		PriceImpactPct: impact * 100, // Jupiter reports a fraction
		SlippageBps:    slippageBps,
		Raw:            raw,
	}, nil
}

func (j *Jupiter) get(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := j.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &dataaccess.RateLimitError{}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("jupiter status %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// Live executes quotes through the signing sidecar: the quote payload and
// wallet pubkey go to the sidecar, which signs, broadcasts and returns the
// transaction signature.
type Live struct {
	*Jupiter
	signerURL    string
	walletPubkey string
	http         *http.Client
	confirmer    Confirmer
}

// Confirmer checks transaction finality, typically the Solana RPC client.
type Confirmer interface {
	ConfirmTransaction(ctx context.Context, signature string) error
}

// NewLive wires a live executor on top of a Jupiter quoter.
func NewLive(j *Jupiter, signerURL, walletPubkey string, confirmer Confirmer, timeout time.Duration) *Live {
	return &Live{
		Jupiter:      j,
		signerURL:    signerURL,
		walletPubkey: walletPubkey,
		http:         &http.Client{Timeout: timeout},
		confirmer:    confirmer,
	}
}

// Swap implements Executor.
func (l *Live) Swap(ctx context.Context, q *Quote) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"quoteResponse": json.RawMessage(q.Raw),
		"userPublicKey": l.walletPubkey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.signerURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("signer status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("parse signer response: %w", err)
	}
	if result.Signature == "" {
		return "", fmt.Errorf("signer returned no signature")
	}
	return result.Signature, nil
}

// Confirm implements Executor.
func (l *Live) Confirm(ctx context.Context, signature string) error {
	return l.confirmer.ConfirmTransaction(ctx, signature)
}

var _ Executor = (*Live)(nil)
