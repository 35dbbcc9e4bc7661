package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/dataaccess"
	"soltrader/internal/domain"
)

const birdeyeBaseURL = "https://public-api.birdeye.so"

// Birdeye is the primary adapter. It requires an API key and meters usage in
// compute units; exhausting them surfaces as ErrQuotaExhausted so the
// failover controller can block it.
type Birdeye struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	exec     *dataaccess.Executor
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewBirdeye creates the Birdeye adapter. Returns nil when apiKey is empty:
// an unconfigured primary is permanently skipped by the failover controller.
func NewBirdeye(apiKey string, exec *dataaccess.Executor, timeout, cacheTTL time.Duration) *Birdeye {
	if apiKey == "" {
		return nil
	}
	return &Birdeye{
		apiKey:   apiKey,
		baseURL:  birdeyeBaseURL,
		http:     &http.Client{Timeout: timeout},
		exec:     exec,
		cacheTTL: cacheTTL,
		logger:   log.With().Str("component", "birdeye").Logger(),
	}
}

// Name implements Adapter.
func (b *Birdeye) Name() string { return "birdeye" }

type birdeyeTokenList struct {
	Data struct {
		Tokens []struct {
			Address   string  `json:"address"`
			Name      string  `json:"name"`
			Symbol    string  `json:"symbol"`
			Liquidity float64 `json:"liquidity"`
			V24hUSD   float64 `json:"v24hUSD"`
		} `json:"tokens"`
	} `json:"data"`
}

// Discover returns the top tokens by 24h volume, list order preserved.
func (b *Birdeye) Discover(ctx context.Context, limit int) ([]domain.Seed, error) {
	url := fmt.Sprintf("%s/defi/tokenlist?sort_by=v24hUSD&sort_type=desc&offset=0&limit=%d", b.baseURL, limit)
	raw, err := b.exec.Do(ctx, url, b.cacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		return b.get(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("birdeye discover: %w", err)
	}

	var list birdeyeTokenList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("birdeye discover: parse: %w", err)
	}

	seeds := make([]domain.Seed, 0, len(list.Data.Tokens))
	for _, tok := range list.Data.Tokens {
		if !ValidMint(tok.Address) {
			continue
		}
		name := tok.Name
		if name == "" {
			name = tok.Symbol
		}
		seeds = append(seeds, domain.Seed{Address: tok.Address, Name: name})
	}
	return seeds, nil
}

// FetchMetrics gathers overview, security and candle data for one token.
// A failed source leaves its fields nil; only the overview is required.
func (b *Birdeye) FetchMetrics(ctx context.Context, address string) (*domain.TokenMetrics, error) {
	m := &domain.TokenMetrics{}

	if err := b.fetchOverview(ctx, address, m); err != nil {
		return nil, err
	}
	if err := b.fetchSecurity(ctx, address, m); err != nil {
		b.logger.Debug().Err(err).Str("address", address).Msg("security fetch failed, treating as unknown")
	}
	if err := b.fetchCandles(ctx, address, m); err != nil {
		b.logger.Debug().Err(err).Str("address", address).Msg("ohlcv fetch failed")
	}
	return m, nil
}

func (b *Birdeye) fetchOverview(ctx context.Context, address string, m *domain.TokenMetrics) error {
	url := fmt.Sprintf("%s/defi/token_overview?address=%s", b.baseURL, address)
	raw, err := b.exec.Do(ctx, url, b.cacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		return b.get(ctx, url)
	})
	if err != nil {
		return fmt.Errorf("birdeye overview: %w", err)
	}

	var resp struct {
		Data struct {
			Liquidity *float64 `json:"liquidity"`
			V24hUSD   *float64 `json:"v24hUSD"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("birdeye overview: parse: %w", err)
	}
	m.LiquidityUSD = resp.Data.Liquidity
	m.Vol24hUSD = resp.Data.V24hUSD
	return nil
}

func (b *Birdeye) fetchSecurity(ctx context.Context, address string, m *domain.TokenMetrics) error {
	url := fmt.Sprintf("%s/defi/token_security?address=%s", b.baseURL, address)
	raw, err := b.exec.Do(ctx, url, b.cacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		return b.get(ctx, url)
	})
	if err != nil {
		return err
	}

	var resp struct {
		Data struct {
			IsScam            *bool    `json:"isScam"`
			IsHoneypot        *bool    `json:"isHoneypot"`
			Mintable          *bool    `json:"mintable"`
			Freezeable        *bool    `json:"freezeable"`
			OwnerChangeable   *bool    `json:"ownerChangeBalance"`
			TransferFeeEnable *bool    `json:"transferFeeEnable"`
			LPUnlocked        *bool    `json:"lpUnlocked"`
			MintAuthority     *string  `json:"mintAuthority"`
			FreezeAuthority   *string  `json:"freezeAuthority"`
			Top10HolderPct    *float64 `json:"top10HolderPercent"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse security: %w", err)
	}

	d := resp.Data
	sec := &domain.SecurityInfo{
		IsScam:          d.IsScam,
		IsHoneypot:      d.IsHoneypot,
		Mintable:        d.Mintable,
		Freezeable:      d.Freezeable,
		OwnerChangeable: d.OwnerChangeable,
		HighTax:         d.TransferFeeEnable,
		LPUnlocked:      d.LPUnlocked,
	}
	if d.MintAuthority != nil {
		present := *d.MintAuthority != ""
		sec.MintAuthority = &present
	}
	if d.FreezeAuthority != nil {
		present := *d.FreezeAuthority != ""
		sec.FreezeAuthority = &present
	}
	m.Security = sec

	if d.Top10HolderPct != nil {
		// Birdeye reports a fraction of supply.
		pct := *d.Top10HolderPct * 100
		m.HoldersPct = &pct
	}
	return nil
}

func (b *Birdeye) fetchCandles(ctx context.Context, address string, m *domain.TokenMetrics) error {
	to := time.Now().Unix()
	from := to - 60*60 // one hour of 1m bars
	url := fmt.Sprintf("%s/defi/ohlcv?address=%s&type=1m&time_from=%d&time_to=%d", b.baseURL, address, from, to)
	raw, err := b.exec.Do(ctx, url, b.cacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		return b.get(ctx, url)
	})
	if err != nil {
		return err
	}

	var resp struct {
		Data struct {
			Items []struct {
				UnixTime int64   `json:"unixTime"`
				O        float64 `json:"o"`
				H        float64 `json:"h"`
				L        float64 `json:"l"`
				C        float64 `json:"c"`
				V        float64 `json:"v"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse ohlcv: %w", err)
	}

	candles := make([]domain.Candle, 0, len(resp.Data.Items))
	for _, it := range resp.Data.Items {
		candles = append(candles, domain.Candle{
			Timestamp: it.UnixTime * 1000,
			Open:      it.O,
			High:      it.H,
			Low:       it.L,
			Close:     it.C,
			Volume:    it.V,
		})
	}
	m.Candles = candles

	if n := len(candles); n > 0 {
		start := n - 15
		if start < 0 {
			start = 0
		}
		var vol15 float64
		for _, c := range candles[start:] {
			vol15 += c.Volume
		}
		m.Vol15mUSD = &vol15
	}
	return nil
}

// get issues one authenticated GET, translating rate-limit and compute-unit
// exhaustion responses into executor error classes.
func (b *Birdeye) get(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-KEY", b.apiKey)
	req.Header.Set("x-chain", "solana")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if isComputeUnitExhausted(body) {
			return nil, dataaccess.ErrQuotaExhausted
		}
		return nil, &dataaccess.RateLimitError{RetryAfter: headerRetryAfter(resp)}
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusForbidden:
		if isComputeUnitExhausted(body) {
			return nil, dataaccess.ErrQuotaExhausted
		}
		return nil, fmt.Errorf("birdeye status %d: %s", resp.StatusCode, body)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("birdeye status %d", resp.StatusCode)
	}
	return body, nil
}

func isComputeUnitExhausted(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "compute unit")
}

func headerRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

var _ Adapter = (*Birdeye)(nil)
