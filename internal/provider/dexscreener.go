package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/dataaccess"
	"soltrader/internal/domain"
)

const (
	dexScreenerBaseURL  = "https://api.dexscreener.com"
	geckoTerminalOHLCV  = "https://api.geckoterminal.com/api/v2/networks/solana/pools/%s/ohlcv/minute?aggregate=1&limit=60"
	dexScreenerChainID  = "solana"
	dexScreenerSearchQ  = "SOL"
	recentCandleBars15m = 15
)

// DexScreener is the keyless fallback adapter. Pair data comes from the
// DexScreener search/token endpoints; candles from the GeckoTerminal pool
// OHLCV endpoint since DexScreener exposes no candle history.
type DexScreener struct {
	baseURL  string
	ohlcvURL string
	http     *http.Client
	exec     *dataaccess.Executor
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewDexScreener creates the DexScreener adapter.
func NewDexScreener(exec *dataaccess.Executor, timeout, cacheTTL time.Duration) *DexScreener {
	return &DexScreener{
		baseURL:  dexScreenerBaseURL,
		ohlcvURL: geckoTerminalOHLCV,
		http:     &http.Client{Timeout: timeout},
		exec:     exec,
		cacheTTL: cacheTTL,
		logger:   log.With().Str("component", "dexscreener").Logger(),
	}
}

// Name implements Adapter.
func (d *DexScreener) Name() string { return "dexscreener" }

type dexPair struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
		M5  float64 `json:"m5"`
	} `json:"volume"`
}

type dexPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// Discover searches recent Solana pairs and returns their base tokens,
// de-duplicated in first-seen order.
func (d *DexScreener) Discover(ctx context.Context, limit int) ([]domain.Seed, error) {
	url := fmt.Sprintf("%s/latest/dex/search?q=%s", d.baseURL, dexScreenerSearchQ)
	raw, err := d.exec.Do(ctx, url, d.cacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		return d.get(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("dexscreener discover: %w", err)
	}

	var resp dexPairsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("dexscreener discover: parse: %w", err)
	}

	seen := make(map[string]bool)
	var seeds []domain.Seed
	for _, p := range resp.Pairs {
		if p.ChainID != dexScreenerChainID {
			continue
		}
		addr := p.BaseToken.Address
		if seen[addr] || !ValidMint(addr) {
			continue
		}
		seen[addr] = true
		name := p.BaseToken.Name
		if name == "" {
			name = p.BaseToken.Symbol
		}
		seeds = append(seeds, domain.Seed{Address: addr, Name: name})
		if len(seeds) >= limit {
			break
		}
	}
	return seeds, nil
}

// FetchMetrics reads the token's best pair and its candle history.
// DexScreener reports no security data; those fields stay nil and the
// on-chain checks fill what they can.
func (d *DexScreener) FetchMetrics(ctx context.Context, address string) (*domain.TokenMetrics, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, address)
	raw, err := d.exec.Do(ctx, url, d.cacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		return d.get(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("dexscreener metrics: %w", err)
	}

	var resp dexPairsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("dexscreener metrics: parse: %w", err)
	}
	if len(resp.Pairs) == 0 {
		return nil, fmt.Errorf("dexscreener metrics: no pairs for %s", address)
	}

	// Deepest pool is the token's canonical market.
	pairs := resp.Pairs
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Liquidity.USD > pairs[j].Liquidity.USD
	})
	best := pairs[0]

	m := &domain.TokenMetrics{
		LiquidityUSD: &best.Liquidity.USD,
		Vol24hUSD:    &best.Volume.H24,
	}

	if err := d.fetchCandles(ctx, best.PairAddress, m); err != nil {
		d.logger.Debug().Err(err).Str("address", address).Msg("ohlcv fetch failed")
	}
	return m, nil
}

func (d *DexScreener) fetchCandles(ctx context.Context, pool string, m *domain.TokenMetrics) error {
	url := fmt.Sprintf(d.ohlcvURL, pool)
	raw, err := d.exec.Do(ctx, url, d.cacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		return d.get(ctx, url)
	})
	if err != nil {
		return err
	}

	var resp struct {
		Data struct {
			Attributes struct {
				OHLCVList [][]float64 `json:"ohlcv_list"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse ohlcv: %w", err)
	}

	candles := make([]domain.Candle, 0, len(resp.Data.Attributes.OHLCVList))
	for _, row := range resp.Data.Attributes.OHLCVList {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, domain.Candle{
			Timestamp: int64(row[0]) * 1000,
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	// GeckoTerminal returns newest-first.
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	m.Candles = candles

	if n := len(candles); n > 0 {
		start := n - recentCandleBars15m
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

func (d *DexScreener) get(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &dataaccess.RateLimitError{RetryAfter: headerRetryAfter(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var _ Adapter = (*DexScreener)(nil)
