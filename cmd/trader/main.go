// Package main wires the trading engine: configuration, stores, provider
// adapters, swap execution and the tick loop, with Prometheus metrics and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/config"
	"soltrader/internal/dataaccess"
	"soltrader/internal/domain"
	"soltrader/internal/engine"
	"soltrader/internal/indicator"
	"soltrader/internal/model"
	"soltrader/internal/observability"
	"soltrader/internal/position"
	"soltrader/internal/provider"
	"soltrader/internal/risk"
	"soltrader/internal/selector"
	"soltrader/internal/snapshot"
	"soltrader/internal/solana"
	"soltrader/internal/storage"
	chstore "soltrader/internal/storage/clickhouse"
	"soltrader/internal/storage/memory"
	pgstore "soltrader/internal/storage/postgres"
	"soltrader/internal/stream"
	"soltrader/internal/swap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	cacheTTL := time.Duration(cfg.CacheTTLMs) * time.Millisecond

	// State, trade and feature stores. Postgres and ClickHouse are optional;
	// unset DSNs fall back to in-memory stores.
	stateStore := storage.NewFileStateStore(cfg.StateFile, storage.DefaultDebounce, func() *domain.EngineState {
		return domain.DefaultState(cfg.SimStartBalanceSOL)
	})
	defer stateStore.Close()

	state, err := stateStore.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StateFile).Msg("state load failed")
	}
	// The environment decides the mode at boot; runtime switches last until
	// the next restart.
	state.Mode = cfg.Mode

	var tradeStore storage.TradeStore = memory.NewTradeStore()
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect failed")
		}
		defer pool.Close()
		tradeStore = pgstore.NewTradeStore(pool)
		log.Info().Msg("trade history persisted to postgres")
	}

	var featureStore storage.FeatureStore = memory.NewFeatureStore()
	if cfg.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("clickhouse connect failed")
		}
		defer conn.Close()
		featureStore = chstore.NewFeatureStore(conn)
		log.Info().Msg("feature archive persisted to clickhouse")
	}

	// Provider adapters behind the failover controller. Each adapter gets its
	// own paced executor so one provider's limits never stall another.
	birdeyeExec := dataaccess.New("birdeye",
		time.Duration(cfg.BirdeyeMinIntervalMs)*time.Millisecond,
		dataaccess.WithMaxRetries(cfg.MaxRetries))
	dexExec := dataaccess.New("dexscreener",
		time.Duration(cfg.DexMinIntervalMs)*time.Millisecond,
		dataaccess.WithMaxRetries(cfg.MaxRetries))

	var primary provider.Adapter
	if birdeye := provider.NewBirdeye(cfg.BirdeyeAPIKey, birdeyeExec, timeout, cacheTTL); birdeye != nil {
		primary = birdeye
	} else {
		log.Warn().Msg("BIRDEYE_API_KEY not set, dexscreener serves exclusively")
	}
	failover := provider.NewFailover(primary,
		provider.NewDexScreener(dexExec, timeout, cacheTTL),
		time.Duration(cfg.ProviderCooldownMinutes)*time.Minute)

	var rpc *solana.Client
	if cfg.RPCURL != "" {
		rpcExec := dataaccess.New("rpc", 0, dataaccess.WithMaxRetries(cfg.MaxRetries))
		rpc = solana.NewClient(cfg.RPCURL, rpcExec, timeout)
	}

	// Swap execution: both backends are built when configured so runtime mode
	// switches route to the right one. The simulated executor reuses live
	// Jupiter quotes and fills them with a fee haircut instead of
	// broadcasting.
	jupExec := dataaccess.New("jupiter", 0, dataaccess.WithMaxRetries(cfg.MaxRetries))
	jupiter := swap.NewJupiter(cfg.JupiterBaseURL, jupExec, timeout)

	executors := position.Executors{Sim: swap.NewSimulated(jupiter, cfg.SimFeePct)}
	if cfg.SignerURL != "" && cfg.WalletPubkey != "" && rpc != nil {
		executors.Live = swap.NewLive(jupiter, cfg.SignerURL, cfg.WalletPubkey, rpc, timeout)
	}

	var scorer model.Scorer
	if cfg.ModelPath != "" {
		m, err := model.Load(cfg.ModelPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.ModelPath).Msg("model load failed, veto disabled")
		} else {
			scorer = m
			log.Info().Str("path", cfg.ModelPath).Msg("rug model loaded")
		}
	}

	var seeds selector.SeedSource
	if cfg.StreamURL != "" {
		listener, err := stream.NewListener(ctx, cfg.StreamURL, nil)
		if err != nil {
			log.Warn().Err(err).Msg("launch feed connect failed, continuing without stream")
		} else {
			defer listener.Close()
			seeds = listener
		}
	}

	sel := selector.New(selector.Config{
		ScanLimit:       cfg.ScanLimit,
		MinLiquidityUSD: cfg.MinLiquidityUSD,
		MinVol24hUSD:    cfg.MinVol24hUSD,
		MinVol15mUSD:    cfg.MinVol15mUSD,
		MaxHoldersPct:   cfg.MaxHoldersPct,
		MaxImpactPct:    cfg.MaxImpactPct,
		MaxRugScore:     cfg.MaxRugScore,
		MinCandles:      cfg.MinCandles,
		MinRangePct:     cfg.MinRangePct,
		VolatilityBars:  cfg.VolatilityBars,
		SignalMode:      cfg.SignalMode,
		TradeSizeSOL:    cfg.TradeSizeSOL,
		SlippageBps:     cfg.SlippageBps,
	}, selector.Deps{
		Signal: indicator.NewEngine(indicator.Config{
			EMAFastPeriod:    cfg.EMAFastPeriod,
			EMASlowPeriod:    cfg.EMASlowPeriod,
			RSIPeriod:        cfg.RSIPeriod,
			RSILow:           cfg.RSILow,
			BollingerPeriod:  cfg.BollingerPeriod,
			BollingerStdMult: cfg.BollingerStdMult,
			VolSpikeMult:     cfg.VolSpikeMult,
		}),
		Momentum: indicator.MomentumConfig{
			ShortBars:   cfg.MomentumShortBars,
			LongBars:    cfg.MomentumLongBars,
			MinShortPct: cfg.MomentumMinShortPct,
			MinLongPct:  cfg.MomentumMinLongPct,
		},
		Risk: risk.NewScorer(risk.Config{
			MaxHoldersPct:   cfg.MaxHoldersPct,
			MinLiquidityUSD: cfg.MinLiquidityUSD,
			MinVol24hUSD:    cfg.MinVol24hUSD,
		}),
		Quoter: jupiter,
		Chain:  chain(rpc),
		Model:  scorer,
		Seeds:  seeds,
	})

	publishers := []snapshot.Publisher{snapshot.NewLogPublisher()}
	if cfg.RedisAddr != "" {
		redisPub, err := snapshot.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer redisPub.Close()
		publishers = append(publishers, redisPub)
	}

	params := engine.Params{
		Config:       cfg,
		Selector:     sel,
		Failover:     failover,
		Executors:    executors,
		Quoter:       jupiter,
		State:        state,
		StateStore:   stateStore,
		TradeStore:   tradeStore,
		FeatureStore: featureStore,
		WalletPubkey: cfg.WalletPubkey,
		Publisher:    snapshot.NewFanOut(publishers...),
	}
	if rpc != nil {
		params.Chain = rpc
	}
	eng := engine.New(params)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("engine failed")
	}
	log.Info().Msg("shutdown complete")
}

// chain widens a possibly nil RPC client into the selector's on-chain
// interface without producing a typed non-nil interface.
func chain(rpc *solana.Client) selector.OnChain {
	if rpc == nil {
		return nil
	}
	return rpc
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server failed")
	}
}
