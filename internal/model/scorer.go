// Package model consumes the externally trained rug-probability model.
// The engine only sees score(features) -> {probability, threshold}; training
// and the model file format live in the sidecar pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Feature names, matching the trainer's column set.
const (
	FeatureScore              = "score"
	FeatureRugRiskScore       = "rug_risk_score"
	FeatureRugHoldersPct      = "rug_holders_pct"
	FeatureRugLiquidityUSD    = "rug_liquidity_usd"
	FeatureRugVol24hUSD       = "rug_vol24h_usd"
	FeaturePriceImpactPct     = "price_impact_pct"
	FeatureVolatilityRangePct = "volatility_range_pct"
	FeatureVolatilityChopPct  = "volatility_chop_pct"
	FeatureSignalScore        = "signal_score"
	FeatureMomentumScore      = "momentum_score"
	FeatureMomentumPctShort   = "momentum_pct_short"
	FeatureMomentumPctLong    = "momentum_pct_long"
)

// Result is one scoring outcome.
type Result struct {
	Probability float64
	Threshold   float64
}

// Scorer scores a named-feature mapping. Implementations must be safe for
// repeated calls within a tick.
type Scorer interface {
	Score(features map[string]float64) (Result, error)
}

// LogisticModel is a linear model with a logistic link, exported by the
// training pipeline as a JSON coefficient file.
type LogisticModel struct {
	Weights   map[string]float64 `json:"weights"`
	Bias      float64            `json:"bias"`
	Threshold float64            `json:"threshold"`
}

// Load reads a coefficient file. Callers treat any error as "no model" and
// fall back to rule-based scoring.
func Load(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model file: %w", err)
	}
	if len(m.Weights) == 0 {
		return nil, fmt.Errorf("model file %s has no weights", path)
	}
	if m.Threshold <= 0 || m.Threshold >= 1 {
		return nil, fmt.Errorf("model file %s has invalid threshold %v", path, m.Threshold)
	}
	return &m, nil
}

// Score implements Scorer. Missing features contribute zero, matching the
// trainer's imputation.
func (m *LogisticModel) Score(features map[string]float64) (Result, error) {
	z := m.Bias
	for name, w := range m.Weights {
		z += w * features[name]
	}
	return Result{
		Probability: 1 / (1 + math.Exp(-z)),
		Threshold:   m.Threshold,
	}, nil
}

var _ Scorer = (*LogisticModel)(nil)
