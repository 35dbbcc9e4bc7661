package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModel(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeModel(t, `{"weights":{"rug_risk_score":0.8},"bias":-2,"threshold":0.6}`)
	m, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, m.Threshold, 1e-9)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{weights}`},
		{"no weights", `{"weights":{},"bias":0,"threshold":0.5}`},
		{"threshold out of range", `{"weights":{"score":1},"bias":0,"threshold":1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeModel(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestScore_LogisticLink(t *testing.T) {
	m := &LogisticModel{
		Weights:   map[string]float64{FeatureRugRiskScore: 1},
		Bias:      0,
		Threshold: 0.5,
	}

	res, err := m.Score(map[string]float64{FeatureRugRiskScore: 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Probability, 1e-9)

	res, err = m.Score(map[string]float64{FeatureRugRiskScore: 100})
	require.NoError(t, err)
	assert.Greater(t, res.Probability, 0.999)
}

func TestScore_MissingFeaturesContributeZero(t *testing.T) {
	m := &LogisticModel{
		Weights:   map[string]float64{FeatureRugRiskScore: 3, FeatureSignalScore: -1},
		Bias:      0,
		Threshold: 0.5,
	}
	res, err := m.Score(map[string]float64{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Probability, 1e-9)
}
