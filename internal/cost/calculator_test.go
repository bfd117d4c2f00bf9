package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/itinerary-cli/internal/model"
)

func testRates() map[string]ModelRate {
	return map[string]ModelRate{
		"haiku":  {Input: 1.00, Output: 5.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"sonnet": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		model      string
		input      int
		output     int
		cacheWrite int
		cacheRead  int
		want       float64
	}{
		{name: "haiku simple", model: "haiku", input: 1000000, output: 100000, want: 1.00 + 0.50},
		{name: "sonnet simple", model: "sonnet", input: 1000000, output: 1000000, want: 18.00},
		{name: "sonnet with cache", model: "sonnet", input: 0, output: 0, cacheWrite: 1000000, cacheRead: 1000000, want: 3.75 + 0.30},
		{name: "unknown model", model: "gpt", input: 1000000, output: 1000000, want: 0},
		{name: "zero tokens", model: "haiku", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Claude(tt.model, tt.input, tt.output, tt.cacheWrite, tt.cacheRead)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPrice(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	u := model.TokenUsage{Model: "sonnet", InputTokens: 2000, OutputTokens: 1000}
	calc.Price(&u)
	assert.InDelta(t, 0.006+0.015, u.CostUSD, 1e-9)

	reported := model.TokenUsage{Model: "sonnet", InputTokens: 2000, CostUSD: 0.5}
	calc.Price(&reported)
	assert.Equal(t, 0.5, reported.CostUSD)

	var nilCalc *Calculator
	assert.NotPanics(t, func() { nilCalc.Price(&u) })
}

func TestNewCalculator_DefaultRates(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(nil)
	assert.Greater(t, calc.Claude("claude-sonnet-4-5-20250929", 1000, 1000, 0, 0), 0.0)
}
