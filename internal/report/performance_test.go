package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeRatios(t *testing.T) {
	tests := []struct {
		name                  string
		sessions, regs, cards int64
		want                  Ratios
	}{
		{"typical", 1000, 50, 5, Ratios{RegPercentage: 5, CCConvPercentage: 10, ClicksToRegRatio: 133.34, RegToCCRatio: 10}},
		{"no sessions", 0, 0, 0, Ratios{}},
		{"no cards", 300, 30, 0, Ratios{RegPercentage: 10, ClicksToRegRatio: 66.67}},
		{"rounding", 3, 1, 1, Ratios{RegPercentage: 33.33, CCConvPercentage: 100, ClicksToRegRatio: 20, RegToCCRatio: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeRatios(tt.sessions, tt.regs, tt.cards))
		})
	}
}

func TestEstimateClicks(t *testing.T) {
	assert.Equal(t, int64(0), EstimateClicks(0))
	assert.Equal(t, int64(7), EstimateClicks(1))
	assert.Equal(t, int64(6667), EstimateClicks(1000))
}

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name                  string
		sessions, regs, cards int64
		want                  float64
	}{
		{"healthy", 1000, 50, 5, 1},
		{"everything zero", 0, 0, 0, 0.4},
		{"no cards", 1000, 50, 0, 0.8},
		{"suspicious rate", 100, 60, 5, 0.7},
		{"tiny rate", 10000, 5, 1, 0.8},
		{"more regs than sessions", 10, 20, 1, 0.2},
		{"registrations without sessions", 0, 20, 0, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, QualityScore(tt.sessions, tt.regs, tt.cards), 1e-9)
		})
	}
}

func TestLowQuality(t *testing.T) {
	rows := []CampaignPerformance{
		{CampaignID: 1, DataQualityScore: 1},
		{CampaignID: 2, DataQualityScore: 0.8},
		{CampaignID: 3, DataQualityScore: 0.85},
	}
	low := LowQuality(rows, 0.85)
	if assert.Len(t, low, 1) {
		assert.Equal(t, int64(2), low[0].CampaignID)
	}
}
