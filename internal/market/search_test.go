package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

func TestEstimateSearchVolume(t *testing.T) {
	assert.Equal(t, 28, EstimateSearchVolume("fone bluetooth sem fio", 0))
	assert.Equal(t, 52, EstimateSearchVolume("fone", 500))
	assert.Equal(t, 100, EstimateSearchVolume("um dois tres quatro cinco seis sete oito nove dez onze", 5000))
}

func TestEstimateMarketShare(t *testing.T) {
	assert.Equal(t, 25, EstimateMarketShare(100, 400))
	assert.Equal(t, 0, EstimateMarketShare(0, 400))
	assert.Equal(t, 0, EstimateMarketShare(10, 0))
}

func TestInterestScore_Capped(t *testing.T) {
	assert.Equal(t, 0, InterestScore(0, 0))
	assert.Equal(t, 30, InterestScore(200, 2))
	assert.Equal(t, 100, InterestScore(10000, 10))
}

func TestMonthlySales(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 100, MonthlySales(600, now.Add(-6*30*24*time.Hour), now))
	// listings younger than a month count as one month
	assert.Equal(t, 40, MonthlySales(40, now.Add(-24*time.Hour), now))
	assert.Equal(t, 0, MonthlySales(40, time.Time{}, now))
	assert.Equal(t, 0, MonthlySales(0, now.AddDate(-1, 0, 0), now))
}

func TestSeasonality(t *testing.T) {
	assert.Equal(t, model.SeasonalityHigh, Seasonality("Ventilador de Mesa"))
	assert.Equal(t, model.SeasonalityStable, Seasonality("Notebook Gamer"))
	assert.Equal(t, model.SeasonalityLow, Seasonality("Caneca"))
}

func TestRelatedQueries(t *testing.T) {
	q := RelatedQueries("fone bluetooth", 5)
	assert.Equal(t, []string{
		"fone bluetooth preço",
		"fone bluetooth barato",
		"melhor fone bluetooth",
		"fone bluetooth promoção",
		"fone bluetooth",
	}, q)

	assert.Len(t, RelatedQueries("caneca", 5), 4)
	assert.Len(t, RelatedQueries("a b c", 2), 2)
}

func TestTrend_TwelveMonthsEndingNow(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	pts := Trend(50, now, DefaultConfig().SeasonalFactors, 0, nil)
	assert.Len(t, pts, 12)
	assert.Equal(t, "2024-04-01", pts[0].Date)
	assert.Equal(t, "2025-03-01", pts[11].Date)
	// March factor 0.9
	assert.Equal(t, 45, pts[11].Value)
	assert.Equal(t, 4500, pts[11].Volume)
	// December factor 1.4
	assert.Equal(t, 70, pts[8].Value)
}

func TestTrend_ClampedTo0And100(t *testing.T) {
	now := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range Trend(95, now, DefaultConfig().SeasonalFactors, 40, func() float64 { return 0.99 }) {
		assert.LessOrEqual(t, p.Value, 100)
	}
	for _, p := range Trend(0, now, DefaultConfig().SeasonalFactors, 40, func() float64 { return 0 }) {
		assert.Equal(t, 0, p.Value)
	}
}

func TestSearchInterestFor_Deterministic(t *testing.T) {
	now := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	comps := []model.Competitor{{SoldQuantity: 300}, {SoldQuantity: 100}}
	a := SearchInterestFor(DefaultConfig(), "fone", "fone_100", comps, now)
	b := SearchInterestFor(DefaultConfig(), "fone", "fone_100", comps, now)
	assert.Equal(t, a, b)
	assert.Equal(t, 30, a.Score)

	c := SearchInterestFor(DefaultConfig(), "fone", "fone_200", comps, now)
	assert.NotEqual(t, a.Trend, c.Trend)
}
