package market

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

var (
	highSeasonTerms = []string{"biquini", "protetor solar", "ventilador", "ar condicionado"}
	stableTerms     = []string{"smartphone", "notebook", "livro", "roupa"}
)

// EstimateSearchVolume scores 0..100 from units sold and title length.
func EstimateSearchVolume(title string, sold int) int {
	base := 20.0
	if sold > 0 {
		base = math.Min(100, float64(sold)/100*10)
	}
	words := len(strings.Split(title, " "))
	bonus := math.Min(20, float64(words*2))
	return int(math.Min(100, math.Round(base+bonus)))
}

// EstimateMarketShare is sold as a percentage of totalSold.
func EstimateMarketShare(sold, totalSold int) int {
	if sold <= 0 || totalSold <= 0 {
		return 0
	}
	return int(math.Round(float64(sold) / float64(totalSold) * 100))
}

// InterestScore combines average units sold and competitor count into 0..100.
func InterestScore(avgSold float64, competitors int) int {
	volume := math.Min(80, avgSold/10)
	competition := math.Min(20, float64(competitors*5))
	return int(math.Round(volume + competition))
}

// MonthlySales estimates monthly sales from lifetime units and listing age.
func MonthlySales(sold int, created, now time.Time) int {
	if sold <= 0 || created.IsZero() {
		return 0
	}
	months := math.Max(1, now.Sub(created).Hours()/(24*30))
	return int(math.Round(float64(sold) / months))
}

// Seasonality classifies a product name as alta, estável or baixa.
func Seasonality(name string) string {
	lower := strings.ToLower(name)
	for _, t := range highSeasonTerms {
		if strings.Contains(lower, t) {
			return model.SeasonalityHigh
		}
	}
	for _, t := range stableTerms {
		if strings.Contains(lower, t) {
			return model.SeasonalityStable
		}
	}
	return model.SeasonalityLow
}

// RelatedQueries derives search queries related to name.
func RelatedQueries(name string, limit int) []string {
	name = strings.TrimSpace(name)
	words := strings.Fields(name)
	q := []string{
		name + " preço",
		name + " barato",
		"melhor " + name,
		name + " promoção",
	}
	if len(words) > 1 {
		q = append(q,
			words[0]+" "+words[len(words)-1],
			strings.Join(words[:len(words)-1], " "),
		)
	}
	if limit > 0 && len(q) > limit {
		q = q[:limit]
	}
	return q
}

// Trend builds 12 monthly points ending at now's month. noise returns a
// value in [0,1) and is scaled to ±amplitude/2.
func Trend(score int, now time.Time, factors [12]float64, amplitude float64, noise func() float64) []model.TrendPoint {
	points := make([]model.TrendPoint, 0, 12)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 11; i >= 0; i-- {
		d := first.AddDate(0, -i, 0)
		factor := factors[int(d.Month())-1]
		if factor == 0 {
			factor = 1
		}
		v := float64(score) * factor
		if noise != nil {
			v += (noise() - 0.5) * amplitude
		}
		v = math.Max(0, math.Min(100, v))
		value := int(math.Round(v))
		points = append(points, model.TrendPoint{
			Date:   d.Format("2006-01-02"),
			Value:  value,
			Volume: value * 100,
		})
	}
	return points
}

// seededRand returns a PRNG seeded from key so equal keys produce equal noise.
func seededRand(key string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SearchInterestFor computes the search-interest model for name given its
// competitors. key seeds the trend noise.
func SearchInterestFor(cfg Config, name, key string, competitors []model.Competitor, now time.Time) model.SearchInterest {
	var avg float64
	if len(competitors) > 0 {
		total := 0
		for _, c := range competitors {
			total += c.SoldQuantity
		}
		avg = float64(total) / float64(len(competitors))
	}
	score := InterestScore(avg, len(competitors))
	rng := seededRand(key)
	return model.SearchInterest{
		Score:          score,
		Trend:          Trend(score, now, cfg.SeasonalFactors, cfg.NoiseAmplitude, rng.Float64),
		RelatedQueries: RelatedQueries(name, cfg.MaxRelatedQueries),
		Seasonality:    Seasonality(name),
	}
}
