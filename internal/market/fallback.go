package market

import (
	"math"
	"strconv"
	"time"

	"github.com/Checker-Finance/market-intel/internal/coordinator"
	"github.com/Checker-Finance/market-intel/pkg/model"
)

type calendarEntry struct {
	month time.Month
	day   int
	name  string
}

// staticCalendar is the retail calendar used when the holiday provider fails.
var staticCalendar = []calendarEntry{
	{time.January, 1, "Ano Novo"},
	{time.January, 15, "Volta às aulas"},
	{time.February, 10, "Carnaval"},
	{time.March, 8, "Início da Páscoa"},
	{time.April, 15, "Páscoa"},
	{time.May, 12, "Dia das Mães"},
	{time.June, 12, "Dia dos Namorados / festas juninas"},
	{time.July, 10, "Férias escolares"},
	{time.August, 11, "Dia dos Pais / volta às aulas"},
	{time.September, 15, "Dia do Cliente"},
	{time.October, 12, "Dia das Crianças"},
	{time.November, 29, "Black Friday"},
	{time.December, 25, "Natal"},
}

// FallbackSynthesizer produces plausible substitute data when providers fail.
// Output is a pure function of its inputs.
type FallbackSynthesizer struct {
	cfg Config
}

func NewFallbackSynthesizer(cfg Config) *FallbackSynthesizer {
	return &FallbackSynthesizer{cfg: cfg.withDefaults()}
}

// Competitors returns a premium and a basic variant priced ±20% around price.
func (f *FallbackSynthesizer) Competitors(name string, price float64, now time.Time) []model.Competitor {
	key := coordinator.NormalizeKey(name, price)
	rng := seededRand(key)
	if price <= 0 {
		price = f.cfg.DefaultPrice
	}

	variants := []struct {
		suffix string
		factor float64
	}{{" Premium", 1.2}, {" Básico", 0.8}}

	out := make([]model.Competitor, 0, len(variants))
	total := 0
	sold := make([]int, len(variants))
	for i := range variants {
		sold[i] = 50 + rng.IntN(450)
		total += sold[i]
	}
	for i, v := range variants {
		title := name + v.suffix
		created := now.AddDate(0, -(3 + rng.IntN(21)), 0)
		out = append(out, model.Competitor{
			ID:           "synthetic-" + key + "-" + strconv.Itoa(i),
			Title:        title,
			Price:        math.Round(price*v.factor*100) / 100,
			SoldQuantity: sold[i],
			MonthlySales: MonthlySales(sold[i], created, now),
			SearchVolume: EstimateSearchVolume(title, sold[i]),
			MarketShare:  EstimateMarketShare(sold[i], total),
			CreatedAt:    created,
			Synthetic:    true,
		})
	}
	return out
}

// Trend returns a seasonal curve around score without provider data.
func (f *FallbackSynthesizer) Trend(key string, score int, now time.Time) []model.TrendPoint {
	rng := seededRand(key)
	return Trend(score, now, f.cfg.SeasonalFactors, f.cfg.NoiseAmplitude, rng.Float64)
}

// Events projects the static retail calendar onto the event window.
func (f *FallbackSynthesizer) Events(now time.Time) []model.MarketEvent {
	var events []model.MarketEvent
	for _, year := range []int{now.Year() - 1, now.Year(), now.Year() + 1} {
		for _, e := range staticCalendar {
			d := time.Date(year, e.month, e.day, 0, 0, 0, 0, now.Location())
			days := daysBetween(now, d)
			if days < -float64(f.cfg.EventDaysBefore) || days > float64(f.cfg.EventDaysAfter) {
				continue
			}
			events = append(events, newEvent(e.name, d, now))
		}
	}
	return sortAndCap(events, f.cfg.MaxEvents)
}

// Report is the neutral report returned when an analysis cannot run at all.
func (f *FallbackSynthesizer) Report(name string, price float64) *model.MarketReport {
	return &model.MarketReport{
		Product:         name,
		Price:           price,
		Key:             coordinator.NormalizeKey(name, price),
		Competitors:     []model.Competitor{},
		PriceComparison: model.PriceComparison{Labels: []string{"Seu Produto"}, Prices: []float64{price}},
		Popularity:      model.Popularity{Labels: []string{}, Sales: []int{}},
		Search: model.SearchInterest{
			Score:          f.cfg.FallbackScore,
			Trend:          []model.TrendPoint{},
			RelatedQueries: []string{name + " preço", "melhor " + name},
			Seasonality:    model.SeasonalityStable,
		},
		Events: []model.MarketEvent{},
		Insights: model.Insights{
			Price:      MsgFallbackPrice,
			Popularity: MsgFallbackPopularity,
			Search:     MsgFallbackSearch,
		},
		Degraded: true,
		Sources:  []model.SourceStatus{},
	}
}
