package market

import "time"

// Coordinator kinds used by this package.
const (
	KindMarket        = "market"
	KindSimilar       = "similar"
	KindBatchSimilar  = "batch_similar"
	KindBatchAnalysis = "batch_analysis"
)

// SubjectAnalysisCompleted is the default subject for completed analyses.
const SubjectAnalysisCompleted = "evt.market.analysis.completed.v1"

// Config holds the tunables of the analysis pipeline. The numbers are
// heuristics and may be changed freely.
type Config struct {
	MaxCompetitors    int
	SearchLimit       int
	PriceBandPct      float64
	HighInterest      int
	ModerateInterest  int
	MaxEvents         int
	EventDaysBefore   int
	EventDaysAfter    int
	MaxRelatedQueries int
	TitleMaxLen       int
	FallbackScore     int
	NoiseAmplitude    float64
	SeasonalFactors   [12]float64

	AnalysisTTL     time.Duration
	SimilarTTL      time.Duration
	HolidayTTL      time.Duration
	SimilarWorkers  int
	AnalysisWorkers int
	DefaultPrice    float64
	EventsSubject   string
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MaxCompetitors:    2,
		SearchLimit:       20,
		PriceBandPct:      10,
		HighInterest:      70,
		ModerateInterest:  40,
		MaxEvents:         5,
		EventDaysBefore:   30,
		EventDaysAfter:    60,
		MaxRelatedQueries: 5,
		TitleMaxLen:       25,
		FallbackScore:     50,
		NoiseAmplitude:    20,
		// Jan..Dec demand multipliers for the Brazilian retail market.
		SeasonalFactors: [12]float64{0.9, 0.8, 0.9, 1.0, 1.1, 1.0, 0.95, 0.95, 1.0, 1.1, 1.3, 1.4},

		AnalysisTTL:     time.Hour,
		SimilarTTL:      24 * time.Hour,
		HolidayTTL:      24 * time.Hour,
		SimilarWorkers:  3,
		AnalysisWorkers: 2,
		DefaultPrice:    100,
		EventsSubject:   SubjectAnalysisCompleted,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxCompetitors <= 0 {
		c.MaxCompetitors = d.MaxCompetitors
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	if c.PriceBandPct <= 0 {
		c.PriceBandPct = d.PriceBandPct
	}
	if c.HighInterest <= 0 {
		c.HighInterest = d.HighInterest
	}
	if c.ModerateInterest <= 0 {
		c.ModerateInterest = d.ModerateInterest
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.EventDaysBefore <= 0 {
		c.EventDaysBefore = d.EventDaysBefore
	}
	if c.EventDaysAfter <= 0 {
		c.EventDaysAfter = d.EventDaysAfter
	}
	if c.MaxRelatedQueries <= 0 {
		c.MaxRelatedQueries = d.MaxRelatedQueries
	}
	if c.TitleMaxLen <= 3 {
		c.TitleMaxLen = d.TitleMaxLen
	}
	if c.FallbackScore <= 0 {
		c.FallbackScore = d.FallbackScore
	}
	if c.NoiseAmplitude < 0 {
		c.NoiseAmplitude = 0
	}
	if c.SeasonalFactors == ([12]float64{}) {
		c.SeasonalFactors = d.SeasonalFactors
	}
	if c.AnalysisTTL <= 0 {
		c.AnalysisTTL = d.AnalysisTTL
	}
	if c.SimilarTTL <= 0 {
		c.SimilarTTL = d.SimilarTTL
	}
	if c.HolidayTTL <= 0 {
		c.HolidayTTL = d.HolidayTTL
	}
	if c.SimilarWorkers <= 0 {
		c.SimilarWorkers = d.SimilarWorkers
	}
	if c.AnalysisWorkers <= 0 {
		c.AnalysisWorkers = d.AnalysisWorkers
	}
	if c.DefaultPrice <= 0 {
		c.DefaultPrice = d.DefaultPrice
	}
	if c.EventsSubject == "" {
		c.EventsSubject = d.EventsSubject
	}
	return c
}
